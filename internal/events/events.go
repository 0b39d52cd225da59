package events

import (
	"github.com/kode4food/timebox"

	"github.com/loomworks/loom/pkg/api"
)

type EventFilter func(*timebox.Event) bool

func FilterEvents(eventTypes ...api.EventType) EventFilter {
	lookup := map[timebox.EventType]bool{}
	for _, et := range eventTypes {
		lookup[timebox.EventType(et)] = true
	}
	return func(ev *timebox.Event) bool {
		return lookup[ev.Type]
	}
}

func FilterAggregate(id timebox.AggregateID) EventFilter {
	return func(ev *timebox.Event) bool {
		if len(ev.AggregateID) < len(id) {
			return false
		}
		for i, p := range id {
			if ev.AggregateID[i] != p {
				return false
			}
		}
		return true
	}
}

func FilterExecution(id api.ExecutionID) EventFilter {
	return func(ev *timebox.Event) bool {
		if !IsExecutionEvent(ev) {
			return false
		}
		return ExecutionIDOf(ev) == id
	}
}

func FilterWorkflowExecutions(
	id api.WorkflowID, active map[api.ExecutionID]*api.ActiveExecutionInfo,
) EventFilter {
	return func(ev *timebox.Event) bool {
		if !IsExecutionEvent(ev) {
			return false
		}
		info, ok := active[ExecutionIDOf(ev)]
		return ok && info.WorkflowID == id
	}
}

func OrFilters(filters ...EventFilter) EventFilter {
	return func(ev *timebox.Event) bool {
		for _, filter := range filters {
			if filter(ev) {
				return true
			}
		}
		return false
	}
}

func AndFilters(filters ...EventFilter) EventFilter {
	return func(ev *timebox.Event) bool {
		for _, filter := range filters {
			if !filter(ev) {
				return false
			}
		}
		return true
	}
}

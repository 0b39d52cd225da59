package events

import (
	"fmt"

	"github.com/kode4food/timebox"

	"github.com/loomworks/loom/pkg/api"
)

const ExecutionPrefix = "execution"

// ExecutionAppliers contains the event applier functions for execution
// events
var ExecutionAppliers = makeExecutionAppliers()

// ExecutionKey builds the aggregate ID for one execution's event stream
func ExecutionKey(id api.ExecutionID) timebox.AggregateID {
	return timebox.NewAggregateID(ExecutionPrefix, timebox.ID(id))
}

// NewExecutionState creates an empty execution state with an initialized
// step record map
func NewExecutionState() *api.ExecutionState {
	return &api.ExecutionState{
		Steps: map[api.StepID]*api.StepRecord{},
	}
}

// IsExecutionEvent returns true if the event belongs to an execution
// aggregate
func IsExecutionEvent(ev *timebox.Event) bool {
	return len(ev.AggregateID) >= 2 && ev.AggregateID[0] == ExecutionPrefix
}

// ExecutionIDOf extracts the execution ID from an execution event
func ExecutionIDOf(ev *timebox.Event) api.ExecutionID {
	return api.ExecutionID(ev.AggregateID[1])
}

func makeExecutionAppliers() timebox.Appliers[*api.ExecutionState] {
	return MakeAppliers(map[api.EventType]timebox.Applier[*api.ExecutionState]{
		api.EventTypeExecutionStarted:   timebox.MakeApplier(executionStarted),
		api.EventTypeExecutionCompleted: timebox.MakeApplier(executionCompleted),
		api.EventTypeExecutionFailed:    timebox.MakeApplier(executionFailed),
		api.EventTypeExecutionCancelled: timebox.MakeApplier(executionCancelled),
		api.EventTypeExecutionArchived:  timebox.MakeApplier(executionArchived),
		api.EventTypeStepRunning:        timebox.MakeApplier(stepRunning),
		api.EventTypeStepCompleted:      timebox.MakeApplier(stepCompleted),
		api.EventTypeStepFailed:         timebox.MakeApplier(stepFailed),
		api.EventTypeStepSkipped:        timebox.MakeApplier(stepSkipped),
	})
}

func executionStarted(
	_ *api.ExecutionState, ev *timebox.Event, data api.ExecutionStartedEvent,
) *api.ExecutionState {
	steps := createRecords(data.Plan)

	return &api.ExecutionState{
		ID:          data.ExecutionID,
		WorkflowID:  data.WorkflowID,
		Status:      api.ExecutionRunning,
		Plan:        data.Plan,
		Steps:       steps,
		Input:       data.Input,
		StartedAt:   ev.Timestamp,
		LastUpdated: ev.Timestamp,
	}
}

func executionCompleted(
	st *api.ExecutionState, ev *timebox.Event, data api.ExecutionCompletedEvent,
) *api.ExecutionState {
	return st.
		SetStatus(api.ExecutionCompleted).
		SetFinalOutput(data.FinalOutput).
		SetCompletedAt(ev.Timestamp).
		SetLastUpdated(ev.Timestamp)
}

func executionFailed(
	st *api.ExecutionState, ev *timebox.Event, data api.ExecutionFailedEvent,
) *api.ExecutionState {
	return st.
		SetStatus(api.ExecutionFailed).
		SetError(data.Error).
		SetCompletedAt(ev.Timestamp).
		SetLastUpdated(ev.Timestamp)
}

func executionCancelled(
	st *api.ExecutionState, ev *timebox.Event, data api.ExecutionCancelledEvent,
) *api.ExecutionState {
	return st.
		SetStatus(api.ExecutionCancelled).
		SetError(data.Reason).
		SetCompletedAt(ev.Timestamp).
		SetLastUpdated(ev.Timestamp)
}

func executionArchived(
	st *api.ExecutionState, ev *timebox.Event, _ api.ExecutionArchivedEvent,
) *api.ExecutionState {
	return st.SetLastUpdated(ev.Timestamp)
}

func stepRunning(
	st *api.ExecutionState, ev *timebox.Event, data api.StepRunningEvent,
) *api.ExecutionState {
	rec := getRecord(st, data.StepID, "stepRunning")
	if rec.Status.IsTerminal() {
		return st
	}

	updated := rec.
		SetStatus(api.StepRunning).
		SetStartedAt(ev.Timestamp).
		SetInputs(data.Inputs)

	return st.
		SetStep(data.StepID, updated).
		SetLastUpdated(ev.Timestamp)
}

func stepCompleted(
	st *api.ExecutionState, ev *timebox.Event, data api.StepCompletedEvent,
) *api.ExecutionState {
	rec := getRecord(st, data.StepID, "stepCompleted")
	if rec.Status.IsTerminal() {
		return st
	}

	updated := rec.
		SetStatus(api.StepCompleted).
		SetCompletedAt(ev.Timestamp).
		SetDuration(data.Duration).
		SetOutput(data.Output)

	return st.
		SetStep(data.StepID, updated).
		SetLastUpdated(ev.Timestamp)
}

func stepFailed(
	st *api.ExecutionState, ev *timebox.Event, data api.StepFailedEvent,
) *api.ExecutionState {
	rec := getRecord(st, data.StepID, "stepFailed")
	if rec.Status.IsTerminal() {
		return st
	}

	updated := rec.
		SetStatus(api.StepFailed).
		SetError(data.Error).
		SetCompletedAt(ev.Timestamp)

	return st.
		SetStep(data.StepID, updated).
		SetLastUpdated(ev.Timestamp)
}

func stepSkipped(
	st *api.ExecutionState, ev *timebox.Event, data api.StepSkippedEvent,
) *api.ExecutionState {
	rec := getRecord(st, data.StepID, "stepSkipped")
	if rec.Status.IsTerminal() {
		return st
	}

	updated := rec.
		SetStatus(api.StepSkipped).
		SetError(data.Reason).
		SetCompletedAt(ev.Timestamp)

	return st.
		SetStep(data.StepID, updated).
		SetLastUpdated(ev.Timestamp)
}

func createRecords(p *api.ExecutionPlan) map[api.StepID]*api.StepRecord {
	steps := map[api.StepID]*api.StepRecord{}
	if p == nil {
		return steps
	}

	for stepID := range p.Steps {
		steps[stepID] = &api.StepRecord{
			StepID: stepID,
			Status: api.StepPending,
		}
	}
	return steps
}

func getRecord(
	st *api.ExecutionState, stepID api.StepID, fn string,
) *api.StepRecord {
	if rec, ok := st.Steps[stepID]; ok {
		return rec
	}
	panic(
		fmt.Errorf("%s: record does not exist for step %s", fn, stepID),
	)
}

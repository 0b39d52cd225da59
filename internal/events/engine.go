package events

import (
	"github.com/kode4food/timebox"

	"github.com/loomworks/loom/pkg/api"
)

const enginePrefix = "engine"

var (
	EngineID = timebox.NewAggregateID(enginePrefix)

	// EngineAppliers contains the event applier functions for engine events
	EngineAppliers = MakeAppliers(
		map[api.EventType]timebox.Applier[*api.EngineState]{
			api.EventTypeExecutionActivated: timebox.MakeApplier(
				executionActivated,
			),
			api.EventTypeExecutionDeactivated: timebox.MakeApplier(
				executionDeactivated,
			),
		},
	)
)

func NewEngineState() *api.EngineState {
	return &api.EngineState{
		Active:  map[api.ExecutionID]*api.ActiveExecutionInfo{},
		Digests: map[api.ExecutionID]*api.ExecutionDigest{},
	}
}

func IsEngineEvent(ev *timebox.Event) bool {
	return len(ev.AggregateID) >= 1 && ev.AggregateID[0] == enginePrefix
}

func executionActivated(
	st *api.EngineState, ev *timebox.Event, data api.ExecutionActivatedEvent,
) *api.EngineState {
	return st.
		SetActive(data.ExecutionID, &api.ActiveExecutionInfo{
			ExecutionID: data.ExecutionID,
			WorkflowID:  data.WorkflowID,
			StartedAt:   ev.Timestamp,
		}).
		SetDigest(data.ExecutionID, &api.ExecutionDigest{
			ID:         data.ExecutionID,
			WorkflowID: data.WorkflowID,
			Status:     api.ExecutionRunning,
			StartedAt:  ev.Timestamp,
		}).
		SetLastUpdated(ev.Timestamp)
}

func executionDeactivated(
	st *api.EngineState, ev *timebox.Event, data api.ExecutionDeactivatedEvent,
) *api.EngineState {
	res := st.
		DeleteActive(data.ExecutionID).
		SetLastUpdated(ev.Timestamp)

	if data.Digest != nil {
		res = res.SetDigest(data.ExecutionID, data.Digest)
	}
	return res
}

package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/kode4food/caravan/topic"
	"github.com/kode4food/timebox"

	"github.com/loomworks/loom/internal/events"
	"github.com/loomworks/loom/pkg/api"
)

// EventWaiter waits for the projected state of an execution to satisfy a
// condition, re-checking whenever a matching event arrives on the hub
type EventWaiter[T any] struct {
	consumer topic.Consumer[*timebox.Event]
	filter   events.EventFilter
	getState func(context.Context) (T, bool)
	desc     string
}

// DefaultWaitTimeout is the default timeout for event waiters
const DefaultWaitTimeout = 10 * time.Second

// Wait blocks until the condition is satisfied or the timeout elapses,
// failing the test on timeout. The consumer is closed before returning
func (w *EventWaiter[T]) Wait(
	t *testing.T, ctx context.Context, timeout time.Duration,
) T {
	t.Helper()
	defer w.consumer.Close()

	if res, ok := w.getState(ctx); ok {
		return res
	}

	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-w.consumer.Receive():
			if !ok {
				t.Fatalf("event stream closed waiting for %s", w.desc)
			}
			if !w.filter(ev) {
				continue
			}
			if res, ok := w.getState(ctx); ok {
				return res
			}

		case <-deadline:
			t.Fatalf("timed out waiting for %s", w.desc)

		case <-ctx.Done():
			t.Fatalf("context cancelled waiting for %s", w.desc)
		}
	}
}

// SubscribeToExecutionStatus creates a waiter that resolves when the
// execution reaches the given status
func (e *TestEngineEnv) SubscribeToExecutionStatus(
	id api.ExecutionID, status api.ExecutionStatus,
) *EventWaiter[*api.ExecutionState] {
	return &EventWaiter[*api.ExecutionState]{
		consumer: e.EventHub.NewConsumer(),
		filter:   events.FilterExecution(id),
		getState: func(ctx context.Context) (*api.ExecutionState, bool) {
			st, err := e.Engine.GetExecutionState(ctx, id)
			if err != nil || st.Status != status {
				return nil, false
			}
			return st, true
		},
		desc: "execution " + string(id) + " status " + string(status),
	}
}

// SubscribeToStepStatus creates a waiter that resolves when the given step
// of the execution reaches the given status
func (e *TestEngineEnv) SubscribeToStepStatus(
	id api.ExecutionID, stepID api.StepID, status api.StepStatus,
) *EventWaiter[*api.StepRecord] {
	return &EventWaiter[*api.StepRecord]{
		consumer: e.EventHub.NewConsumer(),
		filter:   events.FilterExecution(id),
		getState: func(ctx context.Context) (*api.StepRecord, bool) {
			st, err := e.Engine.GetExecutionState(ctx, id)
			if err != nil {
				return nil, false
			}
			rec, ok := st.Steps[stepID]
			if !ok || rec.Status != status {
				return nil, false
			}
			return rec, true
		},
		desc: "step " + string(stepID) + " status " + string(status),
	}
}

// WaitForExecutionStatus blocks until the execution reaches the given
// status, failing the test on timeout
func (e *TestEngineEnv) WaitForExecutionStatus(
	t *testing.T, id api.ExecutionID, status api.ExecutionStatus,
) *api.ExecutionState {
	t.Helper()
	w := e.SubscribeToExecutionStatus(id, status)
	return w.Wait(t, context.Background(), DefaultWaitTimeout)
}

// WaitForStepStatus blocks until the given step reaches the given status,
// failing the test on timeout
func (e *TestEngineEnv) WaitForStepStatus(
	t *testing.T, id api.ExecutionID, stepID api.StepID,
	status api.StepStatus,
) *api.StepRecord {
	t.Helper()
	w := e.SubscribeToStepStatus(id, stepID, status)
	return w.Wait(t, context.Background(), DefaultWaitTimeout)
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kode4food/timebox"

	"github.com/loomworks/loom/internal/events"
	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/log"
)

type (
	execActor struct {
		*Engine
		execID api.ExecutionID
		events chan *timebox.Event
	}

	// deferred represents deferred work to be executed after a transaction
	deferred func()
	enqueued []deferred
)

const actorIdleTimeout = 100 * time.Millisecond

func (a *execActor) run() {
	defer a.wg.Done()
	defer a.execs.Delete(a.execID)

	handler := a.createEventHandler()
	idleTimer := time.NewTimer(actorIdleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case event := <-a.events:
			a.handleEvent(handler, event)
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(actorIdleTimeout)

		case <-idleTimer.C:
			select {
			case event := <-a.events:
				a.handleEvent(handler, event)
				idleTimer.Reset(actorIdleTimeout)
			default:
				return
			}

		case <-a.ctx.Done():
			return
		}
	}
}

func (a *execActor) createEventHandler() timebox.Handler {
	const (
		started   = timebox.EventType(api.EventTypeExecutionStarted)
		cancelled = timebox.EventType(api.EventTypeExecutionCancelled)
		completed = timebox.EventType(api.EventTypeStepCompleted)
		failed    = timebox.EventType(api.EventTypeStepFailed)
		skipped   = timebox.EventType(api.EventTypeStepSkipped)
	)

	return timebox.MakeDispatcher(map[timebox.EventType]timebox.Handler{
		started:   timebox.MakeHandler(a.processExecutionStarted),
		cancelled: timebox.MakeHandler(a.processExecutionCancelled),
		completed: timebox.MakeHandler(a.processStepCompleted),
		failed:    timebox.MakeHandler(a.processStepFailed),
		skipped:   timebox.MakeHandler(a.processStepSkipped),
	})
}

func (a *execActor) handleEvent(
	handler timebox.Handler, event *timebox.Event,
) {
	if err := handler(event); err != nil {
		slog.Error("Failed to handle execution event",
			log.ExecutionID(a.execID),
			slog.String("event_type", string(event.Type)),
			log.Error(err))
	}
}

// processExecutionStarted launches the steps with no dependencies
func (a *execActor) processExecutionStarted(
	_ *timebox.Event, _ api.ExecutionStartedEvent,
) error {
	return a.execTransaction(func(ag *ExecAggregator) (enqueued, error) {
		if executionTransitions.IsTerminal(ag.Value().Status) {
			return nil, nil
		}
		return a.launchReady(ag, a.findInitialSteps(ag.Value()))
	})
}

// processStepCompleted launches downstream steps whose dependencies are now
// satisfied, then checks whether the run has reached a terminal state. A
// condition step that evaluated false instead skips its descendants
func (a *execActor) processStepCompleted(
	_ *timebox.Event, event api.StepCompletedEvent,
) error {
	return a.execTransaction(func(ag *ExecAggregator) (enqueued, error) {
		st := ag.Value()
		if executionTransitions.IsTerminal(st.Status) {
			return nil, nil
		}

		if conditionFalse(st, event.StepID) {
			err := a.skipDescendants(
				ag, event.StepID, "condition evaluated false",
			)
			if err != nil {
				return nil, err
			}
			return nil, a.checkTerminal(ag)
		}

		fns, err := a.launchReady(
			ag, a.findReadySteps(event.StepID, ag.Value()),
		)
		if err != nil {
			return nil, err
		}
		return fns, a.checkTerminal(ag)
	})
}

// processStepFailed skips the transitive dependents of the failed step and
// checks for a terminal state. Branches that do not depend on the failed
// step keep running
func (a *execActor) processStepFailed(
	_ *timebox.Event, event api.StepFailedEvent,
) error {
	return a.execTransaction(func(ag *ExecAggregator) (enqueued, error) {
		if executionTransitions.IsTerminal(ag.Value().Status) {
			return nil, nil
		}

		reason := fmt.Sprintf("dependency %s failed", event.StepID)
		if err := a.skipDescendants(ag, event.StepID, reason); err != nil {
			return nil, err
		}
		return nil, a.checkTerminal(ag)
	})
}

func (a *execActor) processStepSkipped(
	_ *timebox.Event, _ api.StepSkippedEvent,
) error {
	return a.execTransaction(func(ag *ExecAggregator) (enqueued, error) {
		if executionTransitions.IsTerminal(ag.Value().Status) {
			return nil, nil
		}
		return nil, a.checkTerminal(ag)
	})
}

// processExecutionCancelled skips every pending step. Running steps are
// left to finish; their completions are recorded as failures
func (a *execActor) processExecutionCancelled(
	_ *timebox.Event, _ api.ExecutionCancelledEvent,
) error {
	return a.execTransaction(func(ag *ExecAggregator) (enqueued, error) {
		st := ag.Value()
		for _, stepID := range st.Plan.Order {
			rec := st.Steps[stepID]
			if rec == nil || rec.Status != api.StepPending {
				continue
			}
			if err := events.Raise(ag, api.EventTypeStepSkipped,
				api.StepSkippedEvent{
					ExecutionID: a.execID,
					StepID:      stepID,
					Reason:      "execution cancelled",
				},
			); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

// resume restarts scheduling after an engine restart. Steps that were
// mid-flight when the process died cannot report back, so they are failed
// before the remaining graph is re-evaluated
func (a *execActor) resume() error {
	return a.execTransaction(func(ag *ExecAggregator) (enqueued, error) {
		st := ag.Value()
		if st.ID == "" || executionTransitions.IsTerminal(st.Status) {
			return nil, nil
		}

		for _, stepID := range st.Plan.Order {
			rec := st.Steps[stepID]
			if rec == nil || rec.Status != api.StepRunning {
				continue
			}
			if err := events.Raise(ag, api.EventTypeStepFailed,
				api.StepFailedEvent{
					ExecutionID: a.execID,
					StepID:      stepID,
					Error:       "interrupted by engine restart",
				},
			); err != nil {
				return nil, err
			}
			reason := fmt.Sprintf("dependency %s failed", stepID)
			if err := a.skipDescendants(ag, stepID, reason); err != nil {
				return nil, err
			}
		}

		fns, err := a.launchReady(
			ag, a.findInitialSteps(ag.Value()),
		)
		if err != nil {
			return nil, err
		}
		return fns, a.checkTerminal(ag)
	})
}

// execTransaction executes a function within an execution transaction,
// collecting deferred work and executing it after commit
func (a *execActor) execTransaction(
	fn func(ag *ExecAggregator) (enqueued, error),
) error {
	var fns enqueued
	cmd := func(_ *api.ExecutionState, ag *ExecAggregator) error {
		var err error
		fns, err = fn(ag)
		return err
	}
	key := events.ExecutionKey(a.execID)
	if _, err := a.execExec.Exec(a.ctx, key, cmd); err != nil {
		return err
	}
	fns.exec()
	return nil
}

func (e enqueued) exec() {
	for _, fn := range e {
		fn()
	}
}

func (a *execActor) launchReady(
	ag *ExecAggregator, ready []api.StepID,
) (enqueued, error) {
	var fns enqueued
	for _, stepID := range ready {
		fn, err := a.prepareStep(stepID, ag)
		if err != nil {
			slog.Warn("Failed to prepare step",
				log.ExecutionID(a.execID),
				log.StepID(stepID),
				log.Error(err))
			continue
		}
		if fn != nil {
			fns = append(fns, fn)
		}
	}
	return fns, nil
}

// findInitialSteps returns steps that can start when an execution begins
func (a *execActor) findInitialSteps(st *api.ExecutionState) []api.StepID {
	var ready []api.StepID
	for _, stepID := range st.Plan.Order {
		if a.isStepReady(stepID, st) {
			ready = append(ready, stepID)
		}
	}
	return ready
}

// findReadySteps returns ready steps among the dependents of a completed
// step
func (a *execActor) findReadySteps(
	stepID api.StepID, st *api.ExecutionState,
) []api.StepID {
	var ready []api.StepID
	for _, depID := range st.Plan.Dependents[stepID] {
		if a.isStepReady(depID, st) {
			ready = append(ready, depID)
		}
	}
	return ready
}

// isStepReady reports whether a step is pending with every dependency
// completed
func (a *execActor) isStepReady(
	stepID api.StepID, st *api.ExecutionState,
) bool {
	rec, ok := st.Steps[stepID]
	if !ok || rec.Status != api.StepPending {
		return false
	}
	for _, depID := range st.Plan.Dependencies[stepID] {
		dep, ok := st.Steps[depID]
		if !ok || dep.Status != api.StepCompleted {
			return false
		}
	}
	return true
}

// prepareStep raises StepRunning within the transaction and returns a
// deferred function that performs the work after commit
func (a *execActor) prepareStep(
	stepID api.StepID, ag *ExecAggregator,
) (deferred, error) {
	st := ag.Value()

	rec, ok := st.Steps[stepID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStepNotInPlan, stepID)
	}
	if !stepTransitions.CanTransition(rec.Status, api.StepRunning) {
		return nil, fmt.Errorf("%w: %s (status=%s)",
			ErrInvalidTransition, stepID, rec.Status)
	}

	step := st.Plan.GetStep(stepID)
	if step == nil {
		return nil, fmt.Errorf("%w: %s", ErrStepNotInPlan, stepID)
	}

	inputs := collectStepInputs(st, stepID)

	if err := events.Raise(ag, api.EventTypeStepRunning,
		api.StepRunningEvent{
			ExecutionID: a.execID,
			StepID:      stepID,
			Inputs:      inputs,
		},
	); err != nil {
		return nil, err
	}

	return func() {
		a.wg.Add(1)
		go a.runStep(step, inputs)
	}, nil
}

// collectStepInputs merges the execution input with the outputs of the
// step's dependencies, keyed by dependency ID
func collectStepInputs(
	st *api.ExecutionState, stepID api.StepID,
) api.Args {
	inputs := api.Args{}
	for k, v := range st.Input {
		inputs[k] = v
	}
	for _, depID := range st.Plan.Dependencies[stepID] {
		if dep, ok := st.Steps[depID]; ok && dep.Output != nil {
			inputs[string(depID)] = map[string]any(dep.Output)
		}
	}
	return inputs
}

func (a *execActor) runStep(step *api.Step, inputs api.Args) {
	defer a.wg.Done()

	ctx, cancel := context.WithTimeout(a.ctx, a.config.StepTimeout)
	defer cancel()

	start := time.Now()
	output, err := a.steps.Execute(ctx, step, inputs)
	dur := time.Since(start).Milliseconds()

	if err == nil && conditionHardFail(step, output) {
		err = errors.New("condition evaluated false")
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("step timed out after %s", a.config.StepTimeout)
	}

	if ferr := a.finishStep(step.ID, output, dur, err); ferr != nil {
		slog.Error("Failed to record step result",
			log.ExecutionID(a.execID),
			log.StepID(step.ID),
			log.Error(ferr))
	}
}

// finishStep records a step result. Completions arriving after the run was
// cancelled are recorded as failures so the cancelled status stays honest
// about what was delivered
func (a *execActor) finishStep(
	stepID api.StepID, output api.Args, dur int64, execErr error,
) error {
	return a.execTransaction(func(ag *ExecAggregator) (enqueued, error) {
		st := ag.Value()
		rec, ok := st.Steps[stepID]
		if !ok || rec.Status != api.StepRunning {
			return nil, nil
		}

		if st.Status == api.ExecutionCancelled {
			return nil, events.Raise(ag, api.EventTypeStepFailed,
				api.StepFailedEvent{
					ExecutionID: a.execID,
					StepID:      stepID,
					Error:       "execution cancelled",
				})
		}

		if execErr != nil {
			return nil, events.Raise(ag, api.EventTypeStepFailed,
				api.StepFailedEvent{
					ExecutionID: a.execID,
					StepID:      stepID,
					Error:       execErr.Error(),
				})
		}

		return nil, events.Raise(ag, api.EventTypeStepCompleted,
			api.StepCompletedEvent{
				ExecutionID: a.execID,
				StepID:      stepID,
				Output:      output,
				Duration:    dur,
			})
	})
}

// skipDescendants skips every pending transitive dependent of a step
func (a *execActor) skipDescendants(
	ag *ExecAggregator, stepID api.StepID, reason string,
) error {
	st := ag.Value()
	for _, descID := range st.Plan.Descendants(stepID) {
		rec := st.Steps[descID]
		if rec == nil || rec.Status != api.StepPending {
			continue
		}
		if err := events.Raise(ag, api.EventTypeStepSkipped,
			api.StepSkippedEvent{
				ExecutionID: a.execID,
				StepID:      descID,
				Reason:      reason,
			},
		); err != nil {
			return err
		}
		st = ag.Value()
	}
	return nil
}

// checkTerminal decides the run's final status once no step is pending or
// running: completed when nothing failed, failed otherwise
func (a *execActor) checkTerminal(ag *ExecAggregator) error {
	st := ag.Value()
	if executionTransitions.IsTerminal(st.Status) {
		return nil
	}

	for _, rec := range st.Steps {
		if !rec.Status.IsTerminal() {
			return nil
		}
	}

	if reason := failureReason(st); reason != "" {
		return events.Raise(ag, api.EventTypeExecutionFailed,
			api.ExecutionFailedEvent{
				ExecutionID: a.execID,
				Error:       reason,
			})
	}

	return events.Raise(ag, api.EventTypeExecutionCompleted,
		api.ExecutionCompletedEvent{
			ExecutionID: a.execID,
			FinalOutput: finalOutput(st),
		})
}

// failureReason returns the first failure in declared order, or empty when
// no step failed
func failureReason(st *api.ExecutionState) string {
	for _, stepID := range st.Plan.Order {
		rec := st.Steps[stepID]
		if rec != nil && rec.Status == api.StepFailed {
			return fmt.Sprintf("step %s failed: %s", stepID, rec.Error)
		}
	}
	return ""
}

// finalOutput gathers the outputs of completed terminal steps, keyed by
// step ID
func finalOutput(st *api.ExecutionState) api.Args {
	out := api.Args{}
	for _, stepID := range st.Plan.TerminalSteps() {
		rec := st.Steps[stepID]
		if rec != nil && rec.Status == api.StepCompleted {
			out[string(stepID)] = map[string]any(rec.Output)
		}
	}
	return out
}

// conditionFalse reports whether a completed step is a condition that
// evaluated false and should skip its dependents
func conditionFalse(st *api.ExecutionState, stepID api.StepID) bool {
	step := st.Plan.GetStep(stepID)
	if step == nil || step.Type != api.StepTypeCondition {
		return false
	}
	rec := st.Steps[stepID]
	if rec == nil {
		return false
	}
	return !rec.Output.GetBool("result", true)
}

// conditionHardFail reports whether a condition configured with
// on_false=fail evaluated false
func conditionHardFail(step *api.Step, output api.Args) bool {
	if step.Type != api.StepTypeCondition {
		return false
	}
	if step.Config.GetString("on_false", "skip_dependents") != "fail" {
		return false
	}
	return !output.GetBool("result", true)
}

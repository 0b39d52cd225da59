// Package engine schedules workflow executions. Each execution is an
// event-sourced aggregate; a per-execution actor reacts to its events,
// launching steps whose dependencies have completed and deciding the
// terminal status once nothing is left to run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kode4food/caravan/topic"
	"github.com/kode4food/timebox"

	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/events"
	"github.com/loomworks/loom/internal/executor"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/schema"
	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/log"
)

type (
	// Engine is the core workflow execution engine
	Engine struct {
		ctx        context.Context
		consumer   EventConsumer
		engineExec *EngineExecutor
		execExec   *ExecExecutor
		steps      *executor.Registry
		schemas    *schema.Registry
		archiver   Archiver
		config     *config.Config
		cancel     context.CancelFunc
		wg         sync.WaitGroup
		execs      sync.Map // map[api.ExecutionID]*execActor
		handler    timebox.Handler
	}

	// Archiver persists terminal execution states outside the event store
	Archiver interface {
		Archive(context.Context, *api.ExecutionState) (string, error)
	}

	// EventConsumer consumes events from the event hub
	EventConsumer = topic.Consumer[*timebox.Event]

	// EngineExecutor manages engine state persistence and event sourcing
	EngineExecutor = timebox.Executor[*api.EngineState]

	// EngineAggregator aggregates engine state from events
	EngineAggregator = timebox.Aggregator[*api.EngineState]

	// ExecExecutor manages execution state persistence and event sourcing
	ExecExecutor = timebox.Executor[*api.ExecutionState]

	// ExecAggregator aggregates execution state from events
	ExecAggregator = timebox.Aggregator[*api.ExecutionState]
)

var (
	ErrShutdownTimeout   = errors.New("shutdown timeout exceeded")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrExecutionTerminal = errors.New("execution already terminal")
	ErrStepNotInPlan     = errors.New("step not in execution plan")
	ErrInvalidTransition = errors.New("invalid step status transition")
	ErrInvalidConfig     = errors.New("invalid step configuration")
)

// New creates a new engine instance with the specified stores, executor
// registry, schema registry, event hub, and configuration
func New(
	engine, execution *timebox.Store, steps *executor.Registry,
	schemas *schema.Registry, hub timebox.EventHub, cfg *config.Config,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		engineExec: timebox.NewExecutor(
			engine, events.NewEngineState, events.EngineAppliers,
		),
		execExec: timebox.NewExecutor(
			execution, events.NewExecutionState, events.ExecutionAppliers,
		),
		steps:    steps,
		schemas:  schemas,
		config:   cfg,
		ctx:      ctx,
		cancel:   cancel,
		consumer: hub.NewConsumer(),
	}
	e.handler = e.createEventHandler()
	return e
}

// WithArchiver configures an archive destination for terminal executions
func (e *Engine) WithArchiver(a Archiver) *Engine {
	e.archiver = a
	return e
}

func (e *Engine) createEventHandler() timebox.Handler {
	const (
		started   = timebox.EventType(api.EventTypeExecutionStarted)
		completed = timebox.EventType(api.EventTypeExecutionCompleted)
		failed    = timebox.EventType(api.EventTypeExecutionFailed)
		cancelled = timebox.EventType(api.EventTypeExecutionCancelled)
	)

	return timebox.MakeDispatcher(map[timebox.EventType]timebox.Handler{
		started:   timebox.MakeHandler(e.handleExecutionStarted),
		completed: timebox.MakeHandler(e.handleExecutionCompleted),
		failed:    timebox.MakeHandler(e.handleExecutionFailed),
		cancelled: timebox.MakeHandler(e.handleExecutionCancelled),
	})
}

// Start begins processing executions and events
func (e *Engine) Start() {
	slog.Info("Engine starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.recoverExecutions(ctx); err != nil {
		slog.Error("Failed to recover executions",
			log.Error(err))
	}

	go e.eventLoop()
}

// Stop gracefully shuts down the engine
func (e *Engine) Stop() error {
	e.cancel()
	defer e.consumer.Close()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.saveEngineSnapshot()
		slog.Info("Engine stopped")
		return nil
	case <-time.After(e.config.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

// StartExecution validates a workflow definition, compiles it into an
// execution plan, and begins a new run with the given input
func (e *Engine) StartExecution(
	ctx context.Context, wf *api.Workflow, input api.Args,
) (api.ExecutionID, error) {
	if err := wf.Validate(); err != nil {
		return "", err
	}

	g, err := graph.Canonicalize(wf)
	if err != nil {
		return "", err
	}

	for _, id := range g.Order {
		step := g.Nodes[id].Step
		if _, fe := e.schemas.ValidateStep(step); fe.HasErrors() {
			return "", fmt.Errorf("%w: %s: %s", ErrInvalidConfig, id, fe)
		}
	}

	execID := api.ExecutionID(uuid.New().String())

	err = e.raiseExecutionEvent(ctx, execID, api.EventTypeExecutionStarted,
		api.ExecutionStartedEvent{
			ExecutionID: execID,
			WorkflowID:  wf.ID,
			Plan:        g.Plan(),
			Input:       input,
		})
	if err != nil {
		return "", err
	}
	return execID, nil
}

// CancelExecution requests cancellation of a running execution. Pending
// steps are skipped; steps already running finish but their completions are
// recorded as failures
func (e *Engine) CancelExecution(
	ctx context.Context, id api.ExecutionID, reason string,
) error {
	if reason == "" {
		reason = "cancelled by user"
	}

	cmd := func(st *api.ExecutionState, ag *ExecAggregator) error {
		if st.ID == "" {
			return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
		}
		if executionTransitions.IsTerminal(st.Status) {
			return fmt.Errorf("%w: %s", ErrExecutionTerminal, id)
		}
		return events.Raise(ag, api.EventTypeExecutionCancelled,
			api.ExecutionCancelledEvent{
				ExecutionID: id,
				Reason:      reason,
			})
	}
	_, err := e.execExec.Exec(ctx, events.ExecutionKey(id), cmd)
	return err
}

// GetExecutionState retrieves the current state of one execution
func (e *Engine) GetExecutionState(
	ctx context.Context, id api.ExecutionID,
) (*api.ExecutionState, error) {
	st, _, err := e.GetExecutionStateSeq(ctx, id)
	return st, err
}

// GetExecutionStateSeq retrieves the current state of one execution along
// with the sequence number of its next event, used to deliver consistent
// snapshots to live subscribers
func (e *Engine) GetExecutionStateSeq(
	ctx context.Context, id api.ExecutionID,
) (*api.ExecutionState, int64, error) {
	var seq int64
	st, err := e.execExec.Exec(ctx, events.ExecutionKey(id),
		func(_ *api.ExecutionState, ag *ExecAggregator) error {
			seq = ag.NextSequence()
			return nil
		},
	)
	if err != nil {
		return nil, 0, err
	}
	if st.ID == "" {
		return nil, 0, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return st, seq, nil
}

// GetEngineState retrieves the current engine state including active
// executions and digests
func (e *Engine) GetEngineState(
	ctx context.Context,
) (*api.EngineState, error) {
	st, _, err := e.GetEngineStateSeq(ctx)
	return st, err
}

// GetEngineStateSeq retrieves the engine state along with the sequence
// number of its next event
func (e *Engine) GetEngineStateSeq(
	ctx context.Context,
) (*api.EngineState, int64, error) {
	var seq int64
	st, err := e.engineExec.Exec(ctx, events.EngineID,
		func(_ *api.EngineState, ag *EngineAggregator) error {
			seq = ag.NextSequence()
			return nil
		},
	)
	if err != nil {
		return nil, 0, err
	}
	return st, seq, nil
}

// ListExecutions returns digests of every known execution, most recently
// started first
func (e *Engine) ListExecutions(
	ctx context.Context,
) ([]*api.ExecutionDigest, error) {
	st, err := e.GetEngineState(ctx)
	if err != nil {
		return nil, err
	}

	digests := make([]*api.ExecutionDigest, 0, len(st.Digests))
	for _, d := range st.Digests {
		digests = append(digests, d)
	}
	sort.Slice(digests, func(i, j int) bool {
		if digests[i].StartedAt.Equal(digests[j].StartedAt) {
			return digests[i].ID < digests[j].ID
		}
		return digests[i].StartedAt.After(digests[j].StartedAt)
	})
	return digests, nil
}

// ValidateWorkflow checks a definition without running it, reporting
// structural errors, graph errors, and per-field config issues
func (e *Engine) ValidateWorkflow(wf *api.Workflow) *api.ValidateResponse {
	res := &api.ValidateResponse{}

	if err := wf.Validate(); err != nil {
		res.Errors = append(res.Errors, api.ValidationIssue{
			Message: err.Error(),
		})
		return res
	}

	g, err := graph.Canonicalize(wf)
	if err != nil {
		res.Errors = append(res.Errors, api.ValidationIssue{
			Message: err.Error(),
		})
		return res
	}

	for _, id := range g.Order {
		step := g.Nodes[id].Step
		_, fe := e.schemas.ValidateStep(step)
		if fe == nil {
			continue
		}
		for field, msg := range fe.Errors {
			res.Errors = append(res.Errors, api.ValidationIssue{
				StepID:  id,
				Field:   field,
				Message: msg,
			})
		}
		for field, msg := range fe.Warnings {
			res.Warnings = append(res.Warnings, api.ValidationIssue{
				StepID:  id,
				Field:   field,
				Message: msg,
			})
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func (e *Engine) eventLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return

		case event, ok := <-e.consumer.Receive():
			if !ok {
				return
			}
			e.routeEvent(event)
		}
	}
}

func (e *Engine) routeEvent(event *timebox.Event) {
	if err := e.handler(event); err != nil {
		slog.Error("Failed to handle execution lifecycle event",
			slog.String("event_type", string(event.Type)),
			log.Error(err))
	}

	if !events.IsExecutionEvent(event) {
		return
	}
	e.actorFor(events.ExecutionIDOf(event)).events <- event
}

func (e *Engine) actorFor(execID api.ExecutionID) *execActor {
	actor, loaded := e.execs.Load(execID)
	if !loaded {
		ea := &execActor{
			Engine: e,
			execID: execID,
			events: make(chan *timebox.Event, 100),
		}
		actor, loaded = e.execs.LoadOrStore(execID, ea)
		if !loaded {
			e.wg.Add(1)
			go ea.run()
		}
	}
	return actor.(*execActor)
}

// recoverExecutions resumes executions that were active when the engine
// last stopped. Steps caught mid-flight are failed; runs continue from
// whatever their event streams still allow
func (e *Engine) recoverExecutions(ctx context.Context) error {
	st, err := e.GetEngineState(ctx)
	if err != nil {
		return err
	}

	for id := range st.Active {
		if err := e.actorFor(id).resume(); err != nil {
			slog.Error("Failed to resume execution",
				log.ExecutionID(id),
				log.Error(err))
		}
	}
	return nil
}

func (e *Engine) saveEngineSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.engineExec.SaveSnapshot(ctx, events.EngineID); err != nil {
		slog.Error("Failed to save engine snapshot",
			log.Error(err))
		return
	}
	slog.Info("Engine snapshot saved")
}

func (e *Engine) handleExecutionStarted(
	_ *timebox.Event, data api.ExecutionStartedEvent,
) error {
	return e.raiseEngineEvent(context.Background(),
		api.EventTypeExecutionActivated,
		api.ExecutionActivatedEvent{
			ExecutionID: data.ExecutionID,
			WorkflowID:  data.WorkflowID,
		})
}

func (e *Engine) handleExecutionCompleted(
	_ *timebox.Event, data api.ExecutionCompletedEvent,
) error {
	return e.deactivateExecution(data.ExecutionID)
}

func (e *Engine) handleExecutionFailed(
	_ *timebox.Event, data api.ExecutionFailedEvent,
) error {
	return e.deactivateExecution(data.ExecutionID)
}

func (e *Engine) handleExecutionCancelled(
	_ *timebox.Event, data api.ExecutionCancelledEvent,
) error {
	return e.deactivateExecution(data.ExecutionID)
}

func (e *Engine) deactivateExecution(id api.ExecutionID) error {
	ctx := context.Background()

	st, err := e.GetExecutionState(ctx, id)
	if err != nil {
		return err
	}

	err = e.raiseEngineEvent(ctx, api.EventTypeExecutionDeactivated,
		api.ExecutionDeactivatedEvent{
			ExecutionID: id,
			Digest:      st.Digest(),
		})
	if err != nil {
		return err
	}

	if e.archiver != nil {
		e.wg.Add(1)
		go e.archiveExecution(st)
	}
	return nil
}

func (e *Engine) archiveExecution(st *api.ExecutionState) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key, err := e.archiver.Archive(ctx, st)
	if err != nil {
		slog.Error("Failed to archive execution",
			log.ExecutionID(st.ID),
			log.Error(err))
		return
	}

	err = e.raiseExecutionEvent(ctx, st.ID, api.EventTypeExecutionArchived,
		api.ExecutionArchivedEvent{
			ExecutionID: st.ID,
			Key:         key,
		})
	if err != nil {
		slog.Error("Failed to record archive key",
			log.ExecutionID(st.ID),
			log.Error(err))
	}
}

func (e *Engine) raiseEngineEvent(
	ctx context.Context, eventType api.EventType, data any,
) error {
	cmd := func(st *api.EngineState, ag *EngineAggregator) error {
		return events.Raise(ag, eventType, data)
	}
	_, err := e.engineExec.Exec(ctx, events.EngineID, cmd)
	return err
}

func (e *Engine) raiseExecutionEvent(
	ctx context.Context, id api.ExecutionID, eventType api.EventType,
	data any,
) error {
	cmd := func(st *api.ExecutionState, ag *ExecAggregator) error {
		return events.Raise(ag, eventType, data)
	}
	_, err := e.execExec.Exec(ctx, events.ExecutionKey(id), cmd)
	return err
}

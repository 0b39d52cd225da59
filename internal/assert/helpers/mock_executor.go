package helpers

import (
	"context"
	"sync"
	"time"

	"github.com/loomworks/loom/pkg/api"
)

type (
	// MockExecutor is a scripted step executor for testing. Responses and
	// errors are keyed by step ID, and every invocation is recorded
	MockExecutor struct {
		mu          sync.Mutex
		responses   map[api.StepID]api.Args
		errors      map[api.StepID]error
		blocked     map[api.StepID]chan struct{}
		invocations map[api.StepID][]Invocation
		invokedCh   map[api.StepID]chan struct{}
	}

	// Invocation records a single step execution request
	Invocation struct {
		Step   *api.Step
		Inputs api.Args
	}
)

// NewMockExecutor creates a new scripted executor with no responses
// configured. Steps without a configured response succeed with empty output
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		responses:   map[api.StepID]api.Args{},
		errors:      map[api.StepID]error{},
		blocked:     map[api.StepID]chan struct{}{},
		invocations: map[api.StepID][]Invocation{},
		invokedCh:   map[api.StepID]chan struct{}{},
	}
}

// SetResponse configures the output returned when the given step executes
func (m *MockExecutor) SetResponse(id api.StepID, output api.Args) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[id] = output
}

// SetError configures the given step to fail with err
func (m *MockExecutor) SetError(id api.StepID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[id] = err
}

// ClearError removes a previously configured error for the given step
func (m *MockExecutor) ClearError(id api.StepID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errors, id)
}

// Block makes the given step hang until Release is called or its context
// is cancelled
func (m *MockExecutor) Block(id api.StepID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[id] = make(chan struct{})
}

// Release unblocks a step previously configured with Block
func (m *MockExecutor) Release(id api.StepID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.blocked[id]; ok {
		close(ch)
		delete(m.blocked, id)
	}
}

// Execute implements the step executor interface against the scripted
// responses
func (m *MockExecutor) Execute(
	ctx context.Context, step *api.Step, inputs api.Args,
) (api.Args, error) {
	m.mu.Lock()
	m.invocations[step.ID] = append(m.invocations[step.ID], Invocation{
		Step:   step,
		Inputs: inputs,
	})
	if ch, ok := m.invokedCh[step.ID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	block := m.blocked[step.ID]
	err := m.errors[step.ID]
	output := m.responses[step.ID]
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if output == nil {
		output = api.Args{}
	}
	return output, nil
}

// GetInvocations returns the recorded invocations for the given step
func (m *MockExecutor) GetInvocations(id api.StepID) []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]Invocation, len(m.invocations[id]))
	copy(res, m.invocations[id])
	return res
}

// WasInvoked reports whether the given step was executed at least once
func (m *MockExecutor) WasInvoked(id api.StepID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invocations[id]) > 0
}

// WaitForInvocation blocks until the given step is executed or the timeout
// elapses. Returns true if the step was invoked
func (m *MockExecutor) WaitForInvocation(
	id api.StepID, timeout time.Duration,
) bool {
	m.mu.Lock()
	if len(m.invocations[id]) > 0 {
		m.mu.Unlock()
		return true
	}
	ch, ok := m.invokedCh[id]
	if !ok {
		ch = make(chan struct{}, 1)
		m.invokedCh[id] = ch
	}
	m.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

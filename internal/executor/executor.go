// Package executor implements the per-step-type work performed during a
// run. Executors are pure with respect to engine state: they receive a step
// and its resolved inputs and return outputs or an error.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomworks/loom/pkg/api"
)

type (
	// Executor performs the work of a single step. Implementations must
	// honor ctx cancellation on anything blocking
	Executor interface {
		Execute(context.Context, *api.Step, api.Args) (api.Args, error)
	}

	// Registry routes steps to executors by type. Step types without a
	// registered executor fall back to the simulator, so a definition never
	// fails just because its side effects aren't wired in an environment
	Registry struct {
		executors map[api.StepType]Executor
		fallback  Executor
	}
)

var (
	ErrStepExecution = errors.New("step execution failed")
	ErrCancelled     = errors.New("execution cancelled")
)

// NewRegistry creates a registry with the given fallback executor
func NewRegistry(fallback Executor) *Registry {
	return &Registry{
		executors: map[api.StepType]Executor{},
		fallback:  fallback,
	}
}

// NewDefaultRegistry wires the built-in executors over a seeded simulator
// fallback
func NewDefaultRegistry(sim *Simulated) *Registry {
	r := NewRegistry(sim)
	r.Register(api.StepTypeHTTPRequest, NewHTTP(DefaultHTTPTimeout))
	r.Register(api.StepTypeTransform, NewTransform())
	lu := NewLua()
	r.Register(api.StepTypeScript, lu)
	r.Register(api.StepTypeCondition, NewCondition(lu))
	r.Register(api.StepTypeDelay, NewDelay())
	r.Register(api.StepTypeEmail, NewEmail())
	return r
}

// Register installs an executor for a step type
func (r *Registry) Register(t api.StepType, e Executor) {
	r.executors[t] = e
}

// For returns the executor responsible for a step type
func (r *Registry) For(t api.StepType) Executor {
	if e, ok := r.executors[t]; ok {
		return e
	}
	return r.fallback
}

// Execute dispatches a step to its executor
func (r *Registry) Execute(
	ctx context.Context, step *api.Step, inputs api.Args,
) (api.Args, error) {
	res, err := r.For(step.Type).Execute(ctx, step, inputs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s", ErrCancelled, step.ID)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrStepExecution, step.ID, err)
	}
	if res == nil {
		res = api.Args{}
	}
	return res, nil
}

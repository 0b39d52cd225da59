package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loomworks/loom/pkg/api"
)

func TestExecutionTransitions(t *testing.T) {
	as := assert.New(t)

	as.True(executionTransitions.CanTransition(
		api.ExecutionRunning, api.ExecutionCompleted,
	))
	as.True(executionTransitions.CanTransition(
		api.ExecutionRunning, api.ExecutionCancelled,
	))
	as.False(executionTransitions.CanTransition(
		api.ExecutionCompleted, api.ExecutionRunning,
	))
	as.False(executionTransitions.CanTransition(
		api.ExecutionCancelled, api.ExecutionFailed,
	))

	as.False(executionTransitions.IsTerminal(api.ExecutionRunning))
	as.True(executionTransitions.IsTerminal(api.ExecutionCompleted))
	as.True(executionTransitions.IsTerminal(api.ExecutionFailed))
	as.True(executionTransitions.IsTerminal(api.ExecutionCancelled))
}

func TestStepTransitions(t *testing.T) {
	as := assert.New(t)

	as.True(stepTransitions.CanTransition(api.StepPending, api.StepRunning))
	as.True(stepTransitions.CanTransition(api.StepPending, api.StepSkipped))
	as.True(stepTransitions.CanTransition(api.StepRunning, api.StepCompleted))
	as.True(stepTransitions.CanTransition(api.StepRunning, api.StepFailed))

	as.False(stepTransitions.CanTransition(api.StepPending, api.StepCompleted))
	as.False(stepTransitions.CanTransition(api.StepRunning, api.StepSkipped))
	as.False(stepTransitions.CanTransition(api.StepCompleted, api.StepRunning))

	as.False(stepTransitions.IsTerminal(api.StepPending))
	as.False(stepTransitions.IsTerminal(api.StepRunning))
	as.True(stepTransitions.IsTerminal(api.StepCompleted))
	as.True(stepTransitions.IsTerminal(api.StepFailed))
	as.True(stepTransitions.IsTerminal(api.StepSkipped))
}

func TestFinalOutputKeying(t *testing.T) {
	as := assert.New(t)

	st := &api.ExecutionState{
		Plan: &api.ExecutionPlan{
			Order: []api.StepID{"a", "b", "c"},
			Dependents: map[api.StepID][]api.StepID{
				"a": {"b", "c"},
			},
		},
		Steps: map[api.StepID]*api.StepRecord{
			"a": {Status: api.StepCompleted, Output: api.Args{"x": 1}},
			"b": {Status: api.StepCompleted, Output: api.Args{"y": 2}},
			"c": {Status: api.StepSkipped},
		},
	}

	out := finalOutput(st)
	as.Equal(api.Args{"b": map[string]any{"y": 2}}, out)
}

func TestFailureReasonDeclaredOrder(t *testing.T) {
	as := assert.New(t)

	st := &api.ExecutionState{
		Plan: &api.ExecutionPlan{
			Order: []api.StepID{"a", "b"},
		},
		Steps: map[api.StepID]*api.StepRecord{
			"a": {Status: api.StepFailed, Error: "first"},
			"b": {Status: api.StepFailed, Error: "second"},
		},
	}

	as.Equal("step a failed: first", failureReason(st))

	st.Steps["a"] = &api.StepRecord{Status: api.StepCompleted}
	as.Equal("step b failed: second", failureReason(st))

	st.Steps["b"] = &api.StepRecord{Status: api.StepSkipped}
	as.Empty(failureReason(st))
}

func TestCollectStepInputs(t *testing.T) {
	as := assert.New(t)

	st := &api.ExecutionState{
		Input: api.Args{"tenant": "acme"},
		Plan: &api.ExecutionPlan{
			Dependencies: map[api.StepID][]api.StepID{
				"join": {"left", "right"},
			},
		},
		Steps: map[api.StepID]*api.StepRecord{
			"left":  {Status: api.StepCompleted, Output: api.Args{"n": 1}},
			"right": {Status: api.StepCompleted},
		},
	}

	inputs := collectStepInputs(st, "join")
	as.Equal("acme", inputs["tenant"])
	as.Equal(map[string]any{"n": 1}, inputs["left"])
	as.NotContains(inputs, "right")
}

package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loomworks/loom/pkg/api"
)

func TestSanitizeID(t *testing.T) {
	as := assert.New(t)

	as.Equal(api.WorkflowID("my-workflow"),
		api.SanitizeID(api.WorkflowID("My Workflow")))
	as.Equal(api.WorkflowID("order-sync-v2.1"),
		api.SanitizeID(api.WorkflowID("Order Sync! v2.1")))
	as.Equal(api.StepID("fetch"), api.SanitizeID(api.StepID("--fetch--")))
	as.Equal(api.WorkflowID(""), api.SanitizeID(api.WorkflowID("!!!")))
}

func TestArgsGetters(t *testing.T) {
	as := assert.New(t)

	args := api.Args{
		"name":  "ada",
		"count": float64(3),
		"ready": true,
		"ratio": 0.5,
	}

	as.Equal("ada", args.GetString("name", "x"))
	as.Equal("x", args.GetString("missing", "x"))
	as.Equal("x", args.GetString("count", "x"))

	as.Equal(3, args.GetInt("count", 0))
	as.Equal(7, args.GetInt("missing", 7))

	as.True(args.GetBool("ready", false))
	as.False(args.GetBool("missing", false))

	as.Equal(0.5, args.GetFloat("ratio", 0))
	as.Equal(1.5, args.GetFloat("missing", 1.5))
}

func TestArgsSet(t *testing.T) {
	as := assert.New(t)

	var empty api.Args
	set := empty.Set("a", 1)
	as.Equal(1, set["a"])

	orig := api.Args{"a": 1}
	next := orig.Set("b", 2)
	as.Equal(2, next["b"])
	as.NotContains(orig, "b")
}

func TestWorkflowValidate(t *testing.T) {
	as := assert.New(t)

	wf := &api.Workflow{}
	as.ErrorIs(wf.Validate(), api.ErrWorkflowIDEmpty)

	wf = &api.Workflow{ID: "wf"}
	as.ErrorIs(wf.Validate(), api.ErrWorkflowNameEmpty)

	wf = &api.Workflow{ID: "wf", Name: "WF"}
	as.ErrorIs(wf.Validate(), api.ErrWorkflowNoSteps)

	wf = &api.Workflow{
		ID: "wf", Name: "WF",
		Steps: []*api.Step{{ID: "a", Name: "A"}},
	}
	as.ErrorIs(wf.Validate(), api.ErrStepTypeEmpty)

	wf.Steps[0].Type = api.StepTypeManual
	as.NoError(wf.Validate())
	as.False(wf.IsNodeForm())
}

func TestPlanTerminalSteps(t *testing.T) {
	as := assert.New(t)

	plan := &api.ExecutionPlan{
		Order: []api.StepID{"a", "b", "c", "d"},
		Dependents: map[api.StepID][]api.StepID{
			"a": {"b", "c"},
			"b": {"d"},
			"c": {"d"},
		},
	}

	as.Equal([]api.StepID{"d"}, plan.TerminalSteps())
}

func TestPlanDescendants(t *testing.T) {
	as := assert.New(t)

	plan := &api.ExecutionPlan{
		Order: []api.StepID{"a", "b", "c", "d"},
		Dependents: map[api.StepID][]api.StepID{
			"a": {"b", "c"},
			"b": {"d"},
			"c": {"d"},
		},
	}

	desc := plan.Descendants("a")
	as.ElementsMatch([]api.StepID{"b", "c", "d"}, desc)

	as.ElementsMatch([]api.StepID{"d"}, plan.Descendants("b"))
	as.Empty(plan.Descendants("d"))
}

func TestExecutionStateCopyOnWrite(t *testing.T) {
	as := assert.New(t)

	st := &api.ExecutionState{
		Status: api.ExecutionRunning,
		Steps: map[api.StepID]*api.StepRecord{
			"a": {StepID: "a", Status: api.StepPending},
		},
	}

	updated := st.SetStep("a", st.Steps["a"].SetStatus(api.StepCompleted))
	as.Equal(api.StepPending, st.Steps["a"].Status)
	as.Equal(api.StepCompleted, updated.Steps["a"].Status)

	done := updated.SetStatus(api.ExecutionCompleted)
	as.Equal(api.ExecutionRunning, updated.Status)
	as.Equal(api.ExecutionCompleted, done.Status)
}

func TestProgress(t *testing.T) {
	as := assert.New(t)

	st := &api.ExecutionState{}
	as.Equal(float64(0), st.Progress())

	st = &api.ExecutionState{
		Steps: map[api.StepID]*api.StepRecord{
			"a": {Status: api.StepCompleted},
			"b": {Status: api.StepCompleted},
			"c": {Status: api.StepRunning},
			"d": {Status: api.StepPending},
		},
	}
	as.Equal(0.5, st.Progress())
	as.Equal(2, st.CountByStatus(api.StepCompleted))
	as.Equal(1, st.CountByStatus(api.StepPending))
}

func TestStatusTerminality(t *testing.T) {
	as := assert.New(t)

	as.False(api.ExecutionRunning.IsTerminal())
	as.True(api.ExecutionCompleted.IsTerminal())
	as.True(api.ExecutionFailed.IsTerminal())
	as.True(api.ExecutionCancelled.IsTerminal())

	as.False(api.StepPending.IsTerminal())
	as.False(api.StepRunning.IsTerminal())
	as.True(api.StepCompleted.IsTerminal())
	as.True(api.StepFailed.IsTerminal())
	as.True(api.StepSkipped.IsTerminal())
}

func TestDigest(t *testing.T) {
	as := assert.New(t)

	now := time.Now().UTC()
	st := &api.ExecutionState{
		ID:          "exec-1",
		WorkflowID:  "wf",
		Status:      api.ExecutionFailed,
		Error:       "step a failed",
		StartedAt:   now.Add(-time.Minute),
		CompletedAt: now,
	}

	d := st.Digest()
	as.Equal(st.ID, d.ID)
	as.Equal(st.WorkflowID, d.WorkflowID)
	as.Equal(st.Status, d.Status)
	as.Equal(st.Error, d.Error)
	as.Equal(st.CompletedAt, d.CompletedAt)
}

func TestConfigFieldClamp(t *testing.T) {
	as := assert.New(t)

	min, max := 0.0, 1.0
	f := &api.ConfigField{Min: &min, Max: &max}
	as.Equal(0.0, f.Clamp(-1))
	as.Equal(1.0, f.Clamp(2))
	as.Equal(0.5, f.Clamp(0.5))

	unbounded := &api.ConfigField{}
	as.Equal(99.0, unbounded.Clamp(99))
}

func TestStepEqual(t *testing.T) {
	as := assert.New(t)

	a := &api.Step{
		ID: "a", Name: "A", Type: api.StepTypeManual,
		DependsOn: []api.StepID{"x", "y"},
	}
	b := &api.Step{
		ID: "a", Name: "A", Type: api.StepTypeManual,
		DependsOn: []api.StepID{"y", "x"},
	}
	as.True(a.Equal(b))

	c := &api.Step{ID: "a", Name: "A", Type: api.StepTypeManual}
	as.False(a.Equal(c))
}

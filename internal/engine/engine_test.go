package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gocloud.dev/blob/memblob"

	"github.com/loomworks/loom/internal/archive"
	"github.com/loomworks/loom/internal/assert/helpers"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/pkg/api"
)

func TestDiamondCompletes(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)

		env.Mock.SetResponse("fetch", api.Args{"status": "ok"})
		env.Mock.SetResponse("join", api.Args{"done": true})

		wf := helpers.NewDiamondWorkflow("diamond")
		execID, err := env.Engine.StartExecution(
			context.Background(), wf, nil,
		)
		as.NoError(err)

		st := env.WaitForExecutionStatus(t, execID, api.ExecutionCompleted)
		as.Equal(api.ExecutionCompleted, st.Status)
		as.Equal(4, st.CountByStatus(api.StepCompleted))
		as.Empty(st.Error)
		as.False(st.CompletedAt.IsZero())

		as.Equal(api.Args{
			"join": map[string]any{"done": true},
		}, st.FinalOutput)

		as.True(env.Mock.WasInvoked("fetch"))
		as.True(env.Mock.WasInvoked("join"))
	})
}

func TestStepInputsCarryDependencyOutputs(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)

		env.Mock.SetResponse("fetch", api.Args{"status": "ok"})

		wf := helpers.NewTestWorkflow("pipeline",
			helpers.NewSimpleStep("fetch"),
			helpers.NewSimpleStep("process", "fetch"),
		)
		execID, err := env.Engine.StartExecution(
			context.Background(), wf, api.Args{"tenant": "acme"},
		)
		as.NoError(err)

		env.WaitForExecutionStatus(t, execID, api.ExecutionCompleted)

		invocations := env.Mock.GetInvocations("process")
		as.Len(invocations, 1)
		inputs := invocations[0].Inputs
		as.Equal("acme", inputs["tenant"])
		as.Equal(map[string]any{"status": "ok"}, inputs["fetch"])
	})
}

func TestFailureSkipsDescendants(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)

		env.Mock.SetError("left", errors.New("upstream busted"))

		wf := helpers.NewDiamondWorkflow("diamond")
		execID, err := env.Engine.StartExecution(
			context.Background(), wf, nil,
		)
		as.NoError(err)

		st := env.WaitForExecutionStatus(t, execID, api.ExecutionFailed)
		as.Equal(api.StepFailed, st.Steps["left"].Status)
		as.Contains(st.Steps["left"].Error, "upstream busted")
		as.Equal(api.StepSkipped, st.Steps["join"].Status)
		as.Contains(st.Steps["join"].Error, "dependency left failed")

		// the independent branch still runs to completion
		as.Equal(api.StepCompleted, st.Steps["right"].Status)
		as.Contains(st.Error, "step left failed")
	})
}

func TestIndependentBranchContinues(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)

		env.Mock.SetError("a", errors.New("boom"))

		wf := helpers.NewTestWorkflow("branches",
			helpers.NewSimpleStep("a"),
			helpers.NewSimpleStep("b", "a"),
			helpers.NewSimpleStep("c"),
		)
		execID, err := env.Engine.StartExecution(
			context.Background(), wf, nil,
		)
		as.NoError(err)

		st := env.WaitForExecutionStatus(t, execID, api.ExecutionFailed)
		as.Equal(api.StepFailed, st.Steps["a"].Status)
		as.Equal(api.StepSkipped, st.Steps["b"].Status)
		as.Equal(api.StepCompleted, st.Steps["c"].Status)
	})
}

func TestCancelExecution(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)

		env.Mock.Block("a")

		wf := helpers.NewTestWorkflow("cancellable",
			helpers.NewSimpleStep("a"),
			helpers.NewSimpleStep("b", "a"),
		)
		execID, err := env.Engine.StartExecution(
			context.Background(), wf, nil,
		)
		as.NoError(err)

		as.True(env.Mock.WaitForInvocation("a", 5*time.Second))
		as.NoError(env.Engine.CancelExecution(
			context.Background(), execID, "operator request",
		))

		st := env.WaitForExecutionStatus(t, execID, api.ExecutionCancelled)
		as.Equal("operator request", st.Error)
		as.Equal(api.StepSkipped, st.Steps["b"].Status)
		as.Contains(st.Steps["b"].Error, "execution cancelled")

		// the in-flight step finishes but its result is recorded as failed
		env.Mock.Release("a")
		rec := env.WaitForStepStatus(t, execID, "a", api.StepFailed)
		as.Equal("execution cancelled", rec.Error)
	})
}

func TestCancelErrors(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		ctx := context.Background()

		err := env.Engine.CancelExecution(ctx, "no-such-exec", "")
		as.ErrorIs(err, engine.ErrExecutionNotFound)

		wf := helpers.NewTestWorkflow("quick", helpers.NewSimpleStep("a"))
		execID, err := env.Engine.StartExecution(ctx, wf, nil)
		as.NoError(err)

		env.WaitForExecutionStatus(t, execID, api.ExecutionCompleted)
		err = env.Engine.CancelExecution(ctx, execID, "")
		as.ErrorIs(err, engine.ErrExecutionTerminal)
	})
}

func TestConditionFalseSkipsDependents(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)

		env.Mock.SetResponse("gate", api.Args{"result": false})

		gate := helpers.NewTestStep("gate", api.StepTypeCondition)
		gate.Config = api.Args{"expression": "count > 10"}

		wf := helpers.NewTestWorkflow("gated",
			gate,
			helpers.NewSimpleStep("notify", "gate"),
		)
		execID, err := env.Engine.StartExecution(
			context.Background(), wf, nil,
		)
		as.NoError(err)

		st := env.WaitForExecutionStatus(t, execID, api.ExecutionCompleted)
		as.Equal(api.StepCompleted, st.Steps["gate"].Status)
		as.Equal(api.StepSkipped, st.Steps["notify"].Status)
		as.Contains(st.Steps["notify"].Error, "condition evaluated false")
		as.False(env.Mock.WasInvoked("notify"))
	})
}

func TestConditionFalseHardFail(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)

		env.Mock.SetResponse("gate", api.Args{"result": false})

		gate := helpers.NewTestStep("gate", api.StepTypeCondition)
		gate.Config = api.Args{
			"expression": "count > 10",
			"on_false":   "fail",
		}

		wf := helpers.NewTestWorkflow("strict",
			gate,
			helpers.NewSimpleStep("notify", "gate"),
		)
		execID, err := env.Engine.StartExecution(
			context.Background(), wf, nil,
		)
		as.NoError(err)

		st := env.WaitForExecutionStatus(t, execID, api.ExecutionFailed)
		as.Equal(api.StepFailed, st.Steps["gate"].Status)
		as.Contains(st.Steps["gate"].Error, "condition evaluated false")
		as.Equal(api.StepSkipped, st.Steps["notify"].Status)
	})
}

func TestStartExecutionRejectsInvalid(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := env.Engine.StartExecution(ctx, &api.Workflow{}, nil)
		as.ErrorIs(err, api.ErrWorkflowIDEmpty)

		cyclic := helpers.NewTestWorkflow("cyclic",
			helpers.NewSimpleStep("a", "b"),
			helpers.NewSimpleStep("b", "a"),
		)
		_, err = env.Engine.StartExecution(ctx, cyclic, nil)
		as.ErrorIs(err, graph.ErrCycle)

		badConfig := helpers.NewTestWorkflow("bad-config",
			helpers.NewTestStep("req", api.StepTypeHTTPRequest),
		)
		_, err = env.Engine.StartExecution(ctx, badConfig, nil)
		as.ErrorIs(err, engine.ErrInvalidConfig)
	})
}

func TestValidateWorkflow(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)

		res := env.Engine.ValidateWorkflow(
			helpers.NewDiamondWorkflow("diamond"),
		)
		as.True(res.Valid)
		as.Empty(res.Errors)

		res = env.Engine.ValidateWorkflow(helpers.NewTestWorkflow("cyclic",
			helpers.NewSimpleStep("a", "b"),
			helpers.NewSimpleStep("b", "a"),
		))
		as.False(res.Valid)
		as.Len(res.Errors, 1)
		as.Contains(res.Errors[0].Message, "cycle")

		req := helpers.NewTestStep("req", api.StepTypeHTTPRequest)
		req.Config = api.Args{"headers": `{"broken`}
		res = env.Engine.ValidateWorkflow(
			helpers.NewTestWorkflow("issues", req),
		)
		as.False(res.Valid)
		as.Len(res.Errors, 1)
		as.Equal(api.StepID("req"), res.Errors[0].StepID)
		as.Equal("url", res.Errors[0].Field)
		as.Len(res.Warnings, 1)
		as.Equal("headers", res.Warnings[0].Field)
	})
}

func TestGetExecutionStateNotFound(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)

		_, err := env.Engine.GetExecutionState(
			context.Background(), "no-such-exec",
		)
		as.ErrorIs(err, engine.ErrExecutionNotFound)
	})
}

func TestEngineStateTracksExecutions(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		ctx := context.Background()

		wf := helpers.NewTestWorkflow("tracked", helpers.NewSimpleStep("a"))
		execID, err := env.Engine.StartExecution(ctx, wf, nil)
		as.NoError(err)

		env.WaitForExecutionStatus(t, execID, api.ExecutionCompleted)

		as.Eventually(func() bool {
			st, err := env.Engine.GetEngineState(ctx)
			if err != nil {
				return false
			}
			d, ok := st.Digests[execID]
			return ok && d.Status == api.ExecutionCompleted &&
				len(st.Active) == 0
		}, 5*time.Second, 50*time.Millisecond)

		digests, err := env.Engine.ListExecutions(ctx)
		as.NoError(err)
		as.Len(digests, 1)
		as.Equal(execID, digests[0].ID)
	})
}

func TestArchivesTerminalExecutions(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		ctx := context.Background()

		bucket := memblob.OpenBucket(nil)
		arch := archive.NewBucketArchiver(bucket, "runs")
		defer func() { _ = arch.Close() }()

		env.Engine.WithArchiver(arch)
		env.Engine.Start()

		wf := helpers.NewTestWorkflow("archived", helpers.NewSimpleStep("a"))
		execID, err := env.Engine.StartExecution(ctx, wf, nil)
		as.NoError(err)

		env.WaitForExecutionStatus(t, execID, api.ExecutionCompleted)

		as.Eventually(func() bool {
			st, err := arch.Read(ctx, execID)
			return err == nil && st.Status == api.ExecutionCompleted
		}, 5*time.Second, 50*time.Millisecond)
	})
}

func TestRestartRecoversInterruptedExecution(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)

		env.Mock.Block("a")

		wf := helpers.NewTestWorkflow("interrupted",
			helpers.NewSimpleStep("a"),
			helpers.NewSimpleStep("b", "a"),
		)
		execID, err := env.Engine.StartExecution(
			context.Background(), wf, nil,
		)
		as.NoError(err)

		as.True(env.Mock.WaitForInvocation("a", 5*time.Second))
		as.NoError(env.Engine.Stop())

		eng2 := env.NewEngineInstance()
		eng2.Start()
		defer func() { _ = eng2.Stop() }()

		as.Eventually(func() bool {
			st, err := eng2.GetExecutionState(context.Background(), execID)
			return err == nil && st.Status == api.ExecutionFailed
		}, 10*time.Second, 50*time.Millisecond)

		st, err := eng2.GetExecutionState(context.Background(), execID)
		as.NoError(err)
		as.Equal(api.StepFailed, st.Steps["a"].Status)
		as.Contains(st.Steps["a"].Error, "interrupted by engine restart")
		as.Equal(api.StepSkipped, st.Steps["b"].Status)
	})
}

package helpers

import "github.com/loomworks/loom/pkg/api"

// NewTestStep creates a step of the given type with the given dependencies
func NewTestStep(
	id api.StepID, stepType api.StepType, deps ...api.StepID,
) *api.Step {
	return &api.Step{
		ID:        id,
		Name:      "Step " + string(id),
		Type:      stepType,
		DependsOn: deps,
	}
}

// NewSimpleStep creates a manual step with the given dependencies
func NewSimpleStep(id api.StepID, deps ...api.StepID) *api.Step {
	return NewTestStep(id, api.StepTypeManual, deps...)
}

// NewTestWorkflow creates a step-form workflow from the given steps
func NewTestWorkflow(id api.WorkflowID, steps ...*api.Step) *api.Workflow {
	return &api.Workflow{
		ID:    id,
		Name:  "Workflow " + string(id),
		Steps: steps,
	}
}

// NewDiamondWorkflow creates a four step diamond: fetch fans out to two
// branches that join at a final step
func NewDiamondWorkflow(id api.WorkflowID) *api.Workflow {
	return NewTestWorkflow(id,
		NewSimpleStep("fetch"),
		NewSimpleStep("left", "fetch"),
		NewSimpleStep("right", "fetch"),
		NewSimpleStep("join", "left", "right"),
	)
}

// NewNodeFormWorkflow creates the node/connection form equivalent of the
// given step-form workflow, with all nodes at the origin
func NewNodeFormWorkflow(wf *api.Workflow) *api.Workflow {
	nodes := make([]*api.Node, 0, len(wf.Steps))
	var conns []*api.Connection
	for _, step := range wf.Steps {
		n := &api.Node{Step: *step}
		n.DependsOn = nil
		nodes = append(nodes, n)
		for _, dep := range step.DependsOn {
			conns = append(conns, &api.Connection{
				SourceID: dep,
				TargetID: step.ID,
			})
		}
	}
	return &api.Workflow{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Nodes:       nodes,
		Connections: conns,
	}
}

package graph

import (
	"slices"

	"github.com/loomworks/loom/internal/layout"
	"github.com/loomworks/loom/pkg/api"
)

// ToNodeForm converts a canonical graph into the node/connection form,
// assigning canvas positions with the deterministic layout projection.
// DependsOn is cleared on the emitted nodes; connections alone carry the
// edge set
func ToNodeForm(g *Graph, wf *api.Workflow) *api.Workflow {
	positions := layout.Project(g.Order)

	res := *wf
	res.Steps = nil
	res.Nodes = make([]*api.Node, 0, len(g.Order))
	res.Connections = nil

	for _, id := range g.Order {
		step := *g.Nodes[id].Step
		step.DependsOn = nil
		res.Nodes = append(res.Nodes, &api.Node{
			Step:     step,
			Position: positions[id],
		})

		for _, dep := range g.Nodes[id].Dependencies {
			res.Connections = append(res.Connections, &api.Connection{
				SourceID:   dep,
				TargetID:   id,
				SourcePort: "output",
				TargetPort: "input",
			})
		}
	}
	return &res
}

// ToStepForm converts a canonical graph into the flat step-list form with
// explicit depends_on sets. Positions are display metadata and are dropped
func ToStepForm(g *Graph, wf *api.Workflow) *api.Workflow {
	res := *wf
	res.Nodes = nil
	res.Connections = nil
	res.Steps = make([]*api.Step, 0, len(g.Order))

	for _, id := range g.Order {
		step := *g.Nodes[id].Step
		step.DependsOn = slices.Clone(g.Nodes[id].Dependencies)
		res.Steps = append(res.Steps, &step)
	}
	return &res
}

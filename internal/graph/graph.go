package graph

import (
	"slices"

	"github.com/loomworks/loom/internal/util"
	"github.com/loomworks/loom/pkg/api"
)

type (
	// Node is one entry in the canonical adjacency structure
	Node struct {
		Step         *api.Step
		Dependencies []api.StepID
		Dependents   []api.StepID
	}

	// Graph is the canonical DAG for one workflow: an adjacency map plus
	// the declared order of step IDs, which breaks ties deterministically
	// in layout and scheduling
	Graph struct {
		Nodes map[api.StepID]*Node
		Order []api.StepID
	}
)

// Canonicalize merges either definition form into one canonical graph. The
// node form's connections and any depends_on carried on nodes are unioned
// and deduplicated, so the same edge declared both ways appears once
func Canonicalize(wf *api.Workflow) (*Graph, error) {
	steps := collectSteps(wf)

	g := &Graph{Nodes: map[api.StepID]*Node{}}
	for _, step := range steps {
		if _, ok := g.Nodes[step.ID]; ok {
			return nil, &DuplicateIDError{ID: step.ID}
		}
		g.Nodes[step.ID] = &Node{Step: step}
		g.Order = append(g.Order, step.ID)
	}

	edges, err := collectEdges(wf, g)
	if err != nil {
		return nil, err
	}

	for _, id := range g.Order {
		node := g.Nodes[id]
		for _, dep := range g.Order {
			if edges.Contains(edge{from: dep, to: id}) {
				node.Dependencies = append(node.Dependencies, dep)
			}
			if edges.Contains(edge{from: id, to: dep}) {
				node.Dependents = append(node.Dependents, dep)
			}
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

type edge struct {
	from api.StepID
	to   api.StepID
}

func collectSteps(wf *api.Workflow) []*api.Step {
	if wf.IsNodeForm() {
		steps := make([]*api.Step, len(wf.Nodes))
		for i, node := range wf.Nodes {
			step := node.Step
			steps[i] = &step
		}
		return steps
	}
	return wf.Steps
}

func collectEdges(wf *api.Workflow, g *Graph) (util.Set[edge], error) {
	edges := util.Set[edge]{}

	add := func(from, to api.StepID, declaredBy api.StepID) error {
		if _, ok := g.Nodes[from]; !ok {
			return &DanglingReferenceError{
				MissingID:    from,
				ReferencedBy: declaredBy,
			}
		}
		if _, ok := g.Nodes[to]; !ok {
			return &DanglingReferenceError{
				MissingID:    to,
				ReferencedBy: declaredBy,
			}
		}
		edges.Add(edge{from: from, to: to})
		return nil
	}

	for _, id := range g.Order {
		for _, dep := range g.Nodes[id].Step.DependsOn {
			if err := add(dep, id, id); err != nil {
				return nil, err
			}
		}
	}

	if wf.IsNodeForm() {
		for _, conn := range wf.Connections {
			err := add(conn.SourceID, conn.TargetID, conn.SourceID)
			if err != nil {
				return nil, err
			}
		}
	}

	return edges, nil
}

// checkAcyclic runs a DFS with a recursion-stack marker; a back-edge to a
// node currently on the stack signals a cycle
func (g *Graph) checkAcyclic() error {
	const (
		unvisited = iota
		onStack
		done
	)

	state := make(map[api.StepID]int, len(g.Nodes))
	var stack []api.StepID

	var visit func(id api.StepID) *CycleError
	visit = func(id api.StepID) *CycleError {
		state[id] = onStack
		stack = append(stack, id)

		for _, dep := range g.Nodes[id].Dependents {
			switch state[dep] {
			case onStack:
				start := slices.Index(stack, dep)
				involved := slices.Clone(stack[start:])
				return &CycleError{InvolvedIDs: involved}
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.Order {
		if state[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopoOrder returns a topological ordering of the graph using Kahn's
// algorithm. Ties between simultaneously ready steps are broken by declared
// order, so the result is deterministic for a given definition
func (g *Graph) TopoOrder() []api.StepID {
	inDegree := make(map[api.StepID]int, len(g.Nodes))
	for id, node := range g.Nodes {
		inDegree[id] = len(node.Dependencies)
	}

	ready := make([]api.StepID, 0, len(g.Nodes))
	for _, id := range g.Order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	pos := make(map[api.StepID]int, len(g.Order))
	for i, id := range g.Order {
		pos[id] = i
	}

	var order []api.StepID
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dep := range g.Nodes[next].Dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = insertByDeclared(ready, dep, pos)
			}
		}
	}
	return order
}

func insertByDeclared(
	ready []api.StepID, id api.StepID, pos map[api.StepID]int,
) []api.StepID {
	at := len(ready)
	for i, existing := range ready {
		if pos[id] < pos[existing] {
			at = i
			break
		}
	}
	return slices.Insert(ready, at, id)
}

// Plan compiles the graph into the execution plan carried by a run
func (g *Graph) Plan() *api.ExecutionPlan {
	plan := &api.ExecutionPlan{
		Steps:        make(map[api.StepID]*api.Step, len(g.Nodes)),
		Dependencies: make(map[api.StepID][]api.StepID, len(g.Nodes)),
		Dependents:   make(map[api.StepID][]api.StepID, len(g.Nodes)),
		Order:        slices.Clone(g.Order),
	}
	for id, node := range g.Nodes {
		plan.Steps[id] = node.Step
		plan.Dependencies[id] = slices.Clone(node.Dependencies)
		plan.Dependents[id] = slices.Clone(node.Dependents)
	}
	return plan
}

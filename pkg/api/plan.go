package api

type (
	// ExecutionPlan is the compiled, canonical form of a workflow graph
	// carried inside an execution: the steps, their declared order, and the
	// dependency edges in both directions
	ExecutionPlan struct {
		Steps        map[StepID]*Step    `json:"steps"`
		Dependencies map[StepID][]StepID `json:"dependencies"`
		Dependents   map[StepID][]StepID `json:"dependents"`
		Order        []StepID            `json:"order"`
	}
)

// GetStep returns the step definition for the given ID, or nil
func (p *ExecutionPlan) GetStep(id StepID) *Step {
	return p.Steps[id]
}

// TerminalSteps returns the IDs of steps with no dependents, in declared
// order. Their outputs form an execution's final output
func (p *ExecutionPlan) TerminalSteps() []StepID {
	var res []StepID
	for _, id := range p.Order {
		if len(p.Dependents[id]) == 0 {
			res = append(res, id)
		}
	}
	return res
}

// Descendants returns the transitive dependents of a step, the subgraph
// that can no longer run once the step fails
func (p *ExecutionPlan) Descendants(id StepID) []StepID {
	seen := map[StepID]bool{id: true}
	queue := append([]StepID{}, p.Dependents[id]...)

	var res []StepID
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		res = append(res, next)
		queue = append(queue, p.Dependents[next]...)
	}
	return res
}

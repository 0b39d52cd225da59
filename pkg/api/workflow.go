package api

import (
	"errors"
	"fmt"
	"time"
)

type (
	// StepType is a string tag selecting a step's behavior and config schema
	StepType string

	// Step is the canonical unit of work in a workflow. DependsOn lists the
	// IDs of steps whose completion this step waits for
	Step struct {
		Config      Args     `json:"config,omitempty"`
		ID          StepID   `json:"id"`
		Name        string   `json:"name"`
		Type        StepType `json:"type"`
		Description string   `json:"description,omitempty"`
		DependsOn   []StepID `json:"depends_on,omitempty"`
	}

	// Position is display metadata for the visual canvas; it carries no
	// execution semantics
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Node is the canvas representation of a Step: the same identity plus a
	// position
	Node struct {
		Step
		Position Position `json:"position"`
	}

	// Connection is the edge representation used by the node form. It is
	// equivalent to target.DependsOn containing source
	Connection struct {
		SourceID   StepID `json:"source_id"`
		TargetID   StepID `json:"target_id"`
		SourcePort string `json:"source_port,omitempty"`
		TargetPort string `json:"target_port,omitempty"`
	}

	// Workflow is a workflow definition in either of its two equivalent
	// forms: a flat step list with explicit dependencies, or a node list
	// with explicit connections
	Workflow struct {
		CreatedAt   time.Time     `json:"created_at,omitempty"`
		UpdatedAt   time.Time     `json:"updated_at,omitempty"`
		ID          WorkflowID    `json:"id"`
		Name        string        `json:"name"`
		Description string        `json:"description,omitempty"`
		Steps       []*Step       `json:"steps,omitempty"`
		Nodes       []*Node       `json:"nodes,omitempty"`
		Connections []*Connection `json:"connections,omitempty"`
	}
)

const (
	StepTypeManual       StepType = "manual"
	StepTypeHTTPRequest  StepType = "http_request"
	StepTypeTransform    StepType = "transform"
	StepTypeScript       StepType = "script"
	StepTypeCondition    StepType = "condition"
	StepTypeDelay        StepType = "delay"
	StepTypeEmail        StepType = "email"
	StepTypeWebhook      StepType = "webhook"
	StepTypeAICompletion StepType = "ai_completion"
)

var (
	ErrWorkflowIDEmpty   = errors.New("workflow ID empty")
	ErrWorkflowNameEmpty = errors.New("workflow name empty")
	ErrWorkflowNoSteps   = errors.New("workflow has no steps")
	ErrStepIDEmpty       = errors.New("step ID empty")
	ErrStepNameEmpty     = errors.New("step name empty")
	ErrStepTypeEmpty     = errors.New("step type empty")
)

// Validate checks the structural invariants of a single step. Referential
// checks (dependency resolution, acyclicity) belong to graph
// canonicalization
func (s *Step) Validate() error {
	if s.ID == "" {
		return ErrStepIDEmpty
	}
	if s.Name == "" {
		return fmt.Errorf("%w: %s", ErrStepNameEmpty, s.ID)
	}
	if s.Type == "" {
		return fmt.Errorf("%w: %s", ErrStepTypeEmpty, s.ID)
	}
	return nil
}

// Validate checks that a workflow definition is well-formed in whichever
// form it uses
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return ErrWorkflowIDEmpty
	}
	if w.Name == "" {
		return ErrWorkflowNameEmpty
	}
	if len(w.Steps) == 0 && len(w.Nodes) == 0 {
		return ErrWorkflowNoSteps
	}

	for _, step := range w.Steps {
		if err := step.Validate(); err != nil {
			return err
		}
	}
	for _, node := range w.Nodes {
		if err := node.Step.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsNodeForm reports whether the definition uses the node/connection form
func (w *Workflow) IsNodeForm() bool {
	return len(w.Nodes) > 0
}

func (s *Step) Equal(other *Step) bool {
	if s.ID != other.ID || s.Name != other.Name || s.Type != other.Type {
		return false
	}
	if s.Description != other.Description {
		return false
	}
	if len(s.DependsOn) != len(other.DependsOn) {
		return false
	}
	deps := make(map[StepID]bool, len(s.DependsOn))
	for _, dep := range s.DependsOn {
		deps[dep] = true
	}
	for _, dep := range other.DependsOn {
		if !deps[dep] {
			return false
		}
	}
	return true
}

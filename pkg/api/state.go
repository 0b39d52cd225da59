package api

import (
	"maps"
	"time"
)

type (
	// ExecutionStatus represents the current state of a workflow execution
	ExecutionStatus string

	// StepStatus represents the current state of a step execution
	StepStatus string

	// StepRecord is the execution record of a single step within a run
	StepRecord struct {
		StartedAt   time.Time  `json:"started_at,omitempty"`
		CompletedAt time.Time  `json:"completed_at,omitempty"`
		Inputs      Args       `json:"inputs,omitempty"`
		Output      Args       `json:"output,omitempty"`
		StepID      StepID     `json:"step_id"`
		Status      StepStatus `json:"status"`
		Error       string     `json:"error,omitempty"`
		Duration    int64      `json:"duration,omitempty"`
	}

	// ExecutionState is the complete state of one workflow execution. It is
	// only ever mutated by applying events; all setters return copies
	ExecutionState struct {
		StartedAt   time.Time              `json:"started_at"`
		CompletedAt time.Time              `json:"completed_at,omitempty"`
		LastUpdated time.Time              `json:"last_updated"`
		Plan        *ExecutionPlan         `json:"plan"`
		Steps       map[StepID]*StepRecord `json:"steps"`
		Input       Args                   `json:"input,omitempty"`
		FinalOutput Args                   `json:"final_output,omitempty"`
		ID          ExecutionID            `json:"id"`
		WorkflowID  WorkflowID             `json:"workflow_id"`
		Status      ExecutionStatus        `json:"status"`
		Error       string                 `json:"error,omitempty"`
	}

	// ActiveExecutionInfo tracks basic metadata for in-flight executions
	ActiveExecutionInfo struct {
		StartedAt   time.Time   `json:"started_at"`
		ExecutionID ExecutionID `json:"execution_id"`
		WorkflowID  WorkflowID  `json:"workflow_id"`
	}

	// ExecutionDigest provides summary information about an execution
	ExecutionDigest struct {
		StartedAt   time.Time       `json:"started_at"`
		CompletedAt time.Time       `json:"completed_at,omitempty"`
		ID          ExecutionID     `json:"id"`
		WorkflowID  WorkflowID      `json:"workflow_id"`
		Status      ExecutionStatus `json:"status"`
		Error       string          `json:"error,omitempty"`
	}

	// EngineState is the global state of the engine: which executions are
	// active and a digest of every execution it has seen
	EngineState struct {
		LastUpdated time.Time                            `json:"last_updated"`
		Active      map[ExecutionID]*ActiveExecutionInfo `json:"active"`
		Digests     map[ExecutionID]*ExecutionDigest     `json:"digests"`
	}
)

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// IsTerminal returns true once an execution can no longer change
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed ||
		s == ExecutionCancelled
}

// IsTerminal returns true once a step record can no longer change
func (s StepStatus) IsTerminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// SetStatus returns a new ExecutionState with the updated status
func (st *ExecutionState) SetStatus(s ExecutionStatus) *ExecutionState {
	res := *st
	res.Status = s
	return &res
}

// SetStep returns a new ExecutionState with the step record replaced
func (st *ExecutionState) SetStep(id StepID, rec *StepRecord) *ExecutionState {
	res := *st
	res.Steps = maps.Clone(st.Steps)
	res.Steps[id] = rec
	return &res
}

// SetCompletedAt returns a new ExecutionState with the completion time set
func (st *ExecutionState) SetCompletedAt(t time.Time) *ExecutionState {
	res := *st
	res.CompletedAt = t
	return &res
}

// SetFinalOutput returns a new ExecutionState with the final output set
func (st *ExecutionState) SetFinalOutput(out Args) *ExecutionState {
	res := *st
	res.FinalOutput = maps.Clone(out)
	return &res
}

// SetError returns a new ExecutionState with the error message set
func (st *ExecutionState) SetError(err string) *ExecutionState {
	res := *st
	res.Error = err
	return &res
}

// SetLastUpdated returns a new ExecutionState with last updated time set
func (st *ExecutionState) SetLastUpdated(t time.Time) *ExecutionState {
	res := *st
	res.LastUpdated = t
	return &res
}

// SetStatus returns a new StepRecord with the updated status
func (r *StepRecord) SetStatus(s StepStatus) *StepRecord {
	res := *r
	res.Status = s
	return &res
}

// SetStartedAt returns a new StepRecord with the start timestamp set
func (r *StepRecord) SetStartedAt(t time.Time) *StepRecord {
	res := *r
	res.StartedAt = t
	return &res
}

// SetCompletedAt returns a new StepRecord with the completion time set
func (r *StepRecord) SetCompletedAt(t time.Time) *StepRecord {
	res := *r
	res.CompletedAt = t
	return &res
}

// SetInputs returns a new StepRecord with the input arguments set
func (r *StepRecord) SetInputs(inputs Args) *StepRecord {
	res := *r
	res.Inputs = maps.Clone(inputs)
	return &res
}

// SetOutput returns a new StepRecord with the output arguments set
func (r *StepRecord) SetOutput(output Args) *StepRecord {
	res := *r
	res.Output = maps.Clone(output)
	return &res
}

// SetDuration returns a new StepRecord with the execution duration set
func (r *StepRecord) SetDuration(dur int64) *StepRecord {
	res := *r
	res.Duration = dur
	return &res
}

// SetError returns a new StepRecord with the error message set
func (r *StepRecord) SetError(err string) *StepRecord {
	res := *r
	res.Error = err
	return &res
}

// Progress returns the fraction of steps that have completed
func (st *ExecutionState) Progress() float64 {
	if len(st.Steps) == 0 {
		return 0
	}
	completed := 0
	for _, rec := range st.Steps {
		if rec.Status == StepCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(st.Steps))
}

// CountByStatus returns the number of step records in the given status
func (st *ExecutionState) CountByStatus(s StepStatus) int {
	count := 0
	for _, rec := range st.Steps {
		if rec.Status == s {
			count++
		}
	}
	return count
}

// Digest summarizes the execution for listings
func (st *ExecutionState) Digest() *ExecutionDigest {
	return &ExecutionDigest{
		ID:          st.ID,
		WorkflowID:  st.WorkflowID,
		Status:      st.Status,
		StartedAt:   st.StartedAt,
		CompletedAt: st.CompletedAt,
		Error:       st.Error,
	}
}

// SetActive returns a new EngineState with the execution marked active
func (st *EngineState) SetActive(
	id ExecutionID, info *ActiveExecutionInfo,
) *EngineState {
	res := *st
	res.Active = maps.Clone(st.Active)
	res.Active[id] = info
	return &res
}

// DeleteActive returns a new EngineState with the execution inactive
func (st *EngineState) DeleteActive(id ExecutionID) *EngineState {
	res := *st
	res.Active = maps.Clone(st.Active)
	delete(res.Active, id)
	return &res
}

// SetDigest returns a new EngineState with the execution digest replaced
func (st *EngineState) SetDigest(
	id ExecutionID, digest *ExecutionDigest,
) *EngineState {
	res := *st
	res.Digests = maps.Clone(st.Digests)
	res.Digests[id] = digest
	return &res
}

// SetLastUpdated returns a new EngineState with the timestamp set
func (st *EngineState) SetLastUpdated(t time.Time) *EngineState {
	res := *st
	res.LastUpdated = t
	return &res
}

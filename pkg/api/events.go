package api

type (
	// EventType identifies the kind of an execution or engine event
	EventType string

	// ExecutionStartedEvent is emitted when a workflow run begins
	ExecutionStartedEvent struct {
		Plan        *ExecutionPlan `json:"plan"`
		Input       Args           `json:"input,omitempty"`
		ExecutionID ExecutionID    `json:"execution_id"`
		WorkflowID  WorkflowID     `json:"workflow_id"`
	}

	// StepRunningEvent is emitted when a step begins execution
	StepRunningEvent struct {
		Inputs      Args        `json:"inputs,omitempty"`
		ExecutionID ExecutionID `json:"execution_id"`
		StepID      StepID      `json:"step_id"`
	}

	// StepCompletedEvent is emitted when a step completes successfully
	StepCompletedEvent struct {
		Output      Args        `json:"output,omitempty"`
		ExecutionID ExecutionID `json:"execution_id"`
		StepID      StepID      `json:"step_id"`
		Duration    int64       `json:"duration"`
	}

	// StepFailedEvent is emitted when a step fails
	StepFailedEvent struct {
		ExecutionID ExecutionID `json:"execution_id"`
		StepID      StepID      `json:"step_id"`
		Error       string      `json:"error"`
	}

	// StepSkippedEvent is emitted when a step is skipped because an
	// ancestor failed or the run was cancelled
	StepSkippedEvent struct {
		ExecutionID ExecutionID `json:"execution_id"`
		StepID      StepID      `json:"step_id"`
		Reason      string      `json:"reason"`
	}

	// ExecutionCompletedEvent is emitted when every step completed
	ExecutionCompletedEvent struct {
		FinalOutput Args        `json:"final_output,omitempty"`
		ExecutionID ExecutionID `json:"execution_id"`
	}

	// ExecutionFailedEvent is emitted when a run ends with failed steps
	ExecutionFailedEvent struct {
		ExecutionID ExecutionID `json:"execution_id"`
		Error       string      `json:"error"`
	}

	// ExecutionCancelledEvent is emitted when a run is cancelled by the user
	ExecutionCancelledEvent struct {
		ExecutionID ExecutionID `json:"execution_id"`
		Reason      string      `json:"reason,omitempty"`
	}

	// ExecutionActivatedEvent is raised on the engine aggregate when a run
	// starts
	ExecutionActivatedEvent struct {
		ExecutionID ExecutionID `json:"execution_id"`
		WorkflowID  WorkflowID  `json:"workflow_id"`
	}

	// ExecutionDeactivatedEvent is raised on the engine aggregate when a
	// run reaches a terminal status
	ExecutionDeactivatedEvent struct {
		Digest      *ExecutionDigest `json:"digest"`
		ExecutionID ExecutionID      `json:"execution_id"`
	}

	// ExecutionArchivedEvent is emitted after a terminal run is written to
	// the archive bucket
	ExecutionArchivedEvent struct {
		ExecutionID ExecutionID `json:"execution_id"`
		Key         string      `json:"key"`
	}
)

const (
	EventTypeExecutionStarted     EventType = "execution_started"
	EventTypeExecutionCompleted   EventType = "execution_completed"
	EventTypeExecutionFailed      EventType = "execution_failed"
	EventTypeExecutionCancelled   EventType = "execution_cancelled"
	EventTypeExecutionArchived    EventType = "execution_archived"
	EventTypeStepRunning          EventType = "step_running"
	EventTypeStepCompleted        EventType = "step_completed"
	EventTypeStepFailed           EventType = "step_failed"
	EventTypeStepSkipped          EventType = "step_skipped"
	EventTypeExecutionActivated   EventType = "execution_activated"
	EventTypeExecutionDeactivated EventType = "execution_deactivated"
)

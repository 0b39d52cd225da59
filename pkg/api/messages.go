package api

type (
	// ExecuteRequest contains parameters for starting a workflow run
	ExecuteRequest struct {
		Input Args `json:"input,omitempty"`
	}

	// ExecutionStartedResponse is returned when a run start succeeds
	ExecutionStartedResponse struct {
		Message     string      `json:"message"`
		ExecutionID ExecutionID `json:"execution_id"`
		WorkflowID  WorkflowID  `json:"workflow_id"`
	}

	// ExecutionResponse wraps an execution state with derived progress
	ExecutionResponse struct {
		Execution *ExecutionState `json:"execution"`
		Progress  float64         `json:"progress"`
	}

	// ExecutionsListResponse contains execution digests
	ExecutionsListResponse struct {
		Executions []*ExecutionDigest `json:"executions"`
		Count      int                `json:"count"`
	}

	// WorkflowsListResponse contains stored workflow definitions
	WorkflowsListResponse struct {
		Workflows []*Workflow `json:"workflows"`
		Count     int         `json:"count"`
	}

	// ValidationIssue describes one problem found in a definition
	ValidationIssue struct {
		StepID  StepID `json:"step_id,omitempty"`
		Field   string `json:"field,omitempty"`
		Message string `json:"message"`
	}

	// ValidateResponse reports the outcome of definition validation
	ValidateResponse struct {
		Errors   []ValidationIssue `json:"errors,omitempty"`
		Warnings []ValidationIssue `json:"warnings,omitempty"`
		Valid    bool              `json:"valid"`
	}

	// LayoutResponse contains projected canvas positions per step
	LayoutResponse struct {
		Positions map[StepID]Position `json:"positions"`
	}

	// SchemaResponse contains the config field schema for one step type
	SchemaResponse struct {
		Type   StepType       `json:"type"`
		Fields []*ConfigField `json:"fields"`
	}

	// MessageResponse contains a simple message string
	MessageResponse struct {
		Message string `json:"message"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)

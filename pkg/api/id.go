package api

import (
	"regexp"
	"strings"
)

type (
	// WorkflowID is a unique identifier for a workflow definition
	WorkflowID string

	// StepID is a unique identifier for a step within a workflow
	StepID string

	// ExecutionID is a unique identifier for a single workflow run
	ExecutionID string
)

// InvalidIDChars matches characters not permitted in workflow and step IDs.
// Valid characters are: letters, digits, underscore, dot, hyphen, plus, space
var InvalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-+ ]`)

// SanitizeID lowercases an ID, removes invalid characters, replaces spaces
// with hyphens, and trims leading and trailing hyphens
func SanitizeID[T ~string](id T) T {
	lower := strings.ToLower(string(id))
	sanitized := InvalidIDChars.ReplaceAllString(lower, "")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	return T(strings.Trim(sanitized, "-"))
}

package graph

import (
	"errors"
	"fmt"

	"github.com/loomworks/loom/pkg/api"
)

type (
	// CycleError reports a dependency cycle. InvolvedIDs lists the steps on
	// the cycle in the order they were encountered
	CycleError struct {
		InvolvedIDs []api.StepID
	}

	// DanglingReferenceError reports a dependency or connection endpoint
	// that does not resolve to a declared step
	DanglingReferenceError struct {
		MissingID    api.StepID
		ReferencedBy api.StepID
	}

	// DuplicateIDError reports a step ID declared more than once
	DuplicateIDError struct {
		ID api.StepID
	}
)

var (
	ErrCycle             = errors.New("workflow contains a dependency cycle")
	ErrDanglingReference = errors.New("dependency references unknown step")
	ErrDuplicateID       = errors.New("duplicate step ID")
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %v", ErrCycle, e.InvolvedIDs)
}

func (e *CycleError) Unwrap() error { return ErrCycle }

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s: %s (referenced by %s)",
		ErrDanglingReference, e.MissingID, e.ReferencedBy)
}

func (e *DanglingReferenceError) Unwrap() error { return ErrDanglingReference }

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateID, e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

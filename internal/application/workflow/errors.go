package workflow

import (
	"errors"
	"fmt"
	"strings"

	domainwf "github.com/buffrsign/esign-orchestrator/internal/domain/workflow"
)

var (
	// ErrNotFound matches every NotFoundError
	ErrNotFound = errors.New("workflow not found")

	// ErrValidation matches every ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState matches every InvalidStateError
	ErrInvalidState = errors.New("invalid workflow state")
)

// NotFoundError is returned for unknown workflow ids
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("workflow %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError lists every violation found in a request
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InvalidStateError names the rejected transition and the state it was attempted from
type InvalidStateError struct {
	Transition string
	Current    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s workflow in state %s", e.Transition, e.Current)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState || target == domainwf.ErrInvalidTransition
}

package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced by the services. Everything here is scoped to one
// instance or validation; nothing is fatal to the process.
var (
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates the operation is illegal for the record's
	// current status (e.g. executing a step of a terminal instance).
	ErrInvalidState = errors.New("invalid state")

	// ErrStepIndexOutOfRange indicates the instance's step pointer is past the
	// end of its snapshot.
	ErrStepIndexOutOfRange = errors.New("step index out of range")

	// ErrConcurrentModification indicates an optimistic-lock conflict. Always
	// safe to retry after re-reading.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrMissingOutput indicates a human step was executed without output.
	ErrMissingOutput = errors.New("output is required for human steps")

	// ErrClientEmailRequired indicates a client-validation step was started
	// without a client contact identity.
	ErrClientEmailRequired = errors.New("client email is required for validation steps")

	// ErrExpired indicates a time-boxed resource is past its window. Terminal,
	// not retryable.
	ErrExpired = errors.New("expired")

	// ErrAlreadyCompleted indicates a validation was already resolved.
	ErrAlreadyCompleted = errors.New("already completed")

	// ErrStepsRequired indicates a definition was submitted without steps.
	ErrStepsRequired = errors.New("workflow must have at least one step")

	// ErrUnknownStepKind indicates a step kind outside the supported union.
	ErrUnknownStepKind = errors.New("unknown step kind")
)

// ExecutorError is a failure of the AI provider or its transport. The engine
// treats all executor failures uniformly: the step execution is sealed as
// failed and the step stays current, so the caller may retry.
type ExecutorError struct {
	Status  int
	Message string
}

func (e *ExecutorError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ai executor: status %d: %s", e.Status, e.Message)
	}
	return "ai executor: " + e.Message
}

// IsValidationError reports whether err is malformed or missing caller input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingOutput) ||
		errors.Is(err, ErrClientEmailRequired) ||
		errors.Is(err, ErrStepsRequired) ||
		errors.Is(err, ErrUnknownStepKind)
}

// IsExecutorError reports whether err originated in the AI executor.
func IsExecutorError(err error) bool {
	var ee *ExecutorError
	return errors.As(err, &ee)
}

// IsConflictError reports whether err should map to an HTTP conflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrAlreadyCompleted)
}

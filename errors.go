package provision

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTransaction is returned when no persisted transaction exists.
	ErrNoTransaction = errors.New("no provisioning transaction in progress")

	// ErrNotInitialized is returned when the manager is used before
	// Initialize or LoadExisting.
	ErrNotInitialized = errors.New("transaction not initialized")

	// ErrPlanMismatch is returned when the operations re-supplied on resume
	// do not line up with the persisted steps.
	ErrPlanMismatch = errors.New("operations do not match persisted steps")

	// ErrCorruptState is returned when neither the state file nor its backup
	// can be decoded.
	ErrCorruptState = errors.New("transaction state is corrupt")

	// ErrOperationNotBound is returned when a pending step has no operation.
	ErrOperationNotBound = errors.New("no operation bound to step")

	// ErrValidationRejected is the cause recorded when Validate returns false
	// without an error.
	ErrValidationRejected = errors.New("precondition not met")

	// ErrUnknownStep is returned by ledger transitions on an unknown step id.
	ErrUnknownStep = errors.New("unknown step")
)

// ValidationFailure reports that an operation's precondition did not hold.
// No side effect occurred.
type ValidationFailure struct {
	Step string
	error
}

// ValidationFailed wraps err as a ValidationFailure for step.
func ValidationFailed(step string, err error) error {
	if err == nil {
		err = ErrValidationRejected
	}
	return &ValidationFailure{Step: step, error: fmt.Errorf("%s validation failed: %w", step, err)}
}

// Unwrap returns the underlying cause.
func (e *ValidationFailure) Unwrap() error {
	return errors.Unwrap(e.error)
}

// ExecutionFailure reports that an operation's Execute failed, possibly after
// a partial effect.
type ExecutionFailure struct {
	Step string
	error
}

// ExecutionFailed wraps err as an ExecutionFailure for step.
func ExecutionFailed(step string, err error) error {
	return &ExecutionFailure{Step: step, error: fmt.Errorf("%s failed: %w", step, err)}
}

// Unwrap returns the underlying cause.
func (e *ExecutionFailure) Unwrap() error {
	return errors.Unwrap(e.error)
}

// RollbackFailure reports that an operation's Rollback failed during
// compensation. It never aborts the remaining rollbacks.
type RollbackFailure struct {
	Step string
	error
}

// RollbackFailed wraps err as a RollbackFailure for step.
func RollbackFailed(step string, err error) error {
	return &RollbackFailure{Step: step, error: fmt.Errorf("rollback of %s failed: %w", step, err)}
}

// Unwrap returns the underlying cause.
func (e *RollbackFailure) Unwrap() error {
	return errors.Unwrap(e.error)
}

// IllegalTransitionError is returned when a step status change is not
// permitted by the step state machine.
type IllegalTransitionError struct {
	StepID string
	From   StepStatus
	To     StepStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s for step %s", e.From, e.To, e.StepID)
}

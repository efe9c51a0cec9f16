package provision

import (
	"context"
	"fmt"
)

type ExecuteFunc func(ctx context.Context) (any, error)
type RollbackFunc func(ctx context.Context) error
type ValidateFunc func(ctx context.Context) (bool, error)
type AlreadyDoneFunc func(ctx context.Context) bool

// FuncOperation is an implementation of Operation that uses ordinary functions.
type FuncOperation struct {
	BaseOperation
	executeFunc     ExecuteFunc
	rollbackFunc    RollbackFunc
	validateFunc    ValidateFunc
	alreadyDoneFunc AlreadyDoneFunc
}

// FuncOption customizes a FuncOperation.
type FuncOption func(*FuncOperation)

// WithValidate sets the precondition check.
func WithValidate(fn ValidateFunc) FuncOption {
	return func(o *FuncOperation) {
		o.validateFunc = fn
	}
}

// WithAlreadyDone sets the idempotency probe.
func WithAlreadyDone(fn AlreadyDoneFunc) FuncOption {
	return func(o *FuncOperation) {
		o.alreadyDoneFunc = fn
	}
}

// WithDescription overrides the label recorded in the ledger.
func WithDescription(description string) FuncOption {
	return func(o *FuncOperation) {
		o.description = description
	}
}

// NoOpRollback is a RollbackFunc for operations that are intentionally not
// undone.
func NoOpRollback(context.Context) error {
	return nil
}

// NewFuncOperation constructs a FuncOperation from an execute/rollback pair.
// A nil rollback is replaced by NoOpRollback.
func NewFuncOperation(name string, execute ExecuteFunc, rollback RollbackFunc, opts ...FuncOption) *FuncOperation {
	if rollback == nil {
		rollback = NoOpRollback
	}
	op := &FuncOperation{
		BaseOperation: NewBaseOperation(name, name),
		executeFunc:   execute,
		rollbackFunc:  rollback,
	}
	for _, opt := range opts {
		opt(op)
	}
	return op
}

// Execute implements Operation.
func (o *FuncOperation) Execute(ctx context.Context) (any, error) {
	if o.executeFunc == nil {
		return nil, fmt.Errorf("operation %s has no execute function", o.name)
	}
	value, err := o.executeFunc(ctx)
	if err != nil {
		return nil, err
	}
	o.MarkExecuted()
	return value, nil
}

// Rollback implements Operation. It only invokes the rollback function when
// Execute succeeded earlier.
func (o *FuncOperation) Rollback(ctx context.Context) error {
	if !o.Executed() {
		return nil
	}
	if err := o.rollbackFunc(ctx); err != nil {
		return err
	}
	o.ClearExecuted()
	return nil
}

// Validate implements Operation.
func (o *FuncOperation) Validate(ctx context.Context) (bool, error) {
	if o.validateFunc == nil {
		return true, nil
	}
	return o.validateFunc(ctx)
}

// IsAlreadyDone implements Operation.
func (o *FuncOperation) IsAlreadyDone(ctx context.Context) bool {
	if o.alreadyDoneFunc == nil {
		return false
	}
	return o.alreadyDoneFunc(ctx)
}

// String implements the fmt.Stringer interface for FuncOperation.
func (o *FuncOperation) String() string {
	return fmt.Sprintf("FuncOperation[%s]", o.name)
}

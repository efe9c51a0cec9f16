package provision

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// boundOperation pairs an operation with the label used in logs and errors.
type boundOperation struct {
	name string
	op   Operation
}

// compensate undoes executed operations in reverse order. Each rollback
// failure is logged and collected; the remaining rollbacks still run.
func compensate(ctx context.Context, logger zerolog.Logger, executed []boundOperation) []error {
	var failures []error
	for i := len(executed) - 1; i >= 0; i-- {
		bound := executed[i]
		logger.Info().Str("step", bound.name).Msg("rolling back")
		if err := bound.op.Rollback(ctx); err != nil {
			failure := RollbackFailed(bound.name, err)
			logger.Error().Err(err).Str("step", bound.name).Msg("rollback failed, continuing")
			failures = append(failures, failure)
		}
	}
	return failures
}

// CompositeResult is returned by a successful CompositeOperation.Execute.
type CompositeResult struct {
	Executed []string `json:"executed"`
	Skipped  []string `json:"skipped,omitempty"`
}

// CompositeFailure is returned when a child of a CompositeOperation fails.
// It names the child that triggered the rollback and carries the original
// error; rollback errors are attached but never replace it.
type CompositeFailure struct {
	Index          int
	Step           string
	Err            error
	RollbackErrors []error
}

func (e *CompositeFailure) Error() string {
	if len(e.RollbackErrors) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (%d rollback error(s))", e.Err, len(e.RollbackErrors))
}

func (e *CompositeFailure) Unwrap() error {
	return e.Err
}

// CompositeOperation executes a list of operations in order and, on the
// first failure, rolls back the ones it executed in reverse order.
//
// A CompositeOperation is itself an Operation, so it can be nested inside a
// transaction: its Rollback undoes whatever its last Execute applied.
type CompositeOperation struct {
	BaseOperation
	ops      []Operation
	executed []boundOperation
	skipped  []string
}

// NewCompositeOperation creates a composite over ops.
func NewCompositeOperation(name string, ops ...Operation) *CompositeOperation {
	return &CompositeOperation{
		BaseOperation: NewBaseOperation(name, name),
		ops:           ops,
	}
}

// Execute runs each child: already-done children are skipped, the others are
// validated and executed. A validation or execution failure triggers
// best-effort compensation of the children executed in this call.
func (c *CompositeOperation) Execute(ctx context.Context) (any, error) {
	c.executed = nil
	c.skipped = nil

	for i, op := range c.ops {
		name := describe(op)

		if op.IsAlreadyDone(ctx) {
			c.Logger().Debug().Str("step", name).Msg("already done, skipping")
			c.skipped = append(c.skipped, name)
			continue
		}

		var failure error
		if ok, err := op.Validate(ctx); err != nil || !ok {
			failure = ValidationFailed(name, err)
		} else if _, err := op.Execute(ctx); err != nil {
			failure = ExecutionFailed(name, err)
		}

		if failure != nil {
			c.Logger().Error().Err(failure).Str("step", name).Msg("operation failed, compensating")
			rollbackErrs := compensate(ctx, *c.Logger(), c.executed)
			c.executed = nil
			return nil, &CompositeFailure{
				Index:          i,
				Step:           name,
				Err:            failure,
				RollbackErrors: rollbackErrs,
			}
		}

		c.executed = append(c.executed, boundOperation{name: name, op: op})
	}

	result := CompositeResult{Skipped: c.skipped}
	for _, bound := range c.executed {
		result.Executed = append(result.Executed, bound.name)
	}
	return result, nil
}

// Rollback undoes the children applied by the last successful Execute.
// Every child is attempted; the failures are joined.
func (c *CompositeOperation) Rollback(ctx context.Context) error {
	failures := compensate(ctx, *c.Logger(), c.executed)
	c.executed = nil
	if len(failures) == 0 {
		return nil
	}
	return &CompositeFailure{
		Index:          -1,
		Step:           c.Name(),
		Err:            failures[0],
		RollbackErrors: failures,
	}
}

// Validate implements Operation. Children are validated individually.
func (c *CompositeOperation) Validate(context.Context) (bool, error) {
	return true, nil
}

// IsAlreadyDone reports true when every child is already done.
func (c *CompositeOperation) IsAlreadyDone(ctx context.Context) bool {
	for _, op := range c.ops {
		if !op.IsAlreadyDone(ctx) {
			return false
		}
	}
	return true
}

// Operations returns the composite's children in execution order.
func (c *CompositeOperation) Operations() []Operation {
	return append([]Operation(nil), c.ops...)
}

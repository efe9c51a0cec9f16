package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuncOperationRollbackOnlyAfterExecute(t *testing.T) {
	rolledBack := 0
	op := NewFuncOperation("A",
		func(context.Context) (any, error) { return "ok", nil },
		func(context.Context) error {
			rolledBack++
			return nil
		},
	)

	require.NoError(t, op.Rollback(context.Background()))
	assert.Zero(t, rolledBack)

	value, err := op.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", value)

	require.NoError(t, op.Rollback(context.Background()))
	require.NoError(t, op.Rollback(context.Background()))
	assert.Equal(t, 1, rolledBack)
}

func TestFuncOperationDefaults(t *testing.T) {
	op := NewFuncOperation("A", nil, nil, WithDescription("Do A"))

	ok, err := op.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, op.IsAlreadyDone(context.Background()))
	assert.Equal(t, "Do A", op.Description())
	assert.Equal(t, "A", op.Name())
	assert.Equal(t, "FuncOperation[A]", op.String())

	_, err = op.Execute(context.Background())
	assert.ErrorContains(t, err, "no execute function")
}

func TestFailedExecuteIsNotRolledBack(t *testing.T) {
	rolledBack := false
	op := NewFuncOperation("A",
		func(context.Context) (any, error) { return nil, errors.New("x") },
		func(context.Context) error {
			rolledBack = true
			return nil
		},
	)
	_, err := op.Execute(context.Background())
	require.Error(t, err)
	require.NoError(t, op.Rollback(context.Background()))
	assert.False(t, rolledBack)
}

func TestResultMetadata(t *testing.T) {
	assert.Nil(t, resultMetadata(nil))
	assert.Equal(t, map[string]any{"a": 1}, resultMetadata(map[string]any{"a": 1}))
	assert.Equal(t, map[string]any{"result": 3}, resultMetadata(3))
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("cause")

	assert.ErrorIs(t, ValidationFailed("s", cause), cause)
	assert.ErrorIs(t, ExecutionFailed("s", cause), cause)
	assert.ErrorIs(t, RollbackFailed("s", cause), cause)
	assert.EqualError(t, ValidationFailed("s", nil), "s validation failed: precondition not met")

	err := &IllegalTransitionError{StepID: "x", From: StepCompleted, To: StepInProgress}
	assert.Equal(t, "illegal transition completed -> in_progress for step x", err.Error())
}

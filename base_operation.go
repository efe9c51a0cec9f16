package provision

import (
	"context"

	"github.com/rs/zerolog"
)

// BaseOperation provides the bookkeeping shared by concrete operations.
// Embed it and implement Execute and Rollback; Validate and IsAlreadyDone
// default to "valid" and "not done".
type BaseOperation struct {
	name        string
	description string
	executed    bool
	logger      zerolog.Logger
}

// NewBaseOperation creates a BaseOperation. An empty description falls back
// to the name.
func NewBaseOperation(name, description string) BaseOperation {
	if description == "" {
		description = name
	}
	return BaseOperation{
		name:        name,
		description: description,
		logger:      zerolog.Nop(),
	}
}

// Name returns the operation's short name.
func (b *BaseOperation) Name() string {
	return b.name
}

// Description implements Describer.
func (b *BaseOperation) Description() string {
	return b.description
}

// Validate implements Operation.
func (b *BaseOperation) Validate(context.Context) (bool, error) {
	return true, nil
}

// IsAlreadyDone implements Operation.
func (b *BaseOperation) IsAlreadyDone(context.Context) bool {
	return false
}

// MarkExecuted records that this operation's side effect has happened, so a
// later Rollback knows there is something to undo.
func (b *BaseOperation) MarkExecuted() {
	b.executed = true
}

// ClearExecuted resets the executed flag, typically at the end of Rollback.
func (b *BaseOperation) ClearExecuted() {
	b.executed = false
}

// Executed reports whether MarkExecuted was called since the last rollback.
func (b *BaseOperation) Executed() bool {
	return b.executed
}

// SetLogger attaches a logger, tagged with the operation name.
func (b *BaseOperation) SetLogger(logger zerolog.Logger) {
	b.logger = logger.With().Str("operation", b.name).Logger()
}

// Logger returns the operation's logger.
func (b *BaseOperation) Logger() *zerolog.Logger {
	return &b.logger
}

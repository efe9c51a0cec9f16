package provision

import (
	"context"
	"fmt"
)

// Operation is the unit of reversible provisioning work.
//
// The executor calls IsAlreadyDone first; when it reports true the operation
// is skipped and neither Execute nor Rollback applies to the run. Otherwise
// Validate runs immediately before Execute. Rollback undoes a prior
// successful Execute and must be a harmless no-op when there is nothing to
// undo.
type Operation interface {
	Execute(ctx context.Context) (any, error)
	Rollback(ctx context.Context) error
	Validate(ctx context.Context) (bool, error)
	IsAlreadyDone(ctx context.Context) bool
}

// Describer is implemented by operations that carry a human-readable label.
type Describer interface {
	Description() string
}

// ConfigurationReporter is implemented by operations that discover facts
// about the host while executing (e.g. a resolved install path). The
// reported values are merged into the transaction configuration after a
// successful Execute.
type ConfigurationReporter interface {
	DiscoveredConfiguration() map[string]any
}

// Metadata is the caller-supplied context stored alongside a transaction.
// None of it is interpreted by the executor.
type Metadata struct {
	Mode          string
	NodeType      string
	Configuration map[string]any
}

// describe returns the label used for op in the ledger and in errors.
func describe(op Operation) string {
	if d, ok := op.(Describer); ok {
		if desc := d.Description(); desc != "" {
			return desc
		}
	}
	return fmt.Sprintf("%T", op)
}

// resultMetadata converts an Execute result into step metadata.
func resultMetadata(value any) map[string]any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	default:
		return map[string]any{"result": v}
	}
}

package ops

import (
	"context"
	"fmt"
	"io/fs"
	"path"

	"github.com/fortressi/provision"
	"github.com/fortressi/provision/host"
)

// MakeDirectory creates a directory, optionally chowning it to a user.
// Rollback removes the directory only when this operation created it.
type MakeDirectory struct {
	provision.BaseOperation
	host host.Host

	Path  string
	Perm  fs.FileMode
	Owner string
	// ConfigKey, when set, reports Path under this key in the transaction
	// configuration.
	ConfigKey string

	created bool
}

// NewMakeDirectory creates a MakeDirectory for p.
func NewMakeDirectory(h host.Host, p string, perm fs.FileMode, owner string) *MakeDirectory {
	return &MakeDirectory{
		BaseOperation: provision.NewBaseOperation("mkdir", fmt.Sprintf("Create directory %s", p)),
		host:          h,
		Path:          p,
		Perm:          perm,
		Owner:         owner,
	}
}

func (o *MakeDirectory) Validate(context.Context) (bool, error) {
	if !path.IsAbs(o.Path) {
		return false, fmt.Errorf("directory path %q is not absolute", o.Path)
	}
	return true, nil
}

func (o *MakeDirectory) IsAlreadyDone(context.Context) bool {
	exists, err := o.host.Exists(o.Path)
	return err == nil && exists
}

func (o *MakeDirectory) Execute(ctx context.Context) (any, error) {
	existed, err := o.host.Exists(o.Path)
	if err != nil {
		return nil, err
	}
	if !existed {
		if err := o.host.MkdirAll(o.Path, o.Perm); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", o.Path, err)
		}
	}

	if o.Owner != "" {
		if _, err := o.host.Run(ctx, "chown", "-R", o.Owner+":"+o.Owner, o.Path); err != nil {
			if !existed {
				// undo our own partial effect; the executor only rolls back
				// operations that succeeded
				if rmErr := o.host.RemoveAll(o.Path); rmErr != nil {
					o.Logger().Error().Err(rmErr).Str("path", o.Path).Msg("failed to remove directory after chown failure")
				}
			}
			return nil, fmt.Errorf("chown %s: %w", o.Path, err)
		}
	}

	o.created = !existed
	o.MarkExecuted()
	return map[string]any{"path": o.Path, "created": o.created}, nil
}

func (o *MakeDirectory) Rollback(context.Context) error {
	if !o.Executed() {
		return nil
	}
	if o.created {
		o.Logger().Info().Str("path", o.Path).Msg("removing directory")
		if err := o.host.RemoveAll(o.Path); err != nil {
			return fmt.Errorf("remove %s: %w", o.Path, err)
		}
	}
	o.created = false
	o.ClearExecuted()
	return nil
}

func (o *MakeDirectory) DiscoveredConfiguration() map[string]any {
	if o.ConfigKey == "" {
		return nil
	}
	return map[string]any{o.ConfigKey: o.Path}
}

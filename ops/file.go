package ops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/fortressi/provision"
	"github.com/fortressi/provision/host"
)

// WriteFile writes a file, remembering what it replaced. Rollback restores
// the previous contents, or removes the file if it did not exist.
type WriteFile struct {
	provision.BaseOperation
	host host.Host

	Path    string
	Content []byte
	Perm    fs.FileMode

	existed  bool
	previous []byte
}

// NewWriteFile creates a WriteFile for p.
func NewWriteFile(h host.Host, p string, content []byte, perm fs.FileMode) *WriteFile {
	return &WriteFile{
		BaseOperation: provision.NewBaseOperation("write-file", fmt.Sprintf("Write file %s", p)),
		host:          h,
		Path:          p,
		Content:       content,
		Perm:          perm,
	}
}

func (o *WriteFile) Validate(context.Context) (bool, error) {
	if !path.IsAbs(o.Path) {
		return false, fmt.Errorf("file path %q is not absolute", o.Path)
	}
	return true, nil
}

func (o *WriteFile) IsAlreadyDone(context.Context) bool {
	current, err := o.host.ReadFile(o.Path)
	return err == nil && bytes.Equal(current, o.Content)
}

func (o *WriteFile) Execute(context.Context) (any, error) {
	previous, err := o.host.ReadFile(o.Path)
	switch {
	case err == nil:
		o.existed = true
		o.previous = previous
	case errors.Is(err, fs.ErrNotExist):
		o.existed = false
		o.previous = nil
	default:
		return nil, fmt.Errorf("read %s: %w", o.Path, err)
	}

	if err := o.host.WriteFile(o.Path, o.Content, o.Perm); err != nil {
		return nil, fmt.Errorf("write %s: %w", o.Path, err)
	}
	o.MarkExecuted()
	return map[string]any{"path": o.Path, "replaced": o.existed}, nil
}

func (o *WriteFile) Rollback(context.Context) error {
	if !o.Executed() {
		return nil
	}
	if o.existed {
		o.Logger().Info().Str("path", o.Path).Msg("restoring previous contents")
		if err := o.host.WriteFile(o.Path, o.previous, o.Perm); err != nil {
			return fmt.Errorf("restore %s: %w", o.Path, err)
		}
	} else {
		o.Logger().Info().Str("path", o.Path).Msg("removing file")
		if err := o.host.RemoveAll(o.Path); err != nil {
			return fmt.Errorf("remove %s: %w", o.Path, err)
		}
	}
	o.ClearExecuted()
	return nil
}

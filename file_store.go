package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultStatePath is the well-known location of the provisioning ledger.
const DefaultStatePath = "/var/lib/nodeprov/transaction.json"

// FileStore provides a file-based implementation of Store that persists
// the transaction as a JSON file with a sibling backup copy.
type FileStore struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex // Protects file operations
}

// FileStoreOption customizes a FileStore.
type FileStoreOption func(*FileStore)

// WithStoreLogger sets the logger used to report backup fallbacks.
func WithStoreLogger(logger zerolog.Logger) FileStoreOption {
	return func(f *FileStore) {
		f.logger = logger
	}
}

// NewFileStore creates a file-based store for the state file at path.
func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	if path == "" {
		path = DefaultStatePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	f := &FileStore{
		path:   path,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Path returns the primary state file path.
func (f *FileStore) Path() string {
	return f.path
}

// BackupPath returns the backup state file path.
func (f *FileStore) BackupPath() string {
	return f.path + ".backup"
}

func (f *FileStore) tmpPath() string {
	return f.path + ".tmp"
}

// Save persists the state. The previous primary is copied to the backup
// first; on the very first save the backup receives the new contents, so
// both copies exist once Save returns.
func (f *FileStore) Save(ctx context.Context, state TransactionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	data = append(data, '\n')

	previous, err := os.ReadFile(f.path)
	switch {
	case err == nil && json.Valid(previous):
	case err == nil || errors.Is(err, os.ErrNotExist):
		// a torn primary is never promoted to backup
		previous = data
	default:
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if err := writeFileAtomic(f.BackupPath(), previous, 0o600); err != nil {
		return fmt.Errorf("failed to write backup state file: %w", err)
	}
	if err := writeFileAtomic(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Load retrieves the state. A missing or undecodable primary falls back to
// the backup; ErrNoTransaction is returned only when neither file exists.
func (f *FileStore) Load(ctx context.Context) (*TransactionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// crash artifacts from an interrupted write
	for _, tmp := range []string{f.tmpPath(), f.BackupPath() + ".tmp"} {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn().Err(err).Str("path", tmp).Msg("failed to remove temp state file")
		}
	}

	state, primaryErr := readState(f.path)
	if primaryErr == nil {
		return state, nil
	}

	state, backupErr := readState(f.BackupPath())
	if backupErr == nil {
		f.logger.Warn().Err(primaryErr).Str("path", f.path).
			Msg("state file unreadable, recovered from backup")
		return state, nil
	}

	if errors.Is(primaryErr, os.ErrNotExist) && errors.Is(backupErr, os.ErrNotExist) {
		return nil, ErrNoTransaction
	}
	return nil, fmt.Errorf("%w: %v; backup: %v", ErrCorruptState, primaryErr, backupErr)
}

// Delete removes the state file, its backup and any temp file.
func (f *FileStore) Delete(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range []string{f.path, f.BackupPath(), f.tmpPath(), f.BackupPath() + ".tmp"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}

// Lock takes an exclusive advisory lock next to the state file. The returned
// function releases it.
func (f *FileStore) Lock() (func(), error) {
	unlock, err := flockExclusive(f.path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("failed to lock state file: %w", err)
	}
	return unlock, nil
}

func readState(path string) (*TransactionState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state TransactionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return &state, nil
}

// writeFileAtomic writes data to path+".tmp", fsyncs it, renames it into
// place and fsyncs the parent directory.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return syncDir(filepath.Dir(path))
}

// syncDir persists directory metadata; no-op on Windows.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

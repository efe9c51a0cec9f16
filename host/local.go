package host

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCommandTimeout bounds every command run by Local.
const DefaultCommandTimeout = 10 * time.Minute

// Local is the Host backed by the real operating system.
type Local struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// LocalOption customizes a Local host.
type LocalOption func(*Local)

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) LocalOption {
	return func(l *Local) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger used to trace commands.
func WithLogger(logger zerolog.Logger) LocalOption {
	return func(l *Local) {
		l.logger = logger
	}
}

// NewLocal creates a Local host.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		timeout: DefaultCommandTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes name with args. A non-zero exit is reported as *ExitError
// alongside the captured Result.
func (l *Local) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	start := time.Now()
	err := cmd.Run()
	res := Result{Stdout: outBuf.Bytes(), Stderr: errBuf.Bytes()}

	l.logger.Debug().Str("cmd", commandLine(name, args)).Dur("took", time.Since(start)).Err(err).Msg("command finished")

	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		res.Code = -1
		return res, ErrTimeout
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.Code = ee.ExitCode()
			return res, &ExitError{Command: commandLine(name, args), Code: res.Code, Stderr: errBuf.String()}
		}
		res.Code = -1
		return res, err
	}
	return res, nil
}

// Exists reports whether path exists.
func (l *Local) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (l *Local) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (l *Local) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data atomically: temp file, fsync, rename.
func (l *Local) WriteFile(path string, data []byte, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

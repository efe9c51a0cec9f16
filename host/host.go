// Package host abstracts the machine being provisioned: privileged command
// execution and filesystem access. Operations compose a Host instead of
// calling the OS directly so they can run against the in-memory fake.
package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Result is the outcome of a command.
type Result struct {
	Stdout []byte
	Stderr []byte
	Code   int
}

// ErrTimeout is returned when a command exceeds its timeout.
var ErrTimeout = errors.New("command timed out")

// ExitError is returned when a command exits non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Code, msg)
}

// Host is the mutable machine under provisioning.
type Host interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
	Exists(path string) (bool, error)
	MkdirAll(path string, perm fs.FileMode) error
	RemoveAll(path string) error
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm fs.FileMode) error
}

// ExitCode returns the exit code carried by err, 0 for nil and -1 when err
// is not an ExitError.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return -1
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

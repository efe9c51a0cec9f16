package host

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/fortressi/provision/set"
)

// Handler scripts the outcome of a command on a Memory host.
type Handler func(args []string) (Result, error)

// Memory is an in-memory Host. Files and directories live in maps; commands
// are recorded and answered by registered handlers, succeeding by default.
type Memory struct {
	mu          sync.Mutex
	files       map[string][]byte
	dirs        set.Set[string]
	handlers    map[string]Handler
	commands    []string
	writeErrors map[string]error
}

// NewMemory creates an empty in-memory host with "/" present.
func NewMemory() *Memory {
	m := &Memory{
		files:       make(map[string][]byte),
		handlers:    make(map[string]Handler),
		writeErrors: make(map[string]error),
	}
	m.dirs.Insert("/")
	return m
}

// Handle registers h for command name.
func (m *Memory) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// FailCommand makes every invocation of name exit with code and stderr.
func (m *Memory) FailCommand(name string, code int, stderr string) {
	m.Handle(name, func(args []string) (Result, error) {
		return Result{Stderr: []byte(stderr), Code: code},
			&ExitError{Command: commandLine(name, args), Code: code, Stderr: stderr}
	})
}

// FailWrite makes WriteFile on p return err.
func (m *Memory) FailWrite(p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErrors[path.Clean(p)] = err
}

// Commands returns the command lines run so far.
func (m *Memory) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// Ran reports whether a command line starting with prefix was run.
func (m *Memory) Ran(prefix string) bool {
	for _, c := range m.Commands() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (m *Memory) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Code: -1}, err
	}
	m.mu.Lock()
	m.commands = append(m.commands, commandLine(name, args))
	h, ok := m.handlers[name]
	m.mu.Unlock()

	if !ok {
		return Result{}, nil
	}
	return h(args)
}

func (m *Memory) Exists(p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	if _, ok := m.files[p]; ok {
		return true, nil
	}
	return m.dirs.Contains(p), nil
}

func (m *Memory) MkdirAll(p string, _ fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	if _, ok := m.files[p]; ok {
		return fmt.Errorf("mkdir %s: not a directory", p)
	}
	m.mkdirAllLocked(p)
	return nil
}

func (m *Memory) mkdirAllLocked(p string) {
	for p != "/" && p != "." {
		m.dirs.Insert(p)
		p = path.Dir(p)
	}
}

func (m *Memory) RemoveAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	prefix := strings.TrimSuffix(p, "/") + "/"
	for f := range m.files {
		if f == p || strings.HasPrefix(f, prefix) {
			delete(m.files, f)
		}
	}
	for _, d := range m.dirs.Sorted(func(a, b string) bool { return a < b }) {
		if d == p || strings.HasPrefix(d, prefix) {
			m.dirs.Remove(d)
		}
	}
	m.dirs.Insert("/")
	return nil
}

func (m *Memory) ReadFile(p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path.Clean(p)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) WriteFile(p string, data []byte, _ fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	if err, ok := m.writeErrors[p]; ok {
		return err
	}
	if m.dirs.Contains(p) {
		return fmt.Errorf("write %s: is a directory", p)
	}
	m.mkdirAllLocked(path.Dir(p))
	m.files[p] = append([]byte(nil), data...)
	return nil
}

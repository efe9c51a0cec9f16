package ops

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortressi/provision/host"
)

func TestUnitRender(t *testing.T) {
	out, err := Unit{
		Name:             "node",
		User:             "node",
		WorkingDirectory: "/var/lib/node",
		ExecStart:        "/usr/local/bin/node run",
		After:            []string{"network-online.target"},
		Environment:      map[string]string{"B": "2", "A": "1"},
	}.Render()
	require.NoError(t, err)

	assert.Equal(t, `[Unit]
Description=node
After=network-online.target

[Service]
Type=simple
User=node
WorkingDirectory=/var/lib/node
ExecStart=/usr/local/bin/node run
Restart=on-failure
Environment="A=1"
Environment="B=2"

[Install]
WantedBy=multi-user.target
`, string(out))
}

func newUnitOp(t *testing.T, h host.Host) *WriteServiceUnit {
	t.Helper()
	op, err := NewWriteServiceUnit(h, Unit{Name: "node", User: "node", ExecStart: "/usr/local/bin/node run"}, "")
	require.NoError(t, err)
	return op
}

func TestWriteServiceUnit(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	op := newUnitOp(t, h)

	assert.Equal(t, "/etc/systemd/system/node.service", op.Path())
	assert.False(t, op.IsAlreadyDone(ctx))

	_, err := op.Execute(ctx)
	require.NoError(t, err)
	assert.True(t, op.IsAlreadyDone(ctx))
	assert.True(t, h.Ran("systemctl daemon-reload"))

	require.NoError(t, op.Rollback(ctx))
	exists, _ := h.Exists(op.Path())
	assert.False(t, exists)
}

func TestWriteServiceUnitRestoresPrevious(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	require.NoError(t, h.WriteFile("/etc/systemd/system/node.service", []byte("old"), 0o644))

	op := newUnitOp(t, h)
	_, err := op.Execute(ctx)
	require.NoError(t, err)
	require.NoError(t, op.Rollback(ctx))

	data, err := h.ReadFile(op.Path())
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestWriteServiceUnitUndoesWriteWhenReloadFails(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	h.FailCommand("systemctl", 1, "Failed to connect to bus")

	op := newUnitOp(t, h)
	_, err := op.Execute(ctx)
	require.Error(t, err)

	exists, _ := h.Exists(op.Path())
	assert.False(t, exists)
}

func TestWriteServiceUnitWriteFailure(t *testing.T) {
	h := host.NewMemory()
	h.FailWrite("/etc/systemd/system/node.service", errors.New("read-only file system"))

	_, err := newUnitOp(t, h).Execute(context.Background())
	assert.ErrorContains(t, err, "read-only file system")
}

func inactiveSystemd(h *host.Memory, enabled bool) {
	h.Handle("systemctl", func(args []string) (host.Result, error) {
		switch args[0] {
		case "is-enabled":
			if enabled {
				return host.Result{}, nil
			}
			return host.Result{Code: 1}, &host.ExitError{Command: "systemctl is-enabled", Code: 1}
		case "is-active":
			return host.Result{Code: 3}, &host.ExitError{Command: "systemctl is-active", Code: 3}
		}
		return host.Result{}, nil
	})
}

func TestEnableService(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	inactiveSystemd(h, false)

	op := NewEnableService(h, "node")
	assert.False(t, op.IsAlreadyDone(ctx))

	_, err := op.Execute(ctx)
	require.NoError(t, err)
	assert.True(t, h.Ran("systemctl enable --now node"))

	require.NoError(t, op.Rollback(ctx))
	assert.True(t, h.Ran("systemctl disable --now node"))
}

func TestEnableServiceRollbackOnlyStopsWhenPreviouslyEnabled(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	inactiveSystemd(h, true)

	op := NewEnableService(h, "node")
	_, err := op.Execute(ctx)
	require.NoError(t, err)
	require.NoError(t, op.Rollback(ctx))

	assert.True(t, h.Ran("systemctl stop node"))
	assert.False(t, h.Ran("systemctl disable"))
}

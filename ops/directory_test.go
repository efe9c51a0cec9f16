package ops

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortressi/provision/host"
)

func TestMakeDirectory(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	op := NewMakeDirectory(h, "/var/lib/node", 0o750, "node")
	op.ConfigKey = "data_dir"

	ok, err := op.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, op.IsAlreadyDone(ctx))

	_, err = op.Execute(ctx)
	require.NoError(t, err)
	assert.True(t, op.IsAlreadyDone(ctx))
	assert.True(t, h.Ran("chown -R node:node /var/lib/node"))
	assert.Equal(t, map[string]any{"data_dir": "/var/lib/node"}, op.DiscoveredConfiguration())

	require.NoError(t, op.Rollback(ctx))
	exists, _ := h.Exists("/var/lib/node")
	assert.False(t, exists)
}

func TestMakeDirectoryKeepsExisting(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	require.NoError(t, h.MkdirAll("/srv/data", 0o755))

	op := NewMakeDirectory(h, "/srv/data", 0o750, "")
	_, err := op.Execute(ctx)
	require.NoError(t, err)
	require.NoError(t, op.Rollback(ctx))

	exists, _ := h.Exists("/srv/data")
	assert.True(t, exists, "rollback must not remove a directory it did not create")
}

func TestMakeDirectoryCleansUpFailedChown(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	h.FailCommand("chown", 1, "invalid user")

	op := NewMakeDirectory(h, "/var/lib/node", 0o750, "ghost")
	_, err := op.Execute(ctx)
	require.Error(t, err)

	exists, _ := h.Exists("/var/lib/node")
	assert.False(t, exists)
	assert.False(t, op.Executed())
}

func TestMakeDirectoryRejectsRelativePath(t *testing.T) {
	ok, err := NewMakeDirectory(host.NewMemory(), "data", 0o750, "").Validate(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
}

// stuckRemoveHost refuses to remove anything.
type stuckRemoveHost struct {
	*host.Memory
}

func (stuckRemoveHost) RemoveAll(string) error {
	return errors.New("device busy")
}

func TestMakeDirectoryLogsFailedCleanup(t *testing.T) {
	ctx := context.Background()
	mem := host.NewMemory()
	mem.FailCommand("chown", 1, "invalid user")

	var logs bytes.Buffer
	op := NewMakeDirectory(stuckRemoveHost{mem}, "/var/lib/node", 0o750, "ghost")
	op.SetLogger(zerolog.New(&logs))

	_, err := op.Execute(ctx)
	require.ErrorContains(t, err, "chown /var/lib/node")
	assert.Contains(t, logs.String(), `"level":"error"`)
	assert.Contains(t, logs.String(), "device busy")
	assert.Contains(t, logs.String(), "failed to remove directory after chown failure")
}

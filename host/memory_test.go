package host

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFilesystem(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.MkdirAll("/var/lib/node/keys", 0o750))
	for _, p := range []string{"/var", "/var/lib", "/var/lib/node", "/var/lib/node/keys"} {
		ok, err := m.Exists(p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}

	require.NoError(t, m.WriteFile("/var/lib/node/keys/id", []byte("k"), 0o600))
	data, err := m.ReadFile("/var/lib/node/keys/id")
	require.NoError(t, err)
	assert.Equal(t, "k", string(data))

	require.NoError(t, m.RemoveAll("/var/lib/node"))
	ok, _ := m.Exists("/var/lib/node/keys/id")
	assert.False(t, ok)
	ok, _ = m.Exists("/var/lib")
	assert.True(t, ok)

	_, err = m.ReadFile("/var/lib/node/keys/id")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMemoryCommands(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	res, err := m.Run(ctx, "systemctl", "daemon-reload")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Code)

	m.FailCommand("id", 1, "no such user")
	_, err = m.Run(ctx, "id", "-u", "node")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, err.Error(), "no such user")

	assert.Equal(t, []string{"systemctl daemon-reload", "id -u node"}, m.Commands())
	assert.True(t, m.Ran("id -u"))
}

func TestMemoryFailWrite(t *testing.T) {
	m := NewMemory()
	boom := errors.New("disk full")
	m.FailWrite("/etc/x", boom)
	assert.ErrorIs(t, m.WriteFile("/etc/x", nil, 0o644), boom)
}

package ops

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortressi/provision"
	"github.com/fortressi/provision/host"
)

func TestFailedUnitWriteRollsBackDirectoryButKeepsPackages(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	h.FailCommand("dpkg-query", 1, "")
	h.FailWrite("/etc/systemd/system/node.service", errors.New("no space left on device"))

	unit, err := NewWriteServiceUnit(h, Unit{Name: "node", User: "node", ExecStart: "/usr/local/bin/node run"}, "")
	require.NoError(t, err)
	ops := []provision.Operation{
		NewMakeDirectory(h, "/var/lib/node", 0o750, ""),
		NewInstallPackages(h, "curl"),
		unit,
	}

	store := provision.NewMemoryStore()
	mgr := provision.NewTransactionManager(store)
	require.NoError(t, mgr.Initialize(ctx, ops, provision.Metadata{Mode: "standard"}))

	result, err := mgr.Execute(ctx)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.CanResume)
	assert.Equal(t, 2, result.CompletedSteps)
	assert.ErrorContains(t, result.Error, "Write service unit node failed: write /etc/systemd/system/node.service: no space left on device")

	state, err := store.Load(ctx)
	require.NoError(t, err)
	got := make([]provision.StepStatus, len(state.Steps))
	for i, s := range state.Steps {
		got[i] = s.Status
	}
	assert.Equal(t, []provision.StepStatus{provision.StepCompleted, provision.StepCompleted, provision.StepFailed}, got)

	exists, _ := h.Exists("/var/lib/node")
	assert.False(t, exists, "directory created by the transaction is removed")
	assert.True(t, h.Ran("apt-get install"))
	assert.False(t, h.Ran("apt-get remove"))
	assert.False(t, h.Ran("systemctl"), "unit was never written, so systemd is never reloaded")
}

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortressi/provision"
	"github.com/fortressi/provision/host"
	"github.com/fortressi/provision/internal/config"
	"github.com/fortressi/provision/mode"
)

func newTestApp(t *testing.T, h *host.Memory) *app {
	t.Helper()
	return &app{
		cfg: config.Config{
			StatePath: filepath.Join(t.TempDir(), "transaction.json"),
			LogLevel:  zerolog.Disabled,
			Mode:      mode.Standard{},
			NodeType:  "full",
			Packages:  []string{"curl"},
			Service: config.Service{
				Name:      "node",
				ExecStart: "/usr/local/bin/node run",
				UnitDir:   "/etc/systemd/system",
			},
			CommandTimeout: time.Minute,
		},
		logger:  zerolog.Nop(),
		newHost: func() host.Host { return h },
	}
}

func persisted(t *testing.T, a *app) (*provision.TransactionState, error) {
	t.Helper()
	store, err := a.store()
	require.NoError(t, err)
	return store.Load(context.Background())
}

func TestRunInstallClearsStateOnSuccess(t *testing.T) {
	h := host.NewMemory()
	a := newTestApp(t, h)
	var out bytes.Buffer

	require.NoError(t, a.run(context.Background(), &out, false))

	assert.Contains(t, out.String(), "Provisioned")
	assert.True(t, h.Ran("apt-get install"))
	_, err := persisted(t, a)
	assert.ErrorIs(t, err, provision.ErrNoTransaction)
}

func TestRunResumeWithoutState(t *testing.T) {
	a := newTestApp(t, host.NewMemory())

	err := a.run(context.Background(), &bytes.Buffer{}, true)
	assert.ErrorIs(t, err, provision.ErrNoTransaction)
	assert.ErrorContains(t, err, "run install instead")
}

func TestRunInstallRefusesUnfinishedThenResumes(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	h.FailCommand("apt-get", 100, "E: Unable to locate package curl")
	a := newTestApp(t, h)
	var out bytes.Buffer

	err := a.run(ctx, &out, false)
	require.ErrorContains(t, err, "apt-get install")
	assert.Contains(t, out.String(), "nodeprov resume")

	state, err := persisted(t, a)
	require.NoError(t, err)
	assert.Equal(t, provision.StepFailed, state.Steps[2].Status)

	err = a.run(ctx, &out, false)
	assert.ErrorContains(t, err, "an unfinished transaction exists")

	h.Handle("apt-get", func([]string) (host.Result, error) { return host.Result{}, nil })
	require.NoError(t, a.run(ctx, &out, true))

	_, err = persisted(t, a)
	assert.ErrorIs(t, err, provision.ErrNoTransaction)
}

func TestRunRejectsChangedPlan(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	h.FailCommand("apt-get", 100, "E: broken")
	a := newTestApp(t, h)

	require.Error(t, a.run(ctx, &bytes.Buffer{}, false))

	a.cfg.Packages = []string{"curl", "jq"}
	err := a.run(ctx, &bytes.Buffer{}, true)
	assert.ErrorIs(t, err, provision.ErrPlanMismatch)
}

package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortressi/provision/host"
)

func TestInstallPackagesAlreadyDone(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	h.Handle("dpkg-query", func(args []string) (host.Result, error) {
		return host.Result{Stdout: []byte("install ok installed")}, nil
	})

	op := NewInstallPackages(h, "curl", "jq")
	assert.True(t, op.IsAlreadyDone(ctx))
}

func TestInstallPackagesRetriesOnLock(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	calls := 0
	h.Handle("apt-get", func(args []string) (host.Result, error) {
		calls++
		if calls < 3 {
			stderr := "E: Could not get lock /var/lib/dpkg/lock-frontend"
			return host.Result{Code: 100}, &host.ExitError{Command: "apt-get", Code: 100, Stderr: stderr}
		}
		return host.Result{}, nil
	})

	op := NewInstallPackages(h, "curl")
	op.LockDelay = 0
	_, err := op.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestInstallPackagesDoesNotRetryOtherErrors(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	calls := 0
	h.Handle("apt-get", func(args []string) (host.Result, error) {
		calls++
		return host.Result{Code: 100}, &host.ExitError{Command: "apt-get", Code: 100, Stderr: "E: Unable to locate package nope"}
	})

	op := NewInstallPackages(h, "nope")
	op.LockDelay = 0
	_, err := op.Execute(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 100, host.ExitCode(err))
}

func TestInstallPackagesRollbackLeavesPackages(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	op := NewInstallPackages(h, "curl")
	_, err := op.Execute(ctx)
	require.NoError(t, err)

	require.NoError(t, op.Rollback(ctx))
	assert.False(t, h.Ran("apt-get remove"))
	assert.False(t, h.Ran("apt-get purge"))
}

func TestInstallPackagesValidate(t *testing.T) {
	ok, err := NewInstallPackages(host.NewMemory()).Validate(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
}

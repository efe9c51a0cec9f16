package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/fortressi/provision"
	"github.com/fortressi/provision/host"
)

// InstallPackages installs OS packages with apt-get.
//
// Packages are intentionally left installed on rollback: other software on
// the host may depend on them. Rollback is an explicit no-op so the
// Operation contract stays uniform.
type InstallPackages struct {
	provision.BaseOperation
	host host.Host

	Packages []string

	// LockAttempts and LockDelay bound how long Execute waits for another
	// package manager to release the dpkg lock.
	LockAttempts uint
	LockDelay    time.Duration
}

// NewInstallPackages creates an InstallPackages for pkgs.
func NewInstallPackages(h host.Host, pkgs ...string) *InstallPackages {
	return &InstallPackages{
		BaseOperation: provision.NewBaseOperation("apt-install", fmt.Sprintf("Install packages %s", strings.Join(pkgs, ", "))),
		host:          h,
		Packages:      pkgs,
		LockAttempts:  10,
		LockDelay:     3 * time.Second,
	}
}

func (o *InstallPackages) Validate(context.Context) (bool, error) {
	if len(o.Packages) == 0 {
		return false, errors.New("no packages to install")
	}
	return true, nil
}

func (o *InstallPackages) IsAlreadyDone(ctx context.Context) bool {
	for _, pkg := range o.Packages {
		res, err := o.host.Run(ctx, "dpkg-query", "-W", "-f=${Status}", pkg)
		if err != nil || !strings.Contains(string(res.Stdout), "install ok installed") {
			return false
		}
	}
	return true
}

func (o *InstallPackages) Execute(ctx context.Context) (any, error) {
	args := append([]string{"install", "-y", "-q", "--no-install-recommends"}, o.Packages...)
	attempts := o.LockAttempts
	if attempts == 0 {
		// retry-go treats zero attempts as unlimited
		attempts = 1
	}

	err := retry.Do(
		func() error {
			_, err := o.host.Run(ctx, "apt-get", args...)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(o.LockDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isLockError),
		retry.OnRetry(func(n uint, err error) {
			o.Logger().Warn().Uint("attempt", n+1).Err(err).Msg("package manager locked, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("apt-get install: %w", err)
	}
	o.MarkExecuted()
	return map[string]any{"packages": o.Packages}, nil
}

// Rollback leaves the packages installed.
func (o *InstallPackages) Rollback(context.Context) error {
	if o.Executed() {
		o.Logger().Info().Strs("packages", o.Packages).Msg("packages are not removed on rollback")
	}
	o.ClearExecuted()
	return nil
}

// isLockError reports whether err is apt failing to take the dpkg lock.
func isLockError(err error) bool {
	var ee *host.ExitError
	if !errors.As(err, &ee) {
		return false
	}
	return strings.Contains(ee.Stderr, "Could not get lock") ||
		strings.Contains(ee.Stderr, "Unable to acquire the dpkg frontend lock")
}

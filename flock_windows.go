//go:build windows

package provision

import (
	"errors"
	"os"
)

// flockExclusive approximates an exclusive lock with create-excl of the
// lock file, removing it on unlock.
func flockExclusive(lockPath string) (func(), error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, errors.New("state file is locked by another process")
		}
		return nil, err
	}
	unlocked := false
	return func() {
		if unlocked {
			return
		}
		_ = f.Close()
		_ = os.Remove(lockPath)
		unlocked = true
	}, nil
}

//go:build !windows

package xprocess

import (
	"errors"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
)

// pathBackendSupported reports whether LockerFor offers PathLocker.
const pathBackendSupported = true

// HandleLocker locks the descriptor of the handle itself with flock(2).
// Handles without a descriptor (in-memory filesystems) are rejected with
// errors.ErrGlobalLockUnsupported.
type HandleLocker struct{}

// TryLock attempts LOCK_SH or LOCK_EX with LOCK_NB on f.
func (HandleLocker) TryLock(f afero.File, shared bool) (Release, bool, error) {
	h, ok := f.(fder)
	if !ok {
		return nil, false, gerrors.Wrapf(gerrors.ErrGlobalLockUnsupported, "%T", f)
	}
	fd := int(h.Fd())

	how := unix.LOCK_EX
	if shared {
		how = unix.LOCK_SH
	}

	if err := flockRetryEINTR(fd, how|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return func() error {
		return flockRetryEINTR(fd, unix.LOCK_UN)
	}, true, nil
}

func flockRetryEINTR(fd, how int) error {
	for {
		err := unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

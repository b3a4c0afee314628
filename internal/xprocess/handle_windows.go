//go:build windows

package xprocess

import (
	"errors"
	"math"

	"github.com/spf13/afero"
	"golang.org/x/sys/windows"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
)

// PathLocker's lock on a second handle would make writes through the I/O
// handle fail with ERROR_LOCK_VIOLATION.
const pathBackendSupported = false

// HandleLocker locks the whole byte range of the handle itself with
// LockFileEx. Windows range locks are mandatory, so the lock must live on the
// handle the body reads or writes through. Handles without a descriptor
// (in-memory filesystems) are rejected with errors.ErrGlobalLockUnsupported.
type HandleLocker struct{}

// TryLock attempts a shared or exclusive LockFileEx with
// LOCKFILE_FAIL_IMMEDIATELY on f.
func (HandleLocker) TryLock(f afero.File, shared bool) (Release, bool, error) {
	h, ok := f.(fder)
	if !ok {
		return nil, false, gerrors.Wrapf(gerrors.ErrGlobalLockUnsupported, "%T", f)
	}
	handle := windows.Handle(h.Fd())

	flags := uint32(windows.LOCKFILE_FAIL_IMMEDIATELY)
	if !shared {
		flags |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}

	// A zero Overlapped starts the range at offset 0.
	ol := new(windows.Overlapped)
	if err := windows.LockFileEx(handle, flags, 0, math.MaxUint32, math.MaxUint32, ol); err != nil {
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return func() error {
		return windows.UnlockFileEx(handle, 0, math.MaxUint32, math.MaxUint32, new(windows.Overlapped))
	}, true, nil
}

package xprocess

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
)

// PathLocker locks the handle's path through a separate descriptor managed by
// github.com/gofrs/flock. It only works for handles backed by the OS
// filesystem, and only guards I/O where locks are advisory (Unix).
type PathLocker struct{}

// TryLock attempts a non-blocking shared or exclusive lock on f.Name().
func (PathLocker) TryLock(f afero.File, shared bool) (Release, bool, error) {
	if _, ok := f.(fder); !ok {
		return nil, false, gerrors.Wrapf(gerrors.ErrGlobalLockUnsupported, "%T", f)
	}

	fl := flock.New(f.Name())

	var (
		locked bool
		err    error
	)
	if shared {
		locked, err = fl.TryRLock()
	} else {
		locked, err = fl.TryLock()
	}
	if err != nil {
		_ = fl.Close()
		return nil, false, fmt.Errorf("flock %s: %w", f.Name(), err)
	}
	if !locked {
		_ = fl.Close()
		return nil, false, nil
	}

	// Close releases the lock and the descriptor.
	return fl.Close, true, nil
}

// LockerFor returns the Locker registered under name.
// Valid names are listed by ValidBackends; the empty string selects "handle".
func LockerFor(name string) (Locker, error) {
	switch name {
	case "", BackendHandle:
		return HandleLocker{}, nil
	case BackendPath:
		if !pathBackendSupported {
			return nil, gerrors.NewValidationError("lock backend not supported on this platform").
				WithField("facade.lock_backend").
				WithValue(name)
		}
		return PathLocker{}, nil
	default:
		return nil, gerrors.NewValidationError("unknown lock backend").
			WithField("facade.lock_backend").
			WithValue(name)
	}
}

// Backend names accepted by LockerFor.
const (
	BackendHandle = "handle"
	BackendPath   = "path"
)

// ValidBackends returns the backend names accepted by LockerFor on this
// platform.
func ValidBackends() []string {
	if !pathBackendSupported {
		return []string{BackendHandle}
	}
	return []string{BackendHandle, BackendPath}
}

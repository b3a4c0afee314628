package xprocess

import (
	"sync"

	"github.com/spf13/afero"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
	"github.com/Iron-Ham/filegate/internal/logging"
)

// Release undoes a successful native lock attempt.
type Release func() error

// Locker performs a non-blocking native lock attempt on an open file.
// It returns (nil, false, nil) when the lock is held by someone else.
type Locker interface {
	TryLock(f afero.File, shared bool) (Release, bool, error)
}

// fder is implemented by *os.File.
type fder interface {
	Fd() uintptr
}

// Observer is notified of native lock outcomes.
type Observer interface {
	GlobalLockAcquired(mode gerrors.LockMode)
	GlobalLockContended(mode gerrors.LockMode)
}

// Gate wraps I/O bodies in a cross-process advisory lock.
type Gate struct {
	mu       sync.RWMutex
	locker   Locker
	logger   *logging.Logger
	observer Observer
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger used for contention diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithObserver registers an observer for lock outcomes.
func WithObserver(o Observer) Option {
	return func(g *Gate) {
		g.observer = o
	}
}

// NewGate creates a Gate that uses locker for native attempts.
// A nil locker selects HandleLocker.
func NewGate(locker Locker, opts ...Option) *Gate {
	if locker == nil {
		locker = HandleLocker{}
	}
	g := &Gate{
		locker: locker,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithExclusive runs body while holding an exclusive lock on f.
// f should be the handle the body writes through.
func (g *Gate) WithExclusive(f afero.File, body func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked(f, false, body)
}

// WithShared runs body while holding a shared lock on f.
// f should be the handle the body reads through.
func (g *Gate) WithShared(f afero.File, body func() error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.locked(f, true, body)
}

func (g *Gate) locked(f afero.File, shared bool, body func() error) (err error) {
	mode, op := gerrors.ModeExclusive, gerrors.OpWrite
	if shared {
		mode, op = gerrors.ModeShared, gerrors.OpRead
	}

	release, ok, err := g.locker.TryLock(f, shared)
	if err != nil {
		if gerrors.Is(err, gerrors.ErrGlobalLockUnsupported) {
			return err
		}
		return gerrors.NewIOError(op, f.Name(), gerrors.Wrap(err, "native lock"))
	}
	if !ok {
		g.logger.Debug("global lock contended", "mode", string(mode), "path", f.Name())
		if g.observer != nil {
			g.observer.GlobalLockContended(mode)
		}
		return gerrors.NewGlobalLockError(mode, f.Name())
	}
	if g.observer != nil {
		g.observer.GlobalLockAcquired(mode)
	}

	defer func() {
		if uerr := release(); uerr != nil {
			g.logger.Warn("global unlock failed", "mode", string(mode), "path", f.Name(), "error", uerr.Error())
			if err == nil {
				err = gerrors.NewIOError(op, f.Name(), gerrors.Wrap(uerr, "native unlock"))
			}
		}
	}()

	return body()
}

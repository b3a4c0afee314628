package stamped

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
)

// Stamp is an opaque token issued by a Gate on every lock-state observation.
// The zero Stamp is never valid once a write has completed.
type Stamp uint64

const (
	// readHeld marks a stamp that represents a held pessimistic read lock.
	readHeld Stamp = 1 << 63
	// writeHeld marks a stamp that represents the held write lock.
	writeHeld Stamp = 1 << 62

	flagMask = readHeld | writeHeld
)

// DefaultMaxReaders is the number of concurrent pessimistic readers a Gate admits.
const DefaultMaxReaders = math.MaxInt32

func (s Stamp) generation() uint64 {
	return uint64(s &^ flagMask)
}

// IsRead reports whether s was returned by AcquireRead.
func (s Stamp) IsRead() bool { return s&readHeld != 0 }

// IsWrite reports whether s was returned by AcquireWrite or TryUpgrade.
func (s Stamp) IsWrite() bool { return s&writeHeld != 0 }

// String renders the stamp for logs.
func (s Stamp) String() string {
	switch {
	case s.IsWrite():
		return fmt.Sprintf("w%d", s.generation())
	case s.IsRead():
		return fmt.Sprintf("r%d", s.generation())
	default:
		return fmt.Sprintf("o%d", s.generation())
	}
}

// Gate is an in-process read/write lock with optimistic reads.
// The zero value is not usable; create one with New.
type Gate struct {
	seq        atomic.Uint64
	sem        *semaphore.Weighted
	maxReaders int64
}

// Option configures a Gate.
type Option func(*Gate)

// WithMaxReaders caps the number of concurrent pessimistic readers.
// Values below 1 are ignored.
func WithMaxReaders(n int64) Option {
	return func(g *Gate) {
		if n > 0 {
			g.maxReaders = n
		}
	}
}

// New creates a Gate with no lock held.
func New(opts ...Option) *Gate {
	g := &Gate{maxReaders: DefaultMaxReaders}
	for _, opt := range opts {
		opt(g)
	}
	g.sem = semaphore.NewWeighted(g.maxReaders)
	return g
}

// OptimisticRead returns a stamp for a lock-free read. It never blocks and
// always returns; if a write is in flight the stamp simply fails Validate.
func (g *Gate) OptimisticRead() Stamp {
	return Stamp(g.seq.Load())
}

// Validate reports whether no write section has been entered or exited since
// s was issued. For held read and write stamps it reports whether the lock
// is still the one that was granted.
func (g *Gate) Validate(s Stamp) bool {
	gen := s.generation()
	if !s.IsWrite() && gen&1 == 1 {
		return false
	}
	return g.seq.Load() == gen
}

// AcquireRead blocks until a read lock is granted, the timeout expires or ctx
// is done. A non-positive timeout makes a single non-blocking attempt.
//
// On timeout it returns a *errors.LockTimeoutError; on cancellation an
// *errors.InterruptedError wrapping ctx.Err().
func (g *Gate) AcquireRead(ctx context.Context, timeout time.Duration) (Stamp, error) {
	if err := g.acquire(ctx, 1, timeout, gerrors.ModeRead); err != nil {
		return 0, err
	}
	return Stamp(g.seq.Load()) | readHeld, nil
}

// AcquireWrite blocks until the write lock is granted, the timeout expires or
// ctx is done. Errors follow AcquireRead.
func (g *Gate) AcquireWrite(ctx context.Context, timeout time.Duration) (Stamp, error) {
	if err := g.acquire(ctx, g.maxReaders, timeout, gerrors.ModeWrite); err != nil {
		return 0, err
	}
	return g.enterWrite(), nil
}

// ReleaseRead releases a read lock obtained from AcquireRead.
func (g *Gate) ReleaseRead(s Stamp) {
	if !s.IsRead() || s.IsWrite() {
		panic(fmt.Sprintf("stamped: ReleaseRead of non-read stamp %s", s))
	}
	g.sem.Release(1)
}

// ReleaseWrite releases a write lock obtained from AcquireWrite or TryUpgrade.
func (g *Gate) ReleaseWrite(s Stamp) {
	if !s.IsWrite() || g.seq.Load() != s.generation() {
		panic(fmt.Sprintf("stamped: ReleaseWrite of unheld stamp %s", s))
	}
	g.seq.Add(1)
	g.sem.Release(g.maxReaders)
}

// TryUpgrade converts s into a write stamp without releasing anything in
// between. It never blocks.
//
//   - An optimistic stamp upgrades only if it still validates and no reader
//     or writer holds or is queued for the lock.
//   - A read stamp upgrades only if the caller is the sole reader and nobody
//     is queued. On success the read lock is consumed by the write lock.
//   - A write stamp is returned unchanged.
//
// On failure the caller still owns whatever s represented and must fall back
// to AcquireWrite (after releasing a read stamp).
func (g *Gate) TryUpgrade(s Stamp) (Stamp, bool) {
	switch {
	case s.IsWrite():
		if g.seq.Load() != s.generation() {
			return 0, false
		}
		return s, true

	case s.IsRead():
		if g.maxReaders > 1 && !g.sem.TryAcquire(g.maxReaders-1) {
			return 0, false
		}
		return g.enterWrite(), true

	default:
		if !g.Validate(s) {
			return 0, false
		}
		if !g.sem.TryAcquire(g.maxReaders) {
			return 0, false
		}
		// A writer may have entered and left between Validate and TryAcquire.
		if g.seq.Load() != s.generation() {
			g.sem.Release(g.maxReaders)
			return 0, false
		}
		return g.enterWrite(), true
	}
}

// Generation returns the current value of the generation counter.
// An odd value means a write section is in progress.
func (g *Gate) Generation() uint64 {
	return g.seq.Load()
}

// IsWriteLocked reports whether a write section is in progress.
func (g *Gate) IsWriteLocked() bool {
	return g.seq.Load()&1 == 1
}

// enterWrite must be called with every semaphore unit held.
func (g *Gate) enterWrite() Stamp {
	return Stamp(g.seq.Add(1)) | writeHeld
}

func (g *Gate) acquire(ctx context.Context, n int64, timeout time.Duration, mode gerrors.LockMode) error {
	if err := ctx.Err(); err != nil {
		return gerrors.NewInterruptedError(mode, err)
	}
	if timeout <= 0 {
		if g.sem.TryAcquire(n) {
			return nil
		}
		return gerrors.NewLockTimeoutError(mode, timeout)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, n); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return gerrors.NewInterruptedError(mode, ctxErr)
		}
		return gerrors.NewLockTimeoutError(mode, timeout)
	}
	return nil
}

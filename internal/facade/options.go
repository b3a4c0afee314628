package facade

import (
	"time"

	"golang.org/x/text/encoding"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
	"github.com/Iron-Ham/filegate/internal/logging"
	"github.com/Iron-Ham/filegate/internal/xprocess"
)

// Defaults applied by New.
const (
	DefaultOptimisticRetries = 5
	DefaultReadTimeout       = time.Second
	DefaultWriteTimeout      = time.Second
)

// Observer receives lock and I/O outcomes. *metrics.Recorder implements it.
type Observer interface {
	xprocess.Observer
	OptimisticRead(failedAttempts int, hit bool)
	PessimisticRead()
	Upgrade(ok bool)
	LockTimeout(mode gerrors.LockMode)
	IOFailure(op gerrors.IOOp)
}

type nopObserver struct{}

func (nopObserver) GlobalLockAcquired(gerrors.LockMode)  {}
func (nopObserver) GlobalLockContended(gerrors.LockMode) {}
func (nopObserver) OptimisticRead(int, bool)             {}
func (nopObserver) PessimisticRead()                     {}
func (nopObserver) Upgrade(bool)                         {}
func (nopObserver) LockTimeout(gerrors.LockMode)         {}
func (nopObserver) IOFailure(gerrors.IOOp)               {}

// Option configures a Facade.
type Option func(*options)

type options struct {
	logger       *logging.Logger
	observer     Observer
	locker       xprocess.Locker
	retries      int
	readTimeout  time.Duration
	writeTimeout time.Duration
	encoding     encoding.Encoding
	maxReaders   int64
	file         string
	globalLock   bool
}

// WithLogger sets the logger. Lock fallbacks are logged at DEBUG, failures at
// the level matching their severity.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers an observer for lock and I/O outcomes.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLocker selects the native lock backend used in global lock mode.
func WithLocker(l xprocess.Locker) Option {
	return func(o *options) {
		o.locker = l
	}
}

// WithOptimisticRetries sets how many optimistic attempts a read makes before
// blocking. Zero sends every read straight to the read lock.
func WithOptimisticRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithReadTimeout bounds the pessimistic read lock wait.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readTimeout = d
	}
}

// WithWriteTimeout bounds the write lock wait.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// WithMaxReaders caps concurrent pessimistic readers. Zero leaves them
// unbounded.
func WithMaxReaders(n int64) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxReaders = n
		}
	}
}

// WithEncoding sets the encoding used by Content and SaveContent.
func WithEncoding(enc encoding.Encoding) Option {
	return func(o *options) {
		if enc != nil {
			o.encoding = enc
		}
	}
}

// WithFile sets the initial file reference.
func WithFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// WithGlobalLock sets the initial global lock mode.
func WithGlobalLock(enabled bool) Option {
	return func(o *options) {
		o.globalLock = enabled
	}
}

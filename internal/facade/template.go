package facade

import (
	"context"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
	"github.com/Iron-Ham/filegate/internal/logging"
	"github.com/Iron-Ham/filegate/internal/stamped"
)

// readOp runs body optimistically up to the retry budget, then once under the
// read lock. The stamp is returned only for an optimistic success.
//
// An optimistic attempt whose stamp fails validation is discarded together
// with any error it produced.
func readOp[T any](ctx context.Context, f *Facade, op string, body func() (T, error)) (T, stamped.Stamp, bool, error) {
	var zero T
	log := f.logger.WithOperation(op)

	failed := 0
	for i := 0; i < f.retries; i++ {
		if err := ctx.Err(); err != nil {
			return zero, 0, false, gerrors.NewInterruptedError(gerrors.ModeRead, err)
		}

		stamp := f.gate.OptimisticRead()
		v, err := body()
		if f.gate.Validate(stamp) {
			f.observer.OptimisticRead(failed, true)
			if err != nil {
				f.failed(log, err)
				return zero, 0, false, err
			}
			return v, stamp, true, nil
		}
		failed++
	}
	f.observer.OptimisticRead(failed, false)
	if f.retries > 0 {
		log.Debug("optimistic read exhausted", "attempts", failed)
	}

	stamp, err := f.gate.AcquireRead(ctx, f.readTimeout)
	if err != nil {
		f.failed(log, err)
		return zero, 0, false, err
	}
	defer f.gate.ReleaseRead(stamp)
	f.observer.PessimisticRead()

	v, err := body()
	if err != nil {
		f.failed(log, err)
		return zero, 0, false, err
	}
	return v, 0, false, nil
}

// writeOp runs body under the write lock, converting stamp when one is given
// and still current. Only optimistic stamps are converted: the facade never
// hands out held read or write stamps, so one arriving here cannot be owned
// by the caller and falls back to AcquireWrite.
func writeOp(ctx context.Context, f *Facade, op string, stamp *stamped.Stamp, body func() error) error {
	log := f.logger.WithOperation(op)

	var (
		ws stamped.Stamp
		ok bool
	)
	if stamp != nil {
		if !stamp.IsRead() && !stamp.IsWrite() {
			ws, ok = f.gate.TryUpgrade(*stamp)
		}
		f.observer.Upgrade(ok)
		if !ok {
			log.Debug("stamp upgrade failed", "stamp", stamp.String())
		}
	}

	if !ok {
		var err error
		ws, err = f.gate.AcquireWrite(ctx, f.writeTimeout)
		if err != nil {
			f.failed(log, err)
			return err
		}
	}
	defer f.gate.ReleaseWrite(ws)

	if err := body(); err != nil {
		f.failed(log, err)
		return err
	}
	return nil
}

// failed logs err at the level its severity calls for and reports it to the
// observer. The error is still returned to the caller.
func (f *Facade) failed(log *logging.Logger, err error) {
	var (
		lte *gerrors.LockTimeoutError
		ioe *gerrors.IOError
	)
	switch {
	case gerrors.As(err, &lte):
		f.observer.LockTimeout(lte.Mode)
		logAt(log, err, "lock timeout", "mode", string(lte.Mode), "timeout", lte.Timeout.String())
	case gerrors.As(err, &ioe):
		f.observer.IOFailure(ioe.Op)
		logAt(log, err, "io failure", "error", err.Error())
	case gerrors.IsContention(err):
		logAt(log, err, "global lock contended")
	default:
		// Caller mistakes such as a missing file reference.
		log.Debug("operation failed", "error", err.Error())
	}
}

func logAt(log *logging.Logger, err error, msg string, args ...any) {
	switch gerrors.GetSeverity(err) {
	case gerrors.SeverityDebug:
		log.Debug(msg, args...)
	case gerrors.SeverityInfo:
		log.Info(msg, args...)
	case gerrors.SeverityWarning:
		log.Warn(msg, args...)
	default:
		log.Error(msg, args...)
	}
}

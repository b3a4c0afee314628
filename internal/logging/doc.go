// Package logging provides structured logging for filegate.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// persistent context attributes. Lock fallbacks, contention and I/O failures
// are logged here, but never swallowed: the facade always returns them to the
// caller as well.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context attributes (component, file, op)
//   - Size-based log rotation with optional gzip compression
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/filegate.log", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	facadeLog := logger.WithComponent("facade").WithFile("/srv/data.txt")
//	facadeLog.Debug("optimistic read exhausted", "attempts", 5)
//
// Output:
//
//	{"time":"...","level":"DEBUG","msg":"optimistic read exhausted","component":"facade","file":"/srv/data.txt","attempts":5}
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers share
// the underlying writer.
package logging

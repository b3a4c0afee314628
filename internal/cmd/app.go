package cmd

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/filegate/internal/charset"
	"github.com/Iron-Ham/filegate/internal/config"
	"github.com/Iron-Ham/filegate/internal/facade"
	"github.com/Iron-Ham/filegate/internal/logging"
	"github.com/Iron-Ham/filegate/internal/metrics"
	"github.com/Iron-Ham/filegate/internal/xprocess"
)

// app holds everything a command needs to talk to the target file.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Recorder
	facade  *facade.Facade
}

// newApp loads the configuration and builds the facade it describes.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.File, logging.ParseLevel(cfg.Logging.Level), logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, err
	}

	locker, err := xprocess.LockerFor(cfg.Facade.LockBackend)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	enc, err := charset.Lookup(cfg.Facade.Encoding)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	opts := []facade.Option{
		facade.WithLogger(logger),
		facade.WithLocker(locker),
		facade.WithEncoding(enc),
		facade.WithOptimisticRetries(cfg.Facade.OptimisticRetries),
		facade.WithReadTimeout(cfg.Facade.ReadTimeout()),
		facade.WithWriteTimeout(cfg.Facade.WriteTimeout()),
		facade.WithMaxReaders(int64(cfg.Facade.MaxReaders)),
		facade.WithFile(cfg.Facade.ResolveFile()),
		facade.WithGlobalLock(cfg.Facade.GlobalLock),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		opts = append(opts, facade.WithObserver(a.metrics))
	}
	a.facade = facade.New(afero.NewOsFs(), opts...)

	logger.Debug("facade ready",
		"file", cfg.Facade.ResolveFile(),
		"global_lock", cfg.Facade.GlobalLock,
		"backend", cfg.Facade.LockBackend,
	)
	return a, nil
}

// Close flushes and closes the log file.
func (a *app) Close() error {
	return a.logger.Close()
}

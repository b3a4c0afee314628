package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete filegate configuration
type Config struct {
	Facade  FacadeConfig  `mapstructure:"facade" yaml:"facade"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Stress  StressConfig  `mapstructure:"stress" yaml:"stress"`
}

// FacadeConfig controls the guarded file and its locks
type FacadeConfig struct {
	// File is the target file path. Supports ~ for home directory expansion.
	File string `mapstructure:"file" yaml:"file"`
	// GlobalLock wraps file I/O in a cross-process advisory lock (default: false)
	GlobalLock bool `mapstructure:"global_lock" yaml:"global_lock"`
	// OptimisticRetries is how many lock-free read attempts precede the read lock (default: 5)
	OptimisticRetries int `mapstructure:"optimistic_retries" yaml:"optimistic_retries"`
	// ReadTimeoutMs bounds the read lock wait in milliseconds (default: 1000)
	ReadTimeoutMs int `mapstructure:"read_timeout_ms" yaml:"read_timeout_ms"`
	// WriteTimeoutMs bounds the write lock wait in milliseconds (default: 1000)
	WriteTimeoutMs int `mapstructure:"write_timeout_ms" yaml:"write_timeout_ms"`
	// LockBackend selects the native lock: "handle" or "path" (default: "handle")
	LockBackend string `mapstructure:"lock_backend" yaml:"lock_backend"`
	// Encoding is used by read and write; any IANA name (default: "UTF-8")
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
	// MaxReaders caps concurrent pessimistic readers; 0 is unbounded (default: 0)
	MaxReaders int `mapstructure:"max_readers" yaml:"max_readers"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// File is the log file path. Empty logs to stderr.
	File string `mapstructure:"file" yaml:"file"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "warn")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files (default: false)
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// MetricsConfig controls lock outcome counters
type MetricsConfig struct {
	// Enabled records counters and prints them after stress runs (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// WatchConfig controls the watch command
type WatchConfig struct {
	// DebounceMs is the quiet period after the last change event (default: 50)
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	// Plain prints changes line by line instead of the interactive view (default: false)
	Plain bool `mapstructure:"plain" yaml:"plain"`
}

// StressConfig holds defaults for the stress command
type StressConfig struct {
	Writers    int  `mapstructure:"writers" yaml:"writers"`
	Readers    int  `mapstructure:"readers" yaml:"readers"`
	Saves      int  `mapstructure:"saves" yaml:"saves"`
	Runs       int  `mapstructure:"runs" yaml:"runs"`
	Optimistic bool `mapstructure:"optimistic" yaml:"optimistic"`
	// Processes is how many processes run the scenario against the same file
	Processes int `mapstructure:"processes" yaml:"processes"`
	// ReaderPauseMs is the pause between reads of one reader (default: 1)
	ReaderPauseMs int `mapstructure:"reader_pause_ms" yaml:"reader_pause_ms"`
	// RetryBackoffMs is the pause before retrying a contended operation (default: 1)
	RetryBackoffMs int `mapstructure:"retry_backoff_ms" yaml:"retry_backoff_ms"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Facade: FacadeConfig{
			File:              "",
			GlobalLock:        false,
			OptimisticRetries: 5,
			ReadTimeoutMs:     1000,
			WriteTimeoutMs:    1000,
			LockBackend:       "handle",
			Encoding:          "UTF-8",
			MaxReaders:        0,
		},
		Logging: LoggingConfig{
			File:       "",
			Level:      "warn",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Watch: WatchConfig{
			DebounceMs: 50,
			Plain:      false,
		},
		Stress: StressConfig{
			Writers:        40,
			Readers:        70,
			Saves:          10,
			Runs:           2,
			Optimistic:     false,
			Processes:      1,
			ReaderPauseMs:  1,
			RetryBackoffMs: 1,
		},
	}
}

// ReadTimeout returns the read lock timeout as a time.Duration
func (c *FacadeConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the write lock timeout as a time.Duration
func (c *FacadeConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// ResolveFile returns File with a leading ~ expanded.
func (c *FacadeConfig) ResolveFile() string {
	return expandHome(c.File)
}

// Debounce returns the watch debounce as a time.Duration
func (c *WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ReaderPause returns the reader pause as a time.Duration
func (c *StressConfig) ReaderPause() time.Duration {
	return time.Duration(c.ReaderPauseMs) * time.Millisecond
}

// RetryBackoff returns the retry backoff as a time.Duration
func (c *StressConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

func expandHome(path string) string {
	if path == "~" || (len(path) > 1 && path[:2] == "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Facade defaults
	viper.SetDefault("facade.file", defaults.Facade.File)
	viper.SetDefault("facade.global_lock", defaults.Facade.GlobalLock)
	viper.SetDefault("facade.optimistic_retries", defaults.Facade.OptimisticRetries)
	viper.SetDefault("facade.read_timeout_ms", defaults.Facade.ReadTimeoutMs)
	viper.SetDefault("facade.write_timeout_ms", defaults.Facade.WriteTimeoutMs)
	viper.SetDefault("facade.lock_backend", defaults.Facade.LockBackend)
	viper.SetDefault("facade.encoding", defaults.Facade.Encoding)
	viper.SetDefault("facade.max_readers", defaults.Facade.MaxReaders)

	// Logging defaults
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)

	// Watch defaults
	viper.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)
	viper.SetDefault("watch.plain", defaults.Watch.Plain)

	// Stress defaults
	viper.SetDefault("stress.writers", defaults.Stress.Writers)
	viper.SetDefault("stress.readers", defaults.Stress.Readers)
	viper.SetDefault("stress.saves", defaults.Stress.Saves)
	viper.SetDefault("stress.runs", defaults.Stress.Runs)
	viper.SetDefault("stress.optimistic", defaults.Stress.Optimistic)
	viper.SetDefault("stress.processes", defaults.Stress.Processes)
	viper.SetDefault("stress.reader_pause_ms", defaults.Stress.ReaderPauseMs)
	viper.SetDefault("stress.retry_backoff_ms", defaults.Stress.RetryBackoffMs)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "filegate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".filegate"
	}
	return filepath.Join(home, ".config", "filegate")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

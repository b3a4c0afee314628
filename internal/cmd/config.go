package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/filegate/internal/config"
)

// configKeys lists the keys accepted by `config set` and their types.
var configKeys = map[string]string{
	"facade.file":               "string",
	"facade.global_lock":        "bool",
	"facade.optimistic_retries": "int",
	"facade.read_timeout_ms":    "int",
	"facade.write_timeout_ms":   "int",
	"facade.lock_backend":       "string",
	"facade.encoding":           "string",
	"facade.max_readers":        "int",
	"logging.file":              "string",
	"logging.level":             "string",
	"logging.max_size_mb":       "int",
	"logging.max_backups":       "int",
	"logging.compress":          "bool",
	"metrics.enabled":           "bool",
	"watch.debounce_ms":         "int",
	"watch.plain":               "bool",
	"stress.writers":            "int",
	"stress.readers":            "int",
	"stress.saves":              "int",
	"stress.runs":               "int",
	"stress.optimistic":         "bool",
	"stress.processes":          "int",
	"stress.reader_pause_ms":    "int",
	"stress.retry_backoff_ms":   "int",
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View or modify filegate configuration",
		Long: `View or modify filegate configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
		RunE: runConfigShow,
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show current configuration",
			RunE:  runConfigShow,
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a configuration value",
			Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  filegate config set facade.global_lock true
  filegate config set facade.read_timeout_ms 250
  filegate config set logging.file ~/.local/state/filegate/filegate.log

The resulting configuration is validated before it is written.`,
			Args: cobra.ExactArgs(2),
			RunE: runConfigSet,
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create a default config file",
			Long:  `Create a default config file at ~/.config/filegate/config.yaml with all available options.`,
			RunE:  runConfigInit,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show the config file path",
			RunE:  runConfigPath,
		},
	)
	return configCmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	keyType, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'filegate config --help' to see the configuration", key)
	}

	var typedValue any
	switch keyType {
	case "string":
		typedValue = value
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = b
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		typedValue = n
	}

	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return err
	}

	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)
	return nil
}

const configTemplate = `# filegate configuration

# The guarded file and its locks
facade:
  # Target file; ~ expands to the home directory
  file: ""
  # Wrap file I/O in a cross-process advisory lock
  global_lock: false
  # Lock-free read attempts before taking the read lock
  optimistic_retries: 5
  # How long to wait for the in-process read and write locks
  read_timeout_ms: 1000
  write_timeout_ms: 1000
  # Native lock: "handle" locks the open file, "path" locks by file name
  lock_backend: handle
  # Charset for read and write (any IANA name)
  encoding: UTF-8
  # Cap on concurrent pessimistic readers; 0 is unbounded
  max_readers: 0

logging:
  # Log file; empty logs to stderr
  file: ""
  # debug, info, warn or error
  level: warn
  max_size_mb: 10
  max_backups: 3
  compress: false

metrics:
  # Count lock outcomes and show them in inspect and stress
  enabled: true

watch:
  # Quiet period after the last change before re-reading
  debounce_ms: 50
  # Print changes line by line instead of the interactive view
  plain: false

stress:
  writers: 40
  readers: 70
  saves: 10
  runs: 2
  optimistic: false
  # Processes sharing the file; widens the accepted sum
  processes: 1
  reader_pause_ms: 1
  retry_backoff_ms: 1
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'filegate config set' to modify values", configFile)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintln(out, "\nEnvironment variables: FILEGATE_* (e.g., FILEGATE_FACADE_GLOBAL_LOCK)")
	return nil
}

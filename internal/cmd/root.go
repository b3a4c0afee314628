// Package cmd implements the filegate command line.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/filegate/internal/config"
)

// NewRootCmd builds the filegate command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "filegate",
		Short: "Concurrency-safe access to a single text file",
		Long: `Filegate reads and writes one text file under a stamped in-process lock,
optionally wrapped in a cross-process advisory lock, so that concurrent
readers never observe a partially written file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			initConfig(cfgFile)
			return nil
		},
	}

	// Global flags
	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/filegate/config.yaml)")
	flags.StringP("file", "f", "", "target file")
	flags.Bool("global-lock", false, "wrap file I/O in a cross-process lock")
	flags.String("log-level", "", "log level (debug/info/warn/error)")
	_ = viper.BindPFlag("facade.file", flags.Lookup("file"))
	_ = viper.BindPFlag("facade.global_lock", flags.Lookup("global-lock"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))

	root.AddCommand(
		newReadCmd(),
		newWriteCmd(),
		newClearCmd(),
		newInspectCmd(),
		newStressCmd(),
		newWatchCmd(),
		newLogsCmd(),
		newConfigCmd(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func initConfig(cfgFile string) {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FILEGATE")
	// e.g., FILEGATE_FACADE_GLOBAL_LOCK for facade.global_lock
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

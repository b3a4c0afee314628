package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/filegate/internal/stress"
	"github.com/Iron-Ham/filegate/internal/tui/styles"
)

type stressReport struct {
	Runs    []stress.Result    `yaml:"runs"`
	OK      bool               `yaml:"ok"`
	Error   string             `yaml:"error,omitempty"`
	Metrics map[string]float64 `yaml:"metrics,omitempty"`
}

func newStressCmd() *cobra.Command {
	var (
		output  string
		noClear bool
	)

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Hammer the file with concurrent appenders and readers",
		Long: `Run concurrent writers that each append "1," a fixed number of times while
readers check that they only ever see whole tokens. At the end the
tokens are summed; the sum must equal writers*saves.

Runs alternate the global lock mode, starting with the configured one.
To exercise the cross-process lock, start the same command in several
processes with --no-clear and --processes set to their number; each
process then accepts any sum up to that multiple.

Examples:
  filegate stress -f /tmp/stress.txt
  filegate stress -f /tmp/stress.txt --runs 4 --optimistic
  filegate stress -f /tmp/shared.txt --global-lock --no-clear --processes 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "yaml" {
				return fmt.Errorf("unknown output format %q (want text or yaml)", output)
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sc := a.cfg.Stress
			runCfg := stress.Config{
				Writers:      sc.Writers,
				Readers:      sc.Readers,
				Saves:        sc.Saves,
				Optimistic:   sc.Optimistic,
				GlobalLock:   a.cfg.Facade.GlobalLock,
				Processes:    sc.Processes,
				Clear:        !noClear,
				ReaderPause:  sc.ReaderPause(),
				RetryBackoff: sc.RetryBackoff(),
			}

			runner := stress.NewRunner(a.facade, a.logger)
			results, runErr := runner.Series(cmd.Context(), runCfg, sc.Runs)

			report := stressReport{Runs: results, OK: runErr == nil}
			if runErr != nil {
				report.Error = runErr.Error()
			}
			if a.metrics != nil {
				samples, err := a.metrics.Snapshot()
				if err != nil {
					return err
				}
				report.Metrics = sampleMap(samples)
			}

			if output == "yaml" {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(report); err != nil {
					return err
				}
				if err := enc.Close(); err != nil {
					return err
				}
			} else {
				printStress(cmd, runCfg, report)
			}
			return runErr
		},
	}

	flags := cmd.Flags()
	flags.Int("writers", 0, "number of writers")
	flags.Int("readers", 0, "number of readers")
	flags.Int("saves", 0, "appends per writer")
	flags.Int("runs", 0, "number of runs, alternating the global lock mode")
	flags.Bool("optimistic", false, "writers pass a read stamp to each append")
	flags.Int("processes", 0, "number of processes sharing the file")
	flags.BoolVar(&noClear, "no-clear", false, "keep existing content instead of truncating first")
	flags.StringVarP(&output, "output", "o", "text", "output format (text/yaml)")

	// Unset flags fall through to the config file and defaults.
	for _, name := range []string{"writers", "readers", "saves", "runs", "optimistic", "processes"} {
		_ = viper.BindPFlag("stress."+name, flags.Lookup(name))
	}
	return cmd
}

func printStress(cmd *cobra.Command, cfg stress.Config, r stressReport) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, styles.Title.Render("filegate stress"))
	fmt.Fprintln(out, styles.Row("Writers", cfg.Writers))
	fmt.Fprintln(out, styles.Row("Saves per writer", cfg.Saves))
	fmt.Fprintln(out, styles.Row("Readers", cfg.Readers))
	fmt.Fprintln(out, styles.Row("Optimistic", styles.OnOff(cfg.Optimistic)))
	fmt.Fprintln(out, styles.Row("Processes", cfg.Processes))
	fmt.Fprintln(out)

	for i, res := range r.Runs {
		line := fmt.Sprintf("run %d  global lock %s  sum %d (want %d..%d)  reads %d  writes %d  retries %d  %s  ",
			i+1, styles.OnOff(res.GlobalLock), res.Sum, res.Expected, res.Max,
			res.Reads, res.Writes, res.Retries, res.Duration.Round(time.Millisecond))
		fmt.Fprintln(out, line+styles.Verdict(res.OK()))
	}
	if r.Error != "" {
		fmt.Fprintln(out, styles.ErrorMsg.Render(r.Error))
	}

	if len(r.Metrics) > 0 {
		fmt.Fprintln(out)
		printMetrics(cmd, r.Metrics)
	}
}

func printMetrics(cmd *cobra.Command, m map[string]float64) {
	out := cmd.OutOrStdout()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, styles.Title.Render("metrics"))
	for _, name := range names {
		fmt.Fprintf(out, "  %s %g\n", styles.Muted.Render(name), m[name])
	}
}

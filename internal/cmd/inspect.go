package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/filegate/internal/facade"
	"github.com/Iron-Ham/filegate/internal/metrics"
	"github.com/Iron-Ham/filegate/internal/tui/styles"
)

// inspectReport is the yaml form of the inspect command.
type inspectReport struct {
	facade.Status `yaml:",inline"`
	Backend       string             `yaml:"lock_backend"`
	Exists        bool               `yaml:"exists"`
	Size          int64              `yaml:"size"`
	Stamp         string             `yaml:"stamp,omitempty"`
	ReadPath      string             `yaml:"read_path,omitempty"`
	ReadError     string             `yaml:"read_error,omitempty"`
	Metrics       map[string]float64 `yaml:"metrics,omitempty"`
}

func newInspectCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the file and lock state",
		Long: `Show the facade configuration, the target file's size and a fresh read
stamp. The read goes through the normal locking path, so inspect also
reports whether it completed optimistically.`,
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

			report, err := buildReport(cmd, a)
			if err != nil {
				return err
			}

			if output == "yaml" {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer func() { _ = enc.Close() }()
				return enc.Encode(report)
			}
			printReport(cmd, report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text/yaml)")
	return cmd
}

func buildReport(cmd *cobra.Command, a *app) (inspectReport, error) {
	report := inspectReport{Backend: a.cfg.Facade.LockBackend}

	path, stamp, optimistic, err := a.facade.FileReference(cmd.Context())
	if err != nil {
		return report, err
	}

	if path != "" {
		info, err := os.Stat(path)
		switch {
		case err == nil:
			report.Exists = true
			report.Size = info.Size()
		case !errors.Is(err, fs.ErrNotExist):
			return report, err
		}
	}

	if report.Exists {
		if _, stamp, optimistic, err = a.facade.Content(cmd.Context()); err != nil {
			report.ReadError = err.Error()
		}
	}
	if report.ReadError == "" {
		report.Stamp = stamp.String()
		report.ReadPath = readPath(optimistic)
	}

	// Taken after the reads so generation reflects any that raced a writer.
	report.Status = a.facade.Status()

	if a.metrics != nil {
		samples, err := a.metrics.Snapshot()
		if err != nil {
			return report, err
		}
		report.Metrics = sampleMap(samples)
	}
	return report, nil
}

func printReport(cmd *cobra.Command, r inspectReport) {
	out := cmd.OutOrStdout()
	file := r.File
	if file == "" {
		file = "(none)"
	}

	fmt.Fprintln(out, styles.Title.Render("filegate"))
	fmt.Fprintln(out, styles.Row("File", file))
	fmt.Fprintln(out, styles.Row("Exists", r.Exists))
	fmt.Fprintln(out, styles.Row("Size", fmt.Sprintf("%d bytes", r.Size)))
	fmt.Fprintln(out, styles.Row("Encoding", r.Encoding))
	fmt.Fprintln(out, styles.Row("Global lock", styles.OnOff(r.GlobalLock)))
	fmt.Fprintln(out, styles.Row("Lock backend", r.Backend))
	fmt.Fprintln(out, styles.Row("Generation", r.Generation))
	fmt.Fprintln(out, styles.Row("Write locked", r.WriteLocked))
	fmt.Fprintln(out, styles.Row("Optimistic retries", r.Retries))
	fmt.Fprintln(out, styles.Row("Read timeout", r.ReadTimeout))
	fmt.Fprintln(out, styles.Row("Write timeout", r.WriteTimeout))
	if r.ReadError != "" {
		fmt.Fprintln(out, styles.Row("Read", styles.ErrorMsg.Render(r.ReadError)))
	} else {
		fmt.Fprintln(out, styles.Row("Stamp", r.Stamp))
		fmt.Fprintln(out, styles.Row("Read path", r.ReadPath))
	}

	if len(r.Metrics) > 0 {
		fmt.Fprintln(out)
		printMetrics(cmd, r.Metrics)
	}
}

func sampleMap(samples []metrics.Sample) map[string]float64 {
	if len(samples) == 0 {
		return nil
	}
	m := make(map[string]float64, len(samples))
	for _, s := range samples {
		m[s.Name] = s.Value
	}
	return m
}

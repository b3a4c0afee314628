package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/filegate/internal/config"
	"github.com/Iron-Ham/filegate/internal/logging"
	"github.com/Iron-Ham/filegate/internal/tui/styles"
)

// logFilter selects which entries are shown.
type logFilter struct {
	minLevel  int
	since     time.Time
	grep      *regexp.Regexp
	component string
	path      glob.Glob
}

func newLogsCmd() *cobra.Command {
	var (
		logPath   string
		tail      int
		follow    bool
		level     string
		since     string
		grep      string
		component string
		pathGlob  string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View the filegate log file",
		Long: `View and filter the JSON log written when logging.file is configured.

Examples:
  # Show the last 50 entries
  filegate logs

  # Only lock contention and failures from the facade
  filegate logs --level warn --component facade

  # Follow the log in real-time
  filegate logs -F

  # Show entries from the last 10 minutes mentioning a path
  filegate logs --since 10m --grep "notes\.txt"

  # Only entries about files under /srv
  filegate logs --path "/srv/*"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if logPath == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("invalid configuration: %w", err)
				}
				logPath = cfg.Logging.File
			}
			if logPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No log file configured; set logging.file or pass --log-file.")
				return nil
			}

			if _, err := os.Stat(logPath); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "No logs found at %s\n", logPath)
				return nil
			}

			filter := logFilter{minLevel: -1, component: component}
			if level != "" {
				filter.minLevel = levelPriority(logging.ParseLevel(level))
			}
			if since != "" {
				d, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid duration format: %w", err)
				}
				filter.since = time.Now().Add(-d)
			}
			if grep != "" {
				re, err := regexp.Compile(grep)
				if err != nil {
					return fmt.Errorf("invalid grep pattern: %w", err)
				}
				filter.grep = re
			}
			if pathGlob != "" {
				g, err := glob.Compile(pathGlob)
				if err != nil {
					return fmt.Errorf("invalid path pattern: %w", err)
				}
				filter.path = g
			}

			if follow {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				return followLogs(ctx, cmd.OutOrStdout(), logPath, filter)
			}
			return displayLogs(cmd.OutOrStdout(), logPath, tail, filter)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&logPath, "log-file", "", "log file to read (default: logging.file)")
	flags.IntVarP(&tail, "tail", "n", 50, "Number of lines to show (0 for all)")
	flags.BoolVarP(&follow, "follow", "F", false, "Follow log output (like tail -f)")
	flags.StringVar(&level, "level", "", "Filter by minimum level (debug/info/warn/error)")
	flags.StringVar(&since, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	flags.StringVar(&grep, "grep", "", "Filter logs matching pattern (regex)")
	flags.StringVar(&component, "component", "", "Filter by component (facade, xprocess, watch, stress)")
	flags.StringVar(&pathGlob, "path", "", "Filter by target file glob (e.g., \"*/notes.txt\")")
	return cmd
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Msg       string         `json:"msg"`
	Component string         `json:"component,omitempty"`
	File      string         `json:"file,omitempty"`
	Op        string         `json:"op,omitempty"`
	Extra     map[string]any `json:"-"`
}

// UnmarshalJSON captures fields without a struct field in Extra.
func (e *logEntry) UnmarshalJSON(data []byte) error {
	type alias logEntry
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"time", "level", "msg", "component", "file", "op"} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

func renderLevel(level string) string {
	tag := "[" + strings.ToUpper(level) + "]"
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return styles.Muted.Render(tag)
	case logging.LevelInfo:
		return styles.Primary.Render(tag)
	case logging.LevelWarn:
		return styles.Warning.Render(tag)
	case logging.LevelError:
		return styles.Error.Render(tag)
	default:
		return tag
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry *logEntry) string {
	var sb strings.Builder

	sb.WriteString(styles.Muted.Render("[" + entry.Time.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(renderLevel(entry.Level))
	if entry.Component != "" {
		sb.WriteString(" ")
		sb.WriteString(styles.Secondary.Render(entry.Component))
	}
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	field := func(key string, value any) {
		sb.WriteString(" ")
		sb.WriteString(styles.Muted.Render(key + "="))
		sb.WriteString(fmt.Sprintf("%v", value))
	}
	if entry.Op != "" {
		field("op", entry.Op)
	}
	if entry.File != "" {
		field("file", entry.File)
	}

	keys := make([]string, 0, len(entry.Extra))
	for k := range entry.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field(k, entry.Extra[k])
	}

	return sb.String()
}

// formatLine renders one raw log line, or returns false if it is filtered out.
// Lines that are not JSON are shown as they are.
func formatLine(line string, filter logFilter) (string, bool) {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line, true
	}
	if !filter.passes(&entry) {
		return "", false
	}
	return formatLogEntry(&entry), true
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(out io.Writer, logPath string, tail int, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if s, ok := formatLine(line, filter); ok {
			entries = append(entries, s)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	for _, entry := range entries {
		fmt.Fprintln(out, entry)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
	}
	return nil
}

// followLogs implements tail -f behavior for the log file until ctx is done.
func followLogs(ctx context.Context, out io.Writer, logPath string, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	var partial string
	for {
		chunk, err := reader.ReadString('\n')
		partial += chunk
		if err != nil {
			if err != io.EOF {
				return fmt.Errorf("error reading log file: %w", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		line := strings.TrimSpace(partial)
		partial = ""
		if line == "" {
			continue
		}
		if s, ok := formatLine(line, filter); ok {
			fmt.Fprintln(out, s)
		}
	}
}

// passes checks if a log entry passes all filter criteria
func (f logFilter) passes(entry *logEntry) bool {
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.component != "" && entry.Component != f.component {
		return false
	}
	if f.path != nil && !f.path.Match(entry.File) {
		return false
	}

	// Search in message and all fields
	if f.grep != nil {
		searchText := entry.Msg + " " + entry.File + " " + entry.Op
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(searchText) {
			return false
		}
	}
	return true
}

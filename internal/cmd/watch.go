package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Iron-Ham/filegate/internal/tui/watchview"
	"github.com/Iron-Ham/filegate/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow changes to the file",
		Long: `Watch the target file and re-read it through the lock after every change,
so that only complete writes are shown.

By default an interactive view is started, from which text can also be
appended and the file cleared. With --plain, or when not attached to a
terminal, every change is printed as a line instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			w, err := watch.New(a.facade,
				watch.WithDebounce(a.cfg.Watch.Debounce()),
				watch.WithLogger(a.logger),
			)
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer w.Stop()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// The interactive view needs a terminal on both ends.
			if a.cfg.Watch.Plain || !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
				return watchPlain(ctx, cmd, w)
			}
			return watchInteractive(ctx, a, w)
		},
	}

	cmd.Flags().Bool("plain", false, "print changes line by line")
	_ = viper.BindPFlag("watch.plain", cmd.Flags().Lookup("plain"))
	return cmd
}

func watchPlain(ctx context.Context, cmd *cobra.Command, w *watch.Watcher) error {
	out := cmd.OutOrStdout()
	w.SetCallback(func(c watch.Change) {
		ts := c.At.Format("15:04:05.000")
		if c.Err != nil {
			fmt.Fprintf(out, "[%s] %s: %v\n", ts, c.Path, c.Err)
			return
		}
		fmt.Fprintf(out, "[%s] %s: %d bytes, stamp %s (%s)\n", ts, c.Path, len(c.Content), c.Stamp, readPath(c.Optimistic))
	})

	if err := w.Start(ctx); err != nil {
		return err
	}
	w.Refresh(ctx)

	<-ctx.Done()
	return nil
}

func watchInteractive(ctx context.Context, a *app, w *watch.Watcher) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	path := a.facade.Status().File
	p := tea.NewProgram(watchview.New(ctx, a.facade, path), tea.WithAltScreen(), tea.WithContext(ctx))
	w.SetCallback(func(c watch.Change) {
		p.Send(watchview.ChangeMsg(c))
	})

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("watch view: %w", err)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/filegate/internal/charset"
	"github.com/Iron-Ham/filegate/internal/stamped"
)

func newReadCmd() *cobra.Command {
	var (
		encodingName string
		ascii        bool
		showStamp    bool
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print the file content",
		Long: `Print the content of the target file.

The read is first attempted without locking and validated afterwards; when
writers keep invalidating it, filegate falls back to a read lock.

Examples:
  filegate read -f notes.txt
  filegate read -f notes.txt --encoding ISO-8859-1
  filegate read -f notes.txt --ascii`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if encodingName != "" && ascii {
				return fmt.Errorf("--encoding and --ascii are mutually exclusive")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			var (
				text       string
				stamp      stamped.Stamp
				optimistic bool
			)
			switch {
			case ascii:
				text, stamp, optimistic, err = a.facade.ContentWithoutUnicode(ctx)
			case encodingName != "":
				text, stamp, optimistic, err = a.facade.ContentRaw(ctx, encodingName)
			default:
				text, stamp, optimistic, err = a.facade.Content(ctx)
			}
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), text)
			if showStamp {
				fmt.Fprintf(cmd.ErrOrStderr(), "\nstamp: %s (%s)\n", stamp, readPath(optimistic))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&encodingName, "encoding", "", "decode with this charset instead of the configured one")
	cmd.Flags().BoolVar(&ascii, "ascii", false, "decode as US-ASCII, replacing other bytes with U+FFFD")
	cmd.Flags().BoolVar(&showStamp, "stamp", false, "print the read stamp to stderr")
	_ = cmd.RegisterFlagCompletionFunc("encoding", completeEncodings)
	return cmd
}

// completeEncodings offers the built-in charsets; any IANA name is accepted.
func completeEncodings(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return charset.Names(), cobra.ShellCompDirectiveNoFileComp
}

func newWriteCmd() *cobra.Command {
	var (
		appendMode bool
		optimistic bool
	)

	cmd := &cobra.Command{
		Use:   "write [text...]",
		Short: "Replace or append to the file content",
		Long: `Write text to the target file, replacing its content unless --append is set.
Arguments are joined with spaces; with no arguments the text is read from stdin.

With --optimistic the file reference is read first and its stamp is handed
to the write, which then converts it in place instead of queueing for the
write lock.

Examples:
  filegate write -f notes.txt hello world
  echo "more" | filegate write -f notes.txt --append`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(data)
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			var stamp *stamped.Stamp
			if optimistic {
				_, s, ok, err := a.facade.FileReference(ctx)
				if err != nil {
					return err
				}
				if ok {
					stamp = &s
				}
			}
			return a.facade.SaveContent(ctx, text, appendMode, stamp)
		},
	}

	cmd.Flags().BoolVarP(&appendMode, "append", "a", false, "append instead of replacing")
	cmd.Flags().BoolVar(&optimistic, "optimistic", false, "pass a read stamp to the write")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Truncate the file to zero length",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return a.facade.ClearContent(cmd.Context())
		},
	}
}

func readPath(optimistic bool) string {
	if optimistic {
		return "optimistic"
	}
	return "pessimistic"
}

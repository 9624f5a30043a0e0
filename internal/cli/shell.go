package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

const maxShellLine = 4 << 20

func newShellCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands from stdin against one long-lived cache",
		Long: "shell keeps a single cache open and executes one command per input line,\n" +
			"so mirror behaviour (hits, resyncs, evictions) is observable across commands.\n" +
			"Blank lines and lines starting with # are ignored; 'help' lists commands.",
		Args: cobra.NoArgs,
		RunE: o.withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			return runShell(cmd.Context(), s, cmd.InOrStdin(), cmd.OutOrStdout())
		}),
	}
}

// runShell stops at EOF or quit. Command errors are printed and do not end the
// session.
func runShell(ctx context.Context, s *session, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxShellLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, rest, _ := strings.Cut(line, " ")
		switch name {
		case "quit", "exit":
			return nil
		case "help":
			printShellHelp(out)
			continue
		}
		o, ok := lookupOp(name)
		if !ok {
			fmt.Fprintf(out, "error: unknown command %q\n", name)
			continue
		}
		if err := s.exec(ctx, o, rest, out); err != nil {
			var cerr CommandError
			if errors.As(err, &cerr) && cerr.ExitCode == 2 {
				fmt.Fprintf(out, "usage: %s: %v\n", o.usage(), err)
				continue
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return sc.Err()
}

func printShellHelp(out io.Writer) {
	for _, o := range ops {
		fmt.Fprintf(out, "  %-28s %s\n", o.usage(), o.short)
	}
	fmt.Fprintf(out, "  %-28s %s\n", "quit", "Leave the shell")
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd constructs the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "mcache",
		Short: "mcache - cache-aside access to a document collection",
		Long: "mcache runs cache operations against a MongoDB, Redis or in-memory collection\n" +
			"through a process-local mirror. Settings come from ./mcache.yaml or --config.",
	}
	cmd.SilenceUsage = true
	cmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "Path to the YAML config (default ./mcache.yaml)")
	cmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Log cache events to stderr")
	for _, oc := range ops {
		cmd.AddCommand(newOpCmd(o, oc))
	}
	cmd.AddCommand(newShellCmd(o))
	return cmd
}

// Execute runs the CLI entrypoint.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		exitCode := 1
		var cerr CommandError
		if errors.As(err, &cerr) {
			fmt.Fprintln(os.Stderr, cerr.Error())
			if cerr.Cause != nil && cerr.Message != cerr.Cause.Error() {
				fmt.Fprintf(os.Stderr, "details: %v\n", cerr.Cause)
			}
			if cerr.Suggestion != "" {
				fmt.Fprintln(os.Stderr, formatSuggestion(cerr.Suggestion))
			}
			exitCode = cerr.ExitStatus()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode)
	}
}

func newOpCmd(o *rootOptions, oc op) *cobra.Command {
	cmd := &cobra.Command{
		Use:   oc.usage(),
		Short: oc.short,
		RunE: o.withSession(func(cmd *cobra.Command, args []string, s *session) error {
			return s.exec(cmd.Context(), oc, strings.Join(args, " "), cmd.OutOrStdout())
		}),
	}
	if oc.args == noArgs {
		cmd.Args = cobra.NoArgs
	}
	return cmd
}

func (o *rootOptions) withSession(fn func(cmd *cobra.Command, args []string, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(o.configPath)
		if err != nil {
			return wrapError("", err, "check --config or ./mcache.yaml")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
			cmd.SetContext(ctx)
		}
		s, err := openSession(ctx, cfg, o.verbose, cmd.ErrOrStderr())
		if err != nil {
			return wrapError(fmt.Sprintf("open %s store", cfg.Store.Driver), err, "")
		}
		defer s.Close(ctx)
		return fn(cmd, args, s)
	}
}

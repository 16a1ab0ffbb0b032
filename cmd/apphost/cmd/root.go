// Package cmd holds the apphost command line.
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, set with -ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apphost",
		Short: "apphost - run an application composed of modules",
		Long: `apphost runs an application composed of the bundled modules: HTTP and gRPC
servers, Postgres, background jobs, cache, storage, email, scheduling and telemetry.
Modules are configured from appsettings files, APPHOST_ environment variables and
--Section:Key=value arguments.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

// NewVersionCommand prints build information.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// PrintVersion formats the build information.
func PrintVersion() string {
	return fmt.Sprintf("apphost %s (commit: %s, built on: %s)", Version, Commit, Date)
}

// exitError carries a non-zero exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return fmt.Sprintf("exit code %d: %v", e.code, e.err) }

func (e *exitError) Unwrap() error { return e.err }

// ExitCode returns the process exit code carried by err, if any.
func ExitCode(err error) (int, bool) {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code, true
	}
	return 0, false
}

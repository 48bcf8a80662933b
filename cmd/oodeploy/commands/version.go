package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersionInfo records build information for the version command.
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

// Version returns the command that prints build information.
func Version() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "oodeploy %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

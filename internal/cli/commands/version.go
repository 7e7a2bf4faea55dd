package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display Strata version and build information.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Strata v%s\n", version)
			if commit != "" && commit != "unknown" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", commit)
			}
			if date != "" && date != "unknown" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "built:  %s\n", date)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Declarative action runner built with Go and DuckDB")
		},
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groupoverlap/groupoverlap/internal/build"
)

// NewVersionCommand returns the command to get the groupoverlap version
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Return the groupoverlap version",
		Long:  "Return the groupoverlap version.",
		RunE:  version,
		Args:  cobra.NoArgs,
	}

	return cmd
}

// print out the built version
func version(cmd *cobra.Command, _ []string) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "groupoverlap version %s date %s commit id %s\n", build.Version, build.Date, build.Commit)
	return err
}

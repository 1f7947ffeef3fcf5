// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with GROUPOVERLAP, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("GROUPOVERLAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/groupoverlap", "$HOME/.groupoverlap", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	return &cobra.Command{
		Use:   "groupoverlap",
		Short: "Find the groups that the members of a set of seed groups share",
		Long: `Find the groups that the members of a set of seed groups share.

groupoverlap collects the members of one or more seed groups, looks up every group each
member belongs to, and ranks those groups by the number of seed members they contain.`,
		SilenceUsage: true,
	}
}

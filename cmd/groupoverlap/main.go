package main

import (
	"os"

	"github.com/groupoverlap/groupoverlap/cmd"
	"github.com/groupoverlap/groupoverlap/cmd/scan"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	scanCmd := scan.NewScanCommand()
	rootCmd.AddCommand(scanCmd)

	versionCmd := cmd.NewVersionCommand()
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groupoverlap/groupoverlap/internal/build"
)

func TestVersionCommand(t *testing.T) {
	rootCmd := NewRootCommand()
	rootCmd.AddCommand(NewVersionCommand())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())

	require.Equal(t, "groupoverlap version "+build.Version+" date "+build.Date+" commit id "+build.Commit+"\n", out.String())
}

func TestVersionCommandRejectsArgs(t *testing.T) {
	rootCmd := NewRootCommand()
	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"version", "extra"})

	require.Error(t, rootCmd.Execute())
}

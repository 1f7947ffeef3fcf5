package scan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/groupoverlap/groupoverlap/cmd"
	"github.com/groupoverlap/groupoverlap/cmd/util"
	"github.com/groupoverlap/groupoverlap/internal/config"
	"github.com/groupoverlap/groupoverlap/internal/directory/directorytest"
	"github.com/groupoverlap/groupoverlap/internal/pipeline"
	"github.com/groupoverlap/groupoverlap/pkg/logger"
)

// newRootWith wires the scan command the way main does. viper is reset before
// the commands are built, since building them binds flags and env vars.
func newRootWith(t *testing.T, newScanCmd func() *cobra.Command, args ...string) *cobra.Command {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	rootCmd := cmd.NewRootCommand()
	rootCmd.AddCommand(newScanCmd())
	rootCmd.SetArgs(append([]string{"scan"}, args...))
	return rootCmd
}

// withRunE builds a scan command whose run is replaced by fn.
func withRunE(fn func(*cobra.Command, []string) error) func() *cobra.Command {
	return func() *cobra.Command {
		scanCmd := NewScanCommand()
		scanCmd.RunE = fn
		return scanCmd
	}
}

func TestScanCommandNoConfigDefaultValues(t *testing.T) {
	util.PrepareTempConfigDir(t)
	newScanCmd := withRunE(func(_ *cobra.Command, _ []string) error {
		cfg, err := ReadConfig()
		require.NoError(t, err)
		require.Equal(t, config.DefaultConfig(), cfg)
		return nil
	})

	require.NoError(t, newRootWith(t, newScanCmd).Execute())
}

func TestScanCommandConfigFileValuesAreParsed(t *testing.T) {
	configFile := `api:
    groupsURL: http://localhost:9999
http:
    timeout: 3s
    retry:
        max: 2
        waitMin: 10ms
fanout:
    workers: 7
trace:
    otlp:
        endpoint: collector:4317
output:
    format: yaml
`
	util.PrepareTempConfigFile(t, configFile)

	newScanCmd := withRunE(func(_ *cobra.Command, _ []string) error {
		cfg, err := ReadConfig()
		require.NoError(t, err)
		require.Equal(t, "http://localhost:9999", cfg.API.GroupsURL)
		require.Equal(t, 3*time.Second, cfg.HTTP.Timeout)
		require.Equal(t, 2, cfg.HTTP.Retry.Max)
		require.Equal(t, 10*time.Millisecond, cfg.HTTP.Retry.WaitMin)
		require.Equal(t, config.DefaultHTTPRetryWaitMax, cfg.HTTP.Retry.WaitMax)
		require.Equal(t, 7, cfg.Fanout.Workers)
		require.Equal(t, "collector:4317", cfg.Trace.OTLP.Endpoint)
		require.Equal(t, "yaml", cfg.Output.Format)
		return nil
	})

	require.NoError(t, newRootWith(t, newScanCmd).Execute())
}

func TestScanCommandConfigIsMerged(t *testing.T) {
	configFile := `fanout:
    workers: 7
    taskTimeout: 1m
`
	util.PrepareTempConfigFile(t, configFile)

	t.Setenv("GROUPOVERLAP_FANOUT_WORKERS", "9")
	t.Setenv("GROUPOVERLAP_HTTP_RATE_LIMIT", "2.5")
	t.Setenv("GROUPOVERLAP_CACHE_ENABLED", "false")
	t.Setenv("GROUPOVERLAP_LOG_TIMESTAMP_FORMAT", "ISO8601")

	newScanCmd := withRunE(func(_ *cobra.Command, _ []string) error {
		cfg, err := ReadConfig()
		require.NoError(t, err)
		require.Equal(t, 9, cfg.Fanout.Workers)
		require.Equal(t, time.Minute, cfg.Fanout.TaskTimeout)
		require.InDelta(t, 2.5, cfg.HTTP.RateLimit, 0)
		require.False(t, cfg.Cache.Enabled)
		require.Equal(t, "ISO8601", cfg.Log.TimestampFormat)
		require.Equal(t, 25, cfg.Collector.PageSize)
		return nil
	})

	require.NoError(t, newRootWith(t, newScanCmd, "--collector-page-size", "25").Execute())
}

func TestScanCommandRejectsInvalidConfig(t *testing.T) {
	util.PrepareTempConfigDir(t)

	err := newRootWith(t, NewScanCommand, "100", "--collector-page-size", "7").Execute()
	require.EqualError(t, err, "config 'collector.pageSize' must be one of [10, 25, 50, 100], got 7")
}

func seededServer(t *testing.T) *directorytest.Server {
	t.Helper()
	srv := directorytest.NewServer(t)
	srv.AddGroup(100, 1, 2)
	srv.AddGroup(200, 2, 3)
	srv.SetAffiliations(1, 100, 300)
	srv.SetAffiliations(2, 100, 200, 300, 400)
	srv.SetAffiliations(3, 200, 300)
	return srv
}

func TestScanCommandWritesReport(t *testing.T) {
	util.PrepareTempConfigDir(t)
	srv := seededServer(t)
	outDir := t.TempDir()

	rootCmd := newRootWith(t, NewScanCommand,
		"100,200",
		"--api-groups-url", srv.URL,
		"--output-dir", outDir,
		"--log-level", "none",
	)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	require.NoError(t, rootCmd.Execute())

	path := strings.TrimSpace(out.String())
	require.Equal(t, outDir, filepath.Dir(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t,
		"Group 300 - https://www.roblox.com/groups/300/Group-300 - 3 occurrences\n"+
			"Group 400 - https://www.roblox.com/groups/400/Group-400 - 1 occurrence\n",
		string(b))
}

func TestScanContextPromptsWithoutArgs(t *testing.T) {
	srv := seededServer(t)
	cfg := config.DefaultConfig()
	cfg.API.GroupsURL = srv.URL
	cfg.Output.Dir = t.TempDir()
	cfg.Output.Format = "yaml"
	cfg.HTTP.RateLimit = 0

	var out, prompt bytes.Buffer
	s := &ScanContext{
		Logger: logger.NewNoopLogger(),
		In:     strings.NewReader("100\n999\n200\ndone\n"),
		Out:    &out,
		Prompt: &prompt,
	}
	require.NoError(t, s.Run(context.Background(), cfg, nil))

	require.Contains(t, prompt.String(), "The group id 999 does not exist, ignoring id.")

	// stdout carries nothing but the report path
	path := strings.TrimSuffix(out.String(), "\n")
	require.NotContains(t, path, "\n")
	require.True(t, filepath.IsAbs(path), "unexpected report path %q", path)
	require.Equal(t, cfg.Output.Dir, filepath.Dir(path))
	require.Equal(t, ".yaml", filepath.Ext(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "sharedMemberCount: 3")
}

func TestScanContextNoValidArgs(t *testing.T) {
	cfg := config.DefaultConfig()
	s := &ScanContext{Logger: logger.NewNoopLogger(), Out: &bytes.Buffer{}}

	err := s.Run(context.Background(), cfg, []string{"abc", "0"})
	require.ErrorIs(t, err, ErrNoGroupIDs)
}

func TestScanContextNoValidSeeds(t *testing.T) {
	srv := directorytest.NewServer(t)
	cfg := config.DefaultConfig()
	cfg.API.GroupsURL = srv.URL
	cfg.Output.Dir = t.TempDir()

	s := &ScanContext{Logger: logger.NewNoopLogger(), Out: &bytes.Buffer{}}
	err := s.Run(context.Background(), cfg, []string{"1"})
	require.ErrorIs(t, err, pipeline.ErrNoSeeds)

	entries, err := os.ReadDir(cfg.Output.Dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// Package scan contains the command that runs a group overlap scan.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/groupoverlap/groupoverlap/internal/collector"
	"github.com/groupoverlap/groupoverlap/internal/config"
	"github.com/groupoverlap/groupoverlap/internal/directory"
	"github.com/groupoverlap/groupoverlap/internal/fanout"
	"github.com/groupoverlap/groupoverlap/internal/pipeline"
	"github.com/groupoverlap/groupoverlap/internal/report"
	"github.com/groupoverlap/groupoverlap/internal/resolver"
	"github.com/groupoverlap/groupoverlap/internal/seeds"
	"github.com/groupoverlap/groupoverlap/pkg/group"
	"github.com/groupoverlap/groupoverlap/pkg/httpclient"
	"github.com/groupoverlap/groupoverlap/pkg/logger"
	"github.com/groupoverlap/groupoverlap/pkg/telemetry"
)

// ErrNoGroupIDs is returned when the arguments contain no valid group id.
var ErrNoGroupIDs = errors.New("no valid group ids given")

func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [group-id...]",
		Short: "Rank the groups shared by the members of the seed groups",
		Long: `Rank the groups shared by the members of the seed groups.

Seed group ids may be given as arguments, separated by spaces or commas. Without
arguments the ids are read from an interactive prompt.`,
		RunE: run,
		Args: cobra.ArbitraryArgs,
	}

	bindScanFlags(cmd)

	return cmd
}

// ReadConfig returns the scan configuration based on the values provided by flags,
// environment variables and the 'config.yaml' file.
func ReadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load scan config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan config: %w", err)
	}

	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := ReadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Verify(); err != nil {
		return err
	}

	l, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level, cfg.Log.TimestampFormat)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	scanCtx := &ScanContext{
		Logger: l,
		In:     cmd.InOrStdin(),
		Out:    cmd.OutOrStdout(),
		Prompt: cmd.ErrOrStderr(),
	}
	return scanCtx.Run(ctx, cfg, args)
}

// ScanContext holds what a scan needs beyond its configuration. Out only
// receives the report path; the interactive prompt writes to Prompt, or to
// stderr when Prompt is nil.
type ScanContext struct {
	Logger logger.Logger
	In     io.Reader
	Out    io.Writer
	Prompt io.Writer
}

// Run executes a scan and writes the report. Interrupt and SIGTERM cancel the scan.
func (s *ScanContext) Run(ctx context.Context, cfg *config.Config, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := s.telemetryConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		// the batch span processor can take up to 5 seconds to export.
		ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
		defer cancel()
		if err := tp.Close(ctx); err != nil {
			s.Logger.Error("failed to flush traces", zap.Error(err))
		}
	}()

	stopMetrics := s.metricsServer(cfg)
	defer stopMetrics()

	dir, closeDirectory, err := s.directoryConfig(cfg)
	if err != nil {
		return err
	}
	defer closeDirectory()

	seedIDs, err := s.seedIDs(ctx, dir, args)
	if err != nil {
		return err
	}

	engine := fanout.New(
		resolver.New(dir, resolver.WithLogger(s.Logger)),
		fanout.WithWorkers(cfg.Fanout.Workers),
		fanout.WithTaskTimeout(cfg.Fanout.TaskTimeout),
		fanout.WithProgressInterval(cfg.Fanout.ProgressInterval),
		fanout.WithLogger(s.Logger),
	)

	p := pipeline.New(
		dir,
		collector.New(dir, collector.WithLogger(s.Logger)),
		engine,
		pipeline.WithCollectConcurrency(cfg.Collector.Concurrency),
		pipeline.WithLogger(s.Logger),
	)

	result, err := p.Run(ctx, seedIDs)
	if err != nil {
		return err
	}

	writer := report.NewWriter(
		report.WithGroupURLBase(cfg.API.GroupURLBase),
		report.WithTop(cfg.Report.Top),
	)
	path, err := writer.WriteFile(cfg.Output.Dir, cfg.Output.Format, result)
	if err != nil {
		return err
	}

	s.Logger.Info("scan finished",
		zap.String("run_id", result.RunID),
		zap.String("report", path),
		zap.Int("ranked_groups", len(result.Entries)),
		zap.Int("members_collected", result.Stats.MembersCollected),
		zap.Int("invalid_seeds", result.Stats.InvalidSeeds),
		zap.Int("unreachable_seeds", result.Stats.UnreachableSeeds),
		zap.Int("partial_collections", result.Stats.PartialCollections),
		zap.Int("affiliation_failures", result.Stats.AffiliationFailures),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)

	if ctx.Err() != nil {
		s.Logger.Warn("scan was interrupted, the report only covers the lookups completed before the interruption")
	}

	_, err = fmt.Fprintln(s.Out, path)
	return err
}

func (s *ScanContext) telemetryConfig(ctx context.Context, cfg *config.Config) (telemetry.TracerProvider, error) {
	if !cfg.Trace.Enabled {
		return telemetry.Noop(), nil
	}

	s.Logger.Info(fmt.Sprintf("🕵 tracing enabled: sampling ratio is %v and sending traces to '%s', tls: %t", cfg.Trace.SampleRatio, cfg.Trace.OTLP.Endpoint, cfg.Trace.OTLP.TLS.Enabled))

	options := []telemetry.TracerOption{
		telemetry.WithOTLPEndpoint(cfg.Trace.OTLP.Endpoint),
		telemetry.WithServiceName(cfg.Trace.ServiceName),
		telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
	}
	if !cfg.Trace.OTLP.TLS.Enabled {
		options = append(options, telemetry.WithOTLPInsecure())
	}

	return telemetry.NewTracerProvider(ctx, options...)
}

func (s *ScanContext) metricsServer(cfg *config.Config) func() {
	if !cfg.Metrics.Enabled {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		s.Logger.Info(fmt.Sprintf("📈 starting prometheus metrics server on '%s'", cfg.Metrics.Addr))
		if err := metricsServer.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("failed to start prometheus metrics server", zap.Error(err))
			}
		}
		s.Logger.Info("metrics server shut down.")
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			s.Logger.Error("failed to shut down the prometheus metrics server", zap.Error(err))
		}
	}
}

func (s *ScanContext) directoryConfig(cfg *config.Config) (directory.Directory, func(), error) {
	httpClient := httpclient.New(
		httpclient.WithTimeout(cfg.HTTP.Timeout),
		httpclient.WithRetry(cfg.HTTP.Retry.Max, cfg.HTTP.Retry.WaitMin, cfg.HTTP.Retry.WaitMax),
		httpclient.WithRateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst),
		httpclient.WithMaxConnsPerHost(cfg.Fanout.Workers),
		httpclient.WithLogger(s.Logger),
	)

	client := directory.NewClient(
		directory.WithBaseURL(cfg.API.GroupsURL),
		directory.WithUserGroupsPath(cfg.API.UserGroupsPath),
		directory.WithPageSize(cfg.Collector.PageSize),
		directory.WithHTTPClient(httpClient),
		directory.WithLogger(s.Logger),
	)

	if !cfg.Cache.Enabled {
		return client, func() {}, nil
	}

	cached, err := directory.NewCachedDirectory(client, cfg.Cache.Size, cfg.Cache.TTL)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

// seedIDs parses the arguments, or prompts for ids when there are none.
func (s *ScanContext) seedIDs(ctx context.Context, dir directory.Directory, args []string) ([]group.ID, error) {
	if len(args) == 0 {
		promptOut := s.Prompt
		if promptOut == nil {
			promptOut = os.Stderr
		}
		prompt := seeds.NewPrompt(s.In, promptOut, func(ctx context.Context, id group.ID) error {
			_, err := dir.FetchGroup(ctx, id)
			return err
		})
		return prompt.Run(ctx)
	}

	ids, rejected := seeds.ParseIDs(strings.Join(args, ","))
	for _, token := range rejected {
		s.Logger.Warn("ignoring invalid group id", zap.String("input", token))
	}
	if len(ids) == 0 {
		return nil, ErrNoGroupIDs
	}
	return ids, nil
}

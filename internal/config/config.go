// Package config contains all knobs and defaults used to configure a
// groupoverlap scan.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"time"
)

const (
	DefaultGroupsBaseURL  = "https://groups.roblox.com"
	DefaultUserGroupsPath = "/v1/users/%d/groups/roles"
	DefaultGroupURLBase   = "https://www.roblox.com/groups"

	DefaultHTTPTimeout      = 10 * time.Second
	DefaultHTTPRetryMax     = 4
	DefaultHTTPRetryWaitMin = 500 * time.Millisecond
	DefaultHTTPRetryWaitMax = 30 * time.Second
	DefaultHTTPRateLimit    = 50
	DefaultHTTPRateBurst    = 10

	// The membership endpoint only accepts page sizes of 10, 25, 50 and 100.
	DefaultCollectorPageSize    = 100
	DefaultCollectorConcurrency = 4

	DefaultFanoutTaskTimeout      = 30 * time.Second
	DefaultFanoutProgressInterval = 100

	DefaultCacheSize = 10_000
	DefaultCacheTTL  = 10 * time.Minute
)

// DefaultFanoutWorkers is the default size of the affiliation worker pool. The work is
// I/O bound so the pool is a multiple of the available parallelism.
func DefaultFanoutWorkers() int {
	return 4 * runtime.GOMAXPROCS(0)
}

// APIConfig defines the location of the consumed endpoints.
type APIConfig struct {
	// GroupsURL is the base URL of the groups service (e.g. 'https://groups.roblox.com').
	GroupsURL string

	// UserGroupsPath is the path template of the member group-roles endpoint. It must
	// contain a single '%d' verb for the member id.
	UserGroupsPath string

	// GroupURLBase is the base of the canonical group URL written to reports.
	GroupURLBase string
}

// RetryConfig defines the retry policy for 429 and 5xx responses.
type RetryConfig struct {
	Max     int
	WaitMin time.Duration
	WaitMax time.Duration
}

// HTTPConfig defines the behaviour of the outbound HTTP client.
type HTTPConfig struct {
	// Timeout bounds every single HTTP call, including reading the body.
	Timeout time.Duration
	Retry   RetryConfig

	// RateLimit is the sustained number of requests per second. 0 disables limiting.
	RateLimit float64
	RateBurst int
}

type CollectorConfig struct {
	PageSize int
	// Concurrency is the number of seed groups collected at the same time.
	Concurrency int
}

type FanoutConfig struct {
	Workers          int
	TaskTimeout      time.Duration
	ProgressInterval int
}

// CacheConfig defines the group metadata cache used when validating seed ids.
type CacheConfig struct {
	Enabled bool
	Size    int64
	TTL     time.Duration
}

type ReportConfig struct {
	// Top limits the number of ranked groups written. 0 writes every group.
	Top int
}

type OutputConfig struct {
	Dir string
	// Format is the report format (e.g. 'text' or 'yaml').
	Format string
}

// LogConfig defines configurations for log specific settings. For unattended runs we
// recommend using the 'json' log format.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string

	// Format of the timestamp in the log output (e.g. 'Unix'(default) or 'ISO8601')
	TimestampFormat string
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string
}

type OTLPTraceConfig struct {
	Endpoint string
	TLS      OTLPTraceTLSConfig
}

type OTLPTraceTLSConfig struct {
	Enabled bool
}

// MetricConfig defines configurations for serving Prometheus metrics while a scan runs.
type MetricConfig struct {
	Enabled bool
	Addr    string
}

type Config struct {
	API       APIConfig
	HTTP      HTTPConfig
	Collector CollectorConfig
	Fanout    FanoutConfig
	Cache     CacheConfig
	Report    ReportConfig
	Output    OutputConfig
	Log       LogConfig
	Trace     TraceConfig
	Metrics   MetricConfig
}

func (cfg *Config) Verify() error {
	u, err := url.Parse(cfg.API.GroupsURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config 'api.groupsURL' must be an absolute URL, got '%s'", cfg.API.GroupsURL)
	}

	if cfg.API.UserGroupsPath == "" {
		return errors.New("config 'api.userGroupsPath' must be set")
	}

	if cfg.HTTP.Timeout <= 0 {
		return fmt.Errorf("config 'http.timeout' must be positive, got %s", cfg.HTTP.Timeout)
	}

	if cfg.HTTP.Retry.Max < 0 {
		return errors.New("config 'http.retry.max' cannot be negative")
	}

	if cfg.HTTP.Retry.WaitMin > cfg.HTTP.Retry.WaitMax {
		return fmt.Errorf(
			"config 'http.retry.waitMin' (%s) cannot be greater than 'http.retry.waitMax' (%s)",
			cfg.HTTP.Retry.WaitMin,
			cfg.HTTP.Retry.WaitMax,
		)
	}

	if cfg.HTTP.RateLimit < 0 {
		return errors.New("config 'http.rateLimit' cannot be negative")
	}

	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst < 1 {
		return errors.New("config 'http.rateBurst' must be at least 1 when rate limiting is enabled")
	}

	switch cfg.Collector.PageSize {
	case 10, 25, 50, 100:
	default:
		return fmt.Errorf("config 'collector.pageSize' must be one of [10, 25, 50, 100], got %d", cfg.Collector.PageSize)
	}

	if cfg.Collector.Concurrency < 1 {
		return errors.New("config 'collector.concurrency' must be at least 1")
	}

	if cfg.Fanout.Workers < 1 {
		return errors.New("config 'fanout.workers' must be at least 1")
	}

	if cfg.Fanout.TaskTimeout <= 0 {
		return fmt.Errorf("config 'fanout.taskTimeout' must be positive, got %s", cfg.Fanout.TaskTimeout)
	}

	if cfg.Fanout.ProgressInterval < 1 {
		return errors.New("config 'fanout.progressInterval' must be at least 1")
	}

	if cfg.Cache.Enabled && cfg.Cache.Size < 1 {
		return errors.New("config 'cache.size' must be at least 1 when the cache is enabled")
	}

	if cfg.Report.Top < 0 {
		return errors.New("config 'report.top' cannot be negative")
	}

	if cfg.Output.Format != "text" && cfg.Output.Format != "yaml" {
		return fmt.Errorf("config 'output.format' must be one of ['text', 'yaml']")
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if cfg.Log.Level != "none" &&
		cfg.Log.Level != "debug" &&
		cfg.Log.Level != "info" &&
		cfg.Log.Level != "warn" &&
		cfg.Log.Level != "error" &&
		cfg.Log.Level != "panic" &&
		cfg.Log.Level != "fatal" {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		)
	}

	if cfg.Log.TimestampFormat != "Unix" && cfg.Log.TimestampFormat != "ISO8601" {
		return fmt.Errorf("config 'log.TimestampFormat' must be one of ['Unix', 'ISO8601']")
	}

	if cfg.Trace.Enabled && (cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1) {
		return fmt.Errorf("config 'trace.sampleRatio' must be within [0, 1], got %v", cfg.Trace.SampleRatio)
	}

	return nil
}

// DefaultConfig returns the default scan configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			GroupsURL:      DefaultGroupsBaseURL,
			UserGroupsPath: DefaultUserGroupsPath,
			GroupURLBase:   DefaultGroupURLBase,
		},
		HTTP: HTTPConfig{
			Timeout: DefaultHTTPTimeout,
			Retry: RetryConfig{
				Max:     DefaultHTTPRetryMax,
				WaitMin: DefaultHTTPRetryWaitMin,
				WaitMax: DefaultHTTPRetryWaitMax,
			},
			RateLimit: DefaultHTTPRateLimit,
			RateBurst: DefaultHTTPRateBurst,
		},
		Collector: CollectorConfig{
			PageSize:    DefaultCollectorPageSize,
			Concurrency: DefaultCollectorConcurrency,
		},
		Fanout: FanoutConfig{
			Workers:          DefaultFanoutWorkers(),
			TaskTimeout:      DefaultFanoutTaskTimeout,
			ProgressInterval: DefaultFanoutProgressInterval,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    DefaultCacheSize,
			TTL:     DefaultCacheTTL,
		},
		Output: OutputConfig{
			Dir:    ".",
			Format: "text",
		},
		Log: LogConfig{
			Format:          "text",
			Level:           "info",
			TimestampFormat: "Unix",
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPTraceConfig{
				Endpoint: "0.0.0.0:4317",
				TLS: OTLPTraceTLSConfig{
					Enabled: false,
				},
			},
			SampleRatio: 0.2,
			ServiceName: "groupoverlap",
		},
		Metrics: MetricConfig{
			Enabled: false,
			Addr:    "0.0.0.0:2112",
		},
	}
}

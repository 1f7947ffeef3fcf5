package scan

import (
	"github.com/spf13/cobra"

	"github.com/groupoverlap/groupoverlap/cmd/util"
	"github.com/groupoverlap/groupoverlap/internal/config"
)

// bindScanFlags binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindScanFlags(command *cobra.Command) {
	defaultConfig := config.DefaultConfig()
	flags := command.Flags()

	flags.String("api-groups-url", defaultConfig.API.GroupsURL, "the base URL of the groups service")
	util.MustBindPFlag("api.groupsURL", flags.Lookup("api-groups-url"))
	util.MustBindEnv("api.groupsURL", "GROUPOVERLAP_API_GROUPS_URL", "GROUPOVERLAP_API_GROUPSURL")

	flags.String("api-user-groups-path", defaultConfig.API.UserGroupsPath, "the path template of the member group-roles endpoint, with a single '%d' for the member id")
	util.MustBindPFlag("api.userGroupsPath", flags.Lookup("api-user-groups-path"))
	util.MustBindEnv("api.userGroupsPath", "GROUPOVERLAP_API_USER_GROUPS_PATH", "GROUPOVERLAP_API_USERGROUPSPATH")

	flags.String("api-group-url-base", defaultConfig.API.GroupURLBase, "the base of the group page links written to the report")
	util.MustBindPFlag("api.groupURLBase", flags.Lookup("api-group-url-base"))
	util.MustBindEnv("api.groupURLBase", "GROUPOVERLAP_API_GROUP_URL_BASE", "GROUPOVERLAP_API_GROUPURLBASE")

	flags.Duration("http-timeout", defaultConfig.HTTP.Timeout, "the timeout of a single HTTP request, including reading the response body")
	util.MustBindPFlag("http.timeout", flags.Lookup("http-timeout"))
	util.MustBindEnv("http.timeout", "GROUPOVERLAP_HTTP_TIMEOUT")

	flags.Int("http-retry-max", defaultConfig.HTTP.Retry.Max, "the maximum number of retries of a request answered with 429 or 5xx")
	util.MustBindPFlag("http.retry.max", flags.Lookup("http-retry-max"))
	util.MustBindEnv("http.retry.max", "GROUPOVERLAP_HTTP_RETRY_MAX")

	flags.Duration("http-retry-wait-min", defaultConfig.HTTP.Retry.WaitMin, "the minimum backoff between retries")
	util.MustBindPFlag("http.retry.waitMin", flags.Lookup("http-retry-wait-min"))
	util.MustBindEnv("http.retry.waitMin", "GROUPOVERLAP_HTTP_RETRY_WAIT_MIN", "GROUPOVERLAP_HTTP_RETRY_WAITMIN")

	flags.Duration("http-retry-wait-max", defaultConfig.HTTP.Retry.WaitMax, "the maximum backoff between retries")
	util.MustBindPFlag("http.retry.waitMax", flags.Lookup("http-retry-wait-max"))
	util.MustBindEnv("http.retry.waitMax", "GROUPOVERLAP_HTTP_RETRY_WAIT_MAX", "GROUPOVERLAP_HTTP_RETRY_WAITMAX")

	flags.Float64("http-rate-limit", defaultConfig.HTTP.RateLimit, "the sustained number of requests per second sent to the service (0 disables limiting)")
	util.MustBindPFlag("http.rateLimit", flags.Lookup("http-rate-limit"))
	util.MustBindEnv("http.rateLimit", "GROUPOVERLAP_HTTP_RATE_LIMIT", "GROUPOVERLAP_HTTP_RATELIMIT")

	flags.Int("http-rate-burst", defaultConfig.HTTP.RateBurst, "the number of requests allowed to exceed the rate limit in a burst")
	util.MustBindPFlag("http.rateBurst", flags.Lookup("http-rate-burst"))
	util.MustBindEnv("http.rateBurst", "GROUPOVERLAP_HTTP_RATE_BURST", "GROUPOVERLAP_HTTP_RATEBURST")

	flags.Int("collector-page-size", defaultConfig.Collector.PageSize, "the number of members requested per membership page (10, 25, 50 or 100)")
	util.MustBindPFlag("collector.pageSize", flags.Lookup("collector-page-size"))
	util.MustBindEnv("collector.pageSize", "GROUPOVERLAP_COLLECTOR_PAGE_SIZE", "GROUPOVERLAP_COLLECTOR_PAGESIZE")

	flags.Int("collector-concurrency", defaultConfig.Collector.Concurrency, "the number of seed groups validated and collected at the same time")
	util.MustBindPFlag("collector.concurrency", flags.Lookup("collector-concurrency"))
	util.MustBindEnv("collector.concurrency", "GROUPOVERLAP_COLLECTOR_CONCURRENCY")

	flags.Int("fanout-workers", defaultConfig.Fanout.Workers, "the number of concurrent affiliation lookups")
	util.MustBindPFlag("fanout.workers", flags.Lookup("fanout-workers"))
	util.MustBindEnv("fanout.workers", "GROUPOVERLAP_FANOUT_WORKERS")

	flags.Duration("fanout-task-timeout", defaultConfig.Fanout.TaskTimeout, "the deadline of a single affiliation lookup, including its retries")
	util.MustBindPFlag("fanout.taskTimeout", flags.Lookup("fanout-task-timeout"))
	util.MustBindEnv("fanout.taskTimeout", "GROUPOVERLAP_FANOUT_TASK_TIMEOUT", "GROUPOVERLAP_FANOUT_TASKTIMEOUT")

	flags.Int("fanout-progress-interval", defaultConfig.Fanout.ProgressInterval, "the number of completed lookups between two progress reports")
	util.MustBindPFlag("fanout.progressInterval", flags.Lookup("fanout-progress-interval"))
	util.MustBindEnv("fanout.progressInterval", "GROUPOVERLAP_FANOUT_PROGRESS_INTERVAL", "GROUPOVERLAP_FANOUT_PROGRESSINTERVAL")

	flags.Bool("cache-enabled", defaultConfig.Cache.Enabled, "enable/disable caching of group metadata lookups")
	util.MustBindPFlag("cache.enabled", flags.Lookup("cache-enabled"))
	util.MustBindEnv("cache.enabled", "GROUPOVERLAP_CACHE_ENABLED")

	flags.Int64("cache-size", defaultConfig.Cache.Size, "the maximum number of cached group metadata entries")
	util.MustBindPFlag("cache.size", flags.Lookup("cache-size"))
	util.MustBindEnv("cache.size", "GROUPOVERLAP_CACHE_SIZE")

	flags.Duration("cache-ttl", defaultConfig.Cache.TTL, "the time a cached group metadata entry stays valid")
	util.MustBindPFlag("cache.ttl", flags.Lookup("cache-ttl"))
	util.MustBindEnv("cache.ttl", "GROUPOVERLAP_CACHE_TTL")

	flags.Int("report-top", defaultConfig.Report.Top, "the number of ranked groups written to the report (0 writes all)")
	util.MustBindPFlag("report.top", flags.Lookup("report-top"))
	util.MustBindEnv("report.top", "GROUPOVERLAP_REPORT_TOP")

	flags.String("output-dir", defaultConfig.Output.Dir, "the directory the report file is written to")
	util.MustBindPFlag("output.dir", flags.Lookup("output-dir"))
	util.MustBindEnv("output.dir", "GROUPOVERLAP_OUTPUT_DIR")

	flags.String("output-format", defaultConfig.Output.Format, "the report format. Can be one of 'text' or 'yaml'")
	util.MustBindPFlag("output.format", flags.Lookup("output-format"))
	util.MustBindEnv("output.format", "GROUPOVERLAP_OUTPUT_FORMAT")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in. Can be one of 'text' or 'json'")
	util.MustBindPFlag("log.format", flags.Lookup("log-format"))
	util.MustBindEnv("log.format", "GROUPOVERLAP_LOG_FORMAT")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use. Can be one of 'none', 'debug', 'info', 'warn', 'error', 'panic' or 'fatal'")
	util.MustBindPFlag("log.level", flags.Lookup("log-level"))
	util.MustBindEnv("log.level", "GROUPOVERLAP_LOG_LEVEL")

	flags.String("log-timestamp-format", defaultConfig.Log.TimestampFormat, "the timestamp format to use for log messages. Can be one of 'Unix' or 'ISO8601'")
	util.MustBindPFlag("log.timestampFormat", flags.Lookup("log-timestamp-format"))
	util.MustBindEnv("log.timestampFormat", "GROUPOVERLAP_LOG_TIMESTAMP_FORMAT", "GROUPOVERLAP_LOG_TIMESTAMPFORMAT")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable serving prometheus metrics while the scan runs")
	util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	util.MustBindEnv("metrics.enabled", "GROUPOVERLAP_METRICS_ENABLED")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")
	util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	util.MustBindEnv("metrics.addr", "GROUPOVERLAP_METRICS_ADDR")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
	util.MustBindEnv("trace.enabled", "GROUPOVERLAP_TRACE_ENABLED")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")
	util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
	util.MustBindEnv("trace.otlp.endpoint", "GROUPOVERLAP_TRACE_OTLP_ENDPOINT")

	flags.Bool("trace-otlp-tls-enabled", defaultConfig.Trace.OTLP.TLS.Enabled, "use TLS connection for trace collector")
	util.MustBindPFlag("trace.otlp.tls.enabled", flags.Lookup("trace-otlp-tls-enabled"))
	util.MustBindEnv("trace.otlp.tls.enabled", "GROUPOVERLAP_TRACE_OTLP_TLS_ENABLED")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")
	util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
	util.MustBindEnv("trace.sampleRatio", "GROUPOVERLAP_TRACE_SAMPLE_RATIO", "GROUPOVERLAP_TRACE_SAMPLERATIO")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces.")
	util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
	util.MustBindEnv("trace.serviceName", "GROUPOVERLAP_TRACE_SERVICE_NAME", "GROUPOVERLAP_TRACE_SERVICENAME")
}

// Package httpclient builds the outbound HTTP client used to talk to the
// directory API: retries on 429/5xx with jittered exponential backoff, a
// client-side token bucket, a per-call timeout and a bounded connection pool.
package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/groupoverlap/groupoverlap/pkg/logger"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultRetryMax     = 4
	defaultRetryWaitMin = 500 * time.Millisecond
	defaultRetryWaitMax = 30 * time.Second
	defaultMaxConns     = 16

	randomizationFactor = 0.5
)

type ClientOption func(c *clientConfig)

type clientConfig struct {
	timeout      time.Duration
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	rateLimit    float64
	rateBurst    int
	maxConns     int
	logger       logger.Logger
	transport    http.RoundTripper
}

// WithTimeout bounds every single attempt, including reading the body.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

func WithRetry(max int, waitMin, waitMax time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.retryMax = max
		c.retryWaitMin = waitMin
		c.retryWaitMax = waitMax
	}
}

// WithRateLimit limits attempts to perSecond with the given burst. A zero rate disables limiting.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *clientConfig) {
		c.rateLimit = perSecond
		c.rateBurst = burst
	}
}

// WithMaxConnsPerHost bounds the connection pool. It should match the number of workers
// sharing the client.
func WithMaxConnsPerHost(n int) ClientOption {
	return func(c *clientConfig) {
		c.maxConns = n
	}
}

func WithLogger(l logger.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithTransport replaces the pooled base transport. Used by tests.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) {
		c.transport = rt
	}
}

// New returns an *http.Client whose round trips are retried according to the options.
// The returned client is safe for concurrent use.
func New(opts ...ClientOption) *http.Client {
	cfg := &clientConfig{
		timeout:      defaultTimeout,
		retryMax:     defaultRetryMax,
		retryWaitMin: defaultRetryWaitMin,
		retryWaitMax: defaultRetryWaitMax,
		maxConns:     defaultMaxConns,
		logger:       logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	base := cfg.transport
	if base == nil {
		base = pooledTransport(cfg.maxConns)
	}

	if cfg.rateLimit > 0 {
		base = &RateLimitedTransport{
			Base:    base,
			Limiter: rate.NewLimiter(rate.Limit(cfg.rateLimit), cfg.rateBurst),
		}
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(base),
		Timeout:   cfg.timeout,
	}
	client.RetryMax = cfg.retryMax
	client.RetryWaitMin = cfg.retryWaitMin
	client.RetryWaitMax = cfg.retryWaitMax
	client.Backoff = JitteredBackoff
	client.CheckRetry = retryablehttp.DefaultRetryPolicy
	// the caller classifies the final status code, so exhausted retries must surface the response
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = &leveledLogger{logger: cfg.logger}

	return client.StandardClient()
}

func pooledTransport(maxConns int) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxConnsPerHost = maxConns
	t.MaxIdleConnsPerHost = maxConns
	t.MaxIdleConns = maxConns
	return t
}

// JitteredBackoff honours a Retry-After header on 429 and 503 responses and otherwise
// waits an exponentially growing, randomized interval bounded by max.
func JitteredBackoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
		if resp.Header.Get("Retry-After") != "" {
			return retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = min
	policy.MaxInterval = max
	policy.RandomizationFactor = randomizationFactor
	policy.MaxElapsedTime = 0
	policy.Reset()

	var wait time.Duration
	for i := 0; i <= attemptNum; i++ {
		wait = policy.NextBackOff()
	}

	if wait > max {
		return max
	}
	return wait
}

// RateLimitedTransport waits for a token before every attempt.
type RateLimitedTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

var _ http.RoundTripper = (*RateLimitedTransport)(nil)

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return t.Base.RoundTrip(req)
}

// leveledLogger adapts Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger logger.Logger
}

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, fields(keysAndValues)...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, fields(keysAndValues)...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		out = append(out, zap.Any(key, keysAndValues[i+1]))
	}
	return out
}

// Package fanout resolves the affiliations of many members concurrently on a
// bounded worker pool.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/groupoverlap/groupoverlap/internal/build"
	"github.com/groupoverlap/groupoverlap/internal/concurrency"
	"github.com/groupoverlap/groupoverlap/internal/progress"
	"github.com/groupoverlap/groupoverlap/internal/resolver"
	"github.com/groupoverlap/groupoverlap/pkg/group"
	"github.com/groupoverlap/groupoverlap/pkg/logger"
)

var tracer = otel.Tracer("internal/fanout")

// ErrTaskTimeout tags a lookup that did not finish within the per-task deadline.
var ErrTaskTimeout = errors.New("affiliation lookup timed out")

var (
	tasksInFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: build.ProjectName,
		Name:      "fanout_tasks_in_flight",
		Help:      "The number of affiliation lookups currently running.",
	})

	taskDurationHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace:                       build.ProjectName,
		Name:                            "fanout_task_duration_ms",
		Help:                            "The duration (in ms) of a single affiliation lookup.",
		Buckets:                         []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	})
)

// AffiliationResolver looks up the groups of one member.
type AffiliationResolver interface {
	ResolveAffiliations(ctx context.Context, member group.MemberID) resolver.Affiliation
}

// ProgressFunc receives a checkpoint every progress interval completions.
type ProgressFunc func(ctx context.Context, s progress.Snapshot)

// Result holds every affiliation, in completion order, and the number that failed.
type Result struct {
	Affiliations []resolver.Affiliation
	Failed       int
	Elapsed      time.Duration
}

// DefaultWorkers is the default pool size.
func DefaultWorkers() int {
	return 4 * runtime.GOMAXPROCS(0)
}

type EngineOption func(e *Engine)

func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithTaskTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.taskTimeout = d
	}
}

func WithProgressInterval(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.progressInterval = n
		}
	}
}

func WithProgressFunc(fn ProgressFunc) EngineOption {
	return func(e *Engine) {
		e.onProgress = fn
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

type Engine struct {
	resolver         AffiliationResolver
	workers          int
	taskTimeout      time.Duration
	progressInterval int
	onProgress       ProgressFunc
	now              func() time.Time
	logger           logger.Logger
}

func New(r AffiliationResolver, opts ...EngineOption) *Engine {
	e := &Engine{
		resolver:         r,
		workers:          DefaultWorkers(),
		taskTimeout:      30 * time.Second,
		progressInterval: 100,
		now:              time.Now,
		logger:           logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.onProgress == nil {
		e.onProgress = e.logProgress
	}

	return e
}

// ResolveAll runs one lookup task per member. Workers only send results; the
// calling goroutine appends them and drives progress reporting. When ctx is
// cancelled, members not yet dispatched are reported as failed with the
// context error.
func (e *Engine) ResolveAll(ctx context.Context, members []group.MemberID) Result {
	ctx, span := tracer.Start(ctx, "fanout.ResolveAll", trace.WithAttributes(
		attribute.Int("members", len(members)),
		attribute.Int("workers", e.workers),
	))
	defer span.End()

	tracker := progress.NewTracker(len(members), progress.WithClock(e.now), progress.WithInterval(e.progressInterval))

	results := concurrency.Collect(ctx, concurrency.NewBoundedPool(e.workers), members,
		func(m group.MemberID) resolver.Affiliation {
			return e.resolve(ctx, m)
		},
		func(m group.MemberID, err error) resolver.Affiliation {
			return resolver.Affiliation{Member: m, Groups: group.NewSet(), Err: err}
		},
	)

	result := Result{Affiliations: make([]resolver.Affiliation, 0, len(members))}
	for aff := range results {
		result.Affiliations = append(result.Affiliations, aff)
		if aff.Failed() {
			result.Failed++
		}
		if snapshot, ok := tracker.Done(); ok {
			e.onProgress(ctx, snapshot)
		}
	}
	final := tracker.Snapshot()
	result.Elapsed = final.Elapsed

	span.SetAttributes(
		attribute.Int("completed", final.Completed),
		attribute.Int("failed", result.Failed),
	)

	return result
}

func (e *Engine) resolve(ctx context.Context, member group.MemberID) resolver.Affiliation {
	tasksInFlightGauge.Inc()
	defer tasksInFlightGauge.Dec()

	taskCtx := ctx
	if e.taskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, e.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	aff := e.resolver.ResolveAffiliations(taskCtx, member)
	taskDurationHistogram.Observe(float64(time.Since(start).Milliseconds()))

	if aff.Err != nil && ctx.Err() == nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		aff.Err = fmt.Errorf("%w: %w", ErrTaskTimeout, aff.Err)
	}

	return aff
}

func (e *Engine) logProgress(ctx context.Context, s progress.Snapshot) {
	e.logger.InfoWithContext(ctx, "resolving affiliations",
		zap.Int("completed", s.Completed),
		zap.Int("total", s.Total),
		zap.String("percent", fmt.Sprintf("%.1f%%", s.Percent())),
		zap.Duration("elapsed", s.Elapsed),
		zap.Duration("remaining", s.Remaining),
	)
}

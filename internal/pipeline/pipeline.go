// Package pipeline runs a complete overlap scan: seed validation, member
// collection, affiliation fan-out and ranking.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/groupoverlap/groupoverlap/internal/collector"
	"github.com/groupoverlap/groupoverlap/internal/directory"
	"github.com/groupoverlap/groupoverlap/internal/fanout"
	"github.com/groupoverlap/groupoverlap/internal/ranker"
	"github.com/groupoverlap/groupoverlap/pkg/group"
	"github.com/groupoverlap/groupoverlap/pkg/id"
	"github.com/groupoverlap/groupoverlap/pkg/logger"
	"github.com/groupoverlap/groupoverlap/pkg/telemetry"
)

var tracer = otel.Tracer("internal/pipeline")

// ErrNoSeeds is returned when none of the requested seed groups could be validated.
var ErrNoSeeds = errors.New("no valid seed groups")

// Stats counts the failures of each stage of a run.
type Stats struct {
	// InvalidSeeds are seeds the service reported as nonexistent.
	InvalidSeeds int `json:"invalidSeeds"`
	// UnreachableSeeds are seeds whose metadata could not be fetched.
	UnreachableSeeds    int `json:"unreachableSeeds"`
	PartialCollections  int `json:"partialCollections"`
	MembersCollected    int `json:"membersCollected"`
	AffiliationFailures int `json:"affiliationFailures"`
}

// Report is the outcome of a run.
type Report struct {
	RunID      string
	Seeds      []group.Record
	Entries    []group.RankingEntry
	Stats      Stats
	StartedAt  time.Time
	FinishedAt time.Time
}

// Resolver resolves the affiliations of every collected member.
type Resolver interface {
	ResolveAll(ctx context.Context, members []group.MemberID) fanout.Result
}

type PipelineOption func(p *Pipeline)

// WithCollectConcurrency bounds how many seed groups are collected at once.
func WithCollectConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.collectConcurrency = n
		}
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

func WithLogger(l logger.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

type Pipeline struct {
	directory          directory.Directory
	collector          *collector.Collector
	resolver           Resolver
	collectConcurrency int
	now                func() time.Time
	logger             logger.Logger
}

func New(dir directory.Directory, c *collector.Collector, r Resolver, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		directory:          dir,
		collector:          c,
		resolver:           r,
		collectConcurrency: 4,
		now:                time.Now,
		logger:             logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run scans the given seed groups. Lookup failures never abort the run; they are
// logged and counted in Report.Stats. The only error is ErrNoSeeds, or the
// context error when ctx ends before the seeds are validated.
func (p *Pipeline) Run(ctx context.Context, seeds []group.ID) (Report, error) {
	runID, err := id.NewStringFromTime(p.now())
	if err != nil {
		return Report{}, fmt.Errorf("generating run id: %w", err)
	}
	ctx = logger.ContextWithRunID(ctx, runID)

	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("seeds", len(seeds)),
	))
	defer span.End()

	report := Report{RunID: runID, StartedAt: p.now()}

	valid, err := p.validateSeeds(ctx, seeds, &report.Stats)
	if err != nil {
		telemetry.TraceError(span, err)
		return Report{}, err
	}
	report.Seeds = valid

	members := p.collectMembers(ctx, valid, &report.Stats)

	result := p.resolver.ResolveAll(ctx, members.Sorted())
	report.Stats.AffiliationFailures = result.Failed
	p.logger.InfoWithContext(ctx, "resolved affiliations",
		zap.Int("members", len(members)),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", result.Elapsed),
	)

	_, rankSpan := tracer.Start(ctx, "pipeline.rank")
	report.Entries = ranker.RankResults(result.Affiliations, group.NewSet(valid...))
	rankSpan.SetAttributes(attribute.Int("entries", len(report.Entries)))
	rankSpan.End()

	report.FinishedAt = p.now()
	return report, nil
}

func (p *Pipeline) validateSeeds(ctx context.Context, seeds []group.ID, stats *Stats) ([]group.Record, error) {
	ctx, span := tracer.Start(ctx, "pipeline.validateSeeds")
	defer span.End()

	unique := make([]group.ID, 0, len(seeds))
	seen := map[group.ID]struct{}{}
	for _, s := range seeds {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}

	records := make([]group.Record, len(unique))
	errs := make([]error, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.collectConcurrency)
	for i, s := range unique {
		g.Go(func() error {
			records[i], errs[i] = p.directory.FetchGroup(gctx, s)
			return nil
		})
	}
	_ = g.Wait()

	valid := make([]group.Record, 0, len(unique))
	for i, s := range unique {
		switch err := errs[i]; {
		case err == nil:
			valid = append(valid, records[i])
		case directory.IsNotFound(err):
			stats.InvalidSeeds++
			p.logger.WarnWithContext(ctx, "seed group does not exist", zap.Stringer("group_id", s))
		default:
			stats.UnreachableSeeds++
			p.logger.WarnWithContext(ctx, "seed group could not be fetched", zap.Stringer("group_id", s), zap.Error(err))
		}
	}

	span.SetAttributes(
		attribute.Int("valid", len(valid)),
		attribute.Int("invalid", stats.InvalidSeeds),
		attribute.Int("unreachable", stats.UnreachableSeeds),
	)

	if len(valid) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoSeeds
	}

	return valid, nil
}

func (p *Pipeline) collectMembers(ctx context.Context, seeds []group.Record, stats *Stats) group.MemberSet {
	ctx, span := tracer.Start(ctx, "pipeline.collectMembers")
	defer span.End()

	var mu sync.Mutex
	members := group.NewMemberSet()

	var g errgroup.Group
	g.SetLimit(p.collectConcurrency)
	for _, seed := range seeds {
		g.Go(func() error {
			collection := p.collector.CollectMembers(ctx, seed.ID)

			mu.Lock()
			defer mu.Unlock()
			members.Union(collection.Members)
			if collection.Partial {
				stats.PartialCollections++
			}

			p.logger.InfoWithContext(ctx, "collected group members",
				zap.Stringer("group_id", seed.ID),
				zap.String("group_name", seed.Name),
				zap.Int("members", len(collection.Members)),
				zap.Bool("partial", collection.Partial),
				zap.Int("total_members", len(members)),
			)
			return nil
		})
	}
	_ = g.Wait()

	stats.MembersCollected = len(members)
	span.SetAttributes(attribute.Int("members", len(members)))

	return members
}

// Package resolver looks up the set of groups a single member belongs to.
package resolver

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/groupoverlap/groupoverlap/internal/build"
	"github.com/groupoverlap/groupoverlap/internal/directory"
	"github.com/groupoverlap/groupoverlap/pkg/group"
	"github.com/groupoverlap/groupoverlap/pkg/logger"
	"github.com/groupoverlap/groupoverlap/pkg/telemetry"
)

var tracer = otel.Tracer("internal/resolver")

var affiliationsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: build.ProjectName,
	Name:      "resolver_affiliations_total",
	Help:      "The total number of member affiliation lookups by outcome.",
}, []string{"outcome"})

// Affiliation is the tagged result of one member lookup. A failed lookup carries
// an empty Groups set and a non-nil Err.
type Affiliation struct {
	Member group.MemberID
	Groups group.Set
	Err    error
}

// Failed reports whether the lookup did not succeed.
func (a Affiliation) Failed() bool {
	return a.Err != nil
}

type ResolverOption func(r *Resolver)

func WithLogger(l logger.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

type Resolver struct {
	directory directory.Directory
	logger    logger.Logger
}

func New(dir directory.Directory, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		directory: dir,
		logger:    logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ResolveAffiliations issues a single lookup for the member. Duplicate groups in
// the response collapse into one.
func (r *Resolver) ResolveAffiliations(ctx context.Context, member group.MemberID) Affiliation {
	ctx, span := tracer.Start(ctx, "resolver.ResolveAffiliations", trace.WithAttributes(
		attribute.Int64("member_id", int64(member)),
	))
	defer span.End()

	records, err := r.directory.ListUserGroups(ctx, member)
	if err != nil {
		telemetry.TraceError(span, err)
		affiliationsCounter.WithLabelValues("failed").Inc()
		r.logger.DebugWithContext(ctx, "affiliation lookup failed",
			zap.Uint64("member_id", uint64(member)),
			zap.Error(err),
		)
		return Affiliation{Member: member, Groups: group.NewSet(), Err: err}
	}

	groups := group.NewSet(records...)
	affiliationsCounter.WithLabelValues("resolved").Inc()
	span.SetAttributes(attribute.Int("groups", len(groups)))

	return Affiliation{Member: member, Groups: groups}
}

// Package collector gathers the full membership of a group by following the
// membership endpoint's pagination cursor.
package collector

import (
	"context"
	"errors"
	"fmt"

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
)

var tracer = otel.Tracer("internal/collector")

// ErrCursorCycle is reported when the service hands out a cursor that was already followed.
var ErrCursorCycle = errors.New("membership cursor repeated")

var (
	pagesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "collector_pages_total",
		Help:      "The total number of membership pages fetched.",
	})

	partialCollectionsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "collector_partial_collections_total",
		Help:      "The total number of group collections that stopped before the last page.",
	})
)

// Collection is the membership gathered for one group.
type Collection struct {
	Group   group.ID
	Members group.MemberSet
	Pages   int
	// Partial is set when pagination stopped early. Members then holds every
	// member of the pages fetched before the failure.
	Partial bool
	Err     error
}

type CollectorOption func(c *Collector)

func WithLogger(l logger.Logger) CollectorOption {
	return func(c *Collector) {
		c.logger = l
	}
}

type Collector struct {
	directory directory.Directory
	logger    logger.Logger
}

func New(dir directory.Directory, opts ...CollectorOption) *Collector {
	c := &Collector{
		directory: dir,
		logger:    logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CollectMembers fetches pages until the service returns no next cursor. A failed
// page ends the loop and the members collected so far are returned; the failure is
// reported in the Collection rather than as an error.
func (c *Collector) CollectMembers(ctx context.Context, id group.ID) Collection {
	ctx, span := tracer.Start(ctx, "collector.CollectMembers", trace.WithAttributes(
		attribute.Int64("group_id", int64(id)),
	))
	defer span.End()

	result := Collection{
		Group:   id,
		Members: group.MemberSet{},
	}
	seen := map[string]struct{}{}
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			c.stop(ctx, &result, err)
			break
		}

		page, err := c.directory.ListMembers(ctx, id, cursor)
		if err != nil {
			c.stop(ctx, &result, err)
			break
		}

		pagesCounter.Inc()
		result.Pages++
		for _, m := range page.Members {
			result.Members.Add(m)
		}

		if page.NextCursor == "" {
			break
		}

		if _, ok := seen[page.NextCursor]; ok {
			c.stop(ctx, &result, fmt.Errorf("%w: '%s'", ErrCursorCycle, page.NextCursor))
			break
		}
		seen[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}

	span.SetAttributes(
		attribute.Int("members", len(result.Members)),
		attribute.Int("pages", result.Pages),
		attribute.Bool("partial", result.Partial),
	)

	return result
}

func (c *Collector) stop(ctx context.Context, result *Collection, err error) {
	result.Partial = true
	result.Err = err
	partialCollectionsCounter.Inc()

	c.logger.WarnWithContext(ctx, "membership collection stopped early",
		zap.Stringer("group_id", result.Group),
		zap.Int("pages", result.Pages),
		zap.Int("members", len(result.Members)),
		zap.Error(err),
	)
}

package fanout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/groupoverlap/groupoverlap/internal/progress"
	"github.com/groupoverlap/groupoverlap/internal/resolver"
	"github.com/groupoverlap/groupoverlap/pkg/group"
	"github.com/groupoverlap/groupoverlap/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type resolverFunc func(ctx context.Context, member group.MemberID) resolver.Affiliation

func (f resolverFunc) ResolveAffiliations(ctx context.Context, member group.MemberID) resolver.Affiliation {
	return f(ctx, member)
}

func memberRange(n int) []group.MemberID {
	out := make([]group.MemberID, n)
	for i := range out {
		out[i] = group.MemberID(i + 1)
	}
	return out
}

var errLookup = errors.New("lookup failed")

func oddFails(_ context.Context, m group.MemberID) resolver.Affiliation {
	if m%2 == 1 {
		return resolver.Affiliation{Member: m, Groups: group.NewSet(), Err: errLookup}
	}
	return resolver.Affiliation{Member: m, Groups: group.NewSet(group.Record{ID: group.ID(m)})}
}

func TestResolveAll(t *testing.T) {
	members := memberRange(50)

	result := New(resolverFunc(oddFails), WithWorkers(4)).ResolveAll(context.Background(), members)

	require.Len(t, result.Affiliations, 50)
	require.Equal(t, 25, result.Failed)

	seen := group.NewMemberSet()
	for _, aff := range result.Affiliations {
		require.True(t, seen.Add(aff.Member), "member %d delivered twice", aff.Member)
		require.NotNil(t, aff.Groups)
	}
	require.Len(t, seen, 50)
}

func TestResolveAllNoMembers(t *testing.T) {
	result := New(resolverFunc(oddFails)).ResolveAll(context.Background(), nil)

	require.Empty(t, result.Affiliations)
	require.Zero(t, result.Failed)
}

func TestResolveAllBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32

	slow := resolverFunc(func(_ context.Context, m group.MemberID) resolver.Affiliation {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return resolver.Affiliation{Member: m, Groups: group.NewSet()}
	})

	result := New(slow, WithWorkers(3)).ResolveAll(context.Background(), memberRange(30))

	require.Len(t, result.Affiliations, 30)
	require.LessOrEqual(t, peak.Load(), int32(3))
}

func TestResolveAllTaskTimeout(t *testing.T) {
	blocking := resolverFunc(func(ctx context.Context, m group.MemberID) resolver.Affiliation {
		<-ctx.Done()
		return resolver.Affiliation{Member: m, Groups: group.NewSet(), Err: ctx.Err()}
	})

	result := New(blocking, WithWorkers(2), WithTaskTimeout(5*time.Millisecond)).
		ResolveAll(context.Background(), memberRange(3))

	require.Equal(t, 3, result.Failed)
	for _, aff := range result.Affiliations {
		require.ErrorIs(t, aff.Err, ErrTaskTimeout)
		require.ErrorIs(t, aff.Err, context.DeadlineExceeded)
	}
}

func TestResolveAllCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	cancelling := resolverFunc(func(ctx context.Context, m group.MemberID) resolver.Affiliation {
		once.Do(cancel)
		return resolver.Affiliation{Member: m, Groups: group.NewSet(), Err: ctx.Err()}
	})

	result := New(cancelling, WithWorkers(1)).ResolveAll(ctx, memberRange(20))

	require.Len(t, result.Affiliations, 20)
	require.Equal(t, 20, result.Failed)
	for _, aff := range result.Affiliations {
		require.ErrorIs(t, aff.Err, context.Canceled)
		require.NotErrorIs(t, aff.Err, ErrTaskTimeout)
	}
}

func TestResolveAllReportsProgress(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	var calls int
	// the first reading is the tracker start; every later reading is ten
	// seconds further along.
	clock := func() time.Time {
		calls++
		return t0.Add(time.Duration(calls-1) * 10 * time.Second)
	}

	var snapshots []progress.Snapshot
	engine := New(resolverFunc(oddFails),
		WithWorkers(8),
		WithClock(clock),
		WithProgressInterval(100),
		WithProgressFunc(func(_ context.Context, s progress.Snapshot) {
			snapshots = append(snapshots, s)
		}),
	)

	result := engine.ResolveAll(context.Background(), memberRange(250))

	require.Len(t, result.Affiliations, 250)
	require.Len(t, snapshots, 2)
	require.Equal(t, 100, snapshots[0].Completed)
	require.Equal(t, 250, snapshots[0].Total)
	require.Equal(t, 10*time.Second, snapshots[0].Elapsed)
	require.Equal(t, 15*time.Second, snapshots[0].Remaining)
	require.Equal(t, 200, snapshots[1].Completed)
	require.Equal(t, 20*time.Second, snapshots[1].Elapsed)
	require.Equal(t, 30*time.Second, result.Elapsed)
	require.Equal(t, 4, calls)
}

func TestResolveAllLogsProgressByDefault(t *testing.T) {
	l, logs := logger.NewObserverLogger("info")

	New(resolverFunc(oddFails), WithLogger(l), WithProgressInterval(10)).
		ResolveAll(context.Background(), memberRange(25))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "resolving affiliations", entries[0].Message)
	require.Equal(t, int64(10), entries[0].ContextMap()["completed"])
}

package ranker

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/groupoverlap/groupoverlap/internal/resolver"
	"github.com/groupoverlap/groupoverlap/pkg/group"
)

func rec(id group.ID) group.Record {
	return group.Record{ID: id, Name: "g" + id.String()}
}

func set(ids ...group.ID) group.Set {
	s := group.NewSet()
	for _, id := range ids {
		s.Add(rec(id))
	}
	return s
}

type pair struct {
	ID    group.ID
	Count int
}

func pairs(entries []group.RankingEntry) []pair {
	out := make([]pair, 0, len(entries))
	for _, e := range entries {
		out = append(out, pair{ID: e.Group.ID, Count: e.SharedMemberCount})
	}
	return out
}

func TestRank(t *testing.T) {
	var testcases = map[string]struct {
		affiliations []group.Set
		excluded     group.Set
		expected     []pair
	}{
		`empty`: {
			expected: []pair{},
		},
		`seed_scenario`: {
			affiliations: []group.Set{
				set(100, 300),
				set(100, 200, 300, 400),
				set(200, 300),
			},
			excluded: set(100, 200),
			expected: []pair{{300, 3}, {400, 1}},
		},
		`ties_break_by_ascending_id`: {
			affiliations: []group.Set{
				set(9, 3, 5),
				set(5),
			},
			expected: []pair{{5, 2}, {3, 1}, {9, 1}},
		},
		`excluded_never_ranked`: {
			affiliations: []group.Set{set(1, 2), set(1, 2), set(2)},
			excluded:     set(1, 2),
			expected:     []pair{},
		},
		`members_without_groups`: {
			affiliations: []group.Set{set(), set(7), set()},
			expected:     []pair{{7, 1}},
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			got := pairs(Rank(tc.affiliations, tc.excluded))
			if diff := cmp.Diff(tc.expected, got); diff != "" {
				t.Fatalf("unexpected ranking (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRankIgnoresExclusionByIDOnly(t *testing.T) {
	excluded := group.NewSet(group.Record{ID: 1, Name: "renamed"})

	entries := Rank([]group.Set{set(1, 2)}, excluded)
	require.Equal(t, []pair{{2, 1}}, pairs(entries))
}

func TestRankShuffleInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	affiliations := make([]group.Set, 0, 200)
	for i := 0; i < 200; i++ {
		s := group.NewSet()
		n := r.Intn(8)
		for j := 0; j < n; j++ {
			s.Add(rec(group.ID(r.Intn(30) + 1)))
		}
		affiliations = append(affiliations, s)
	}
	excluded := set(1, 2, 3)

	expected := Rank(affiliations, excluded)

	for i := 0; i < 10; i++ {
		shuffled := make([]group.Set, len(affiliations))
		copy(shuffled, affiliations)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		require.Equal(t, pairs(expected), pairs(Rank(shuffled, excluded)))
	}

	require.Equal(t, expected, Rank(affiliations, excluded), "rank must be idempotent")

	for _, e := range expected {
		require.False(t, excluded.Has(e.Group.ID))
	}
}

func TestRankResults(t *testing.T) {
	affiliations := []resolver.Affiliation{
		{Member: 1, Groups: set(100, 300)},
		{Member: 2, Groups: set(300), Err: errors.New("ignored")},
		{Member: 3, Groups: set(300, 400)},
		{Member: 4, Groups: set(), Err: errors.New("timeout")},
	}

	got := RankResults(affiliations, set(100))
	require.Equal(t, []pair{{300, 2}, {400, 1}}, pairs(got))
}

func TestTop(t *testing.T) {
	entries := Rank([]group.Set{set(1, 2, 3), set(1, 2), set(1)}, nil)

	require.Equal(t, []pair{{1, 3}, {2, 2}}, pairs(Top(entries, 2)))
	require.Len(t, Top(entries, 0), 3)
	require.Len(t, Top(entries, -1), 3)
	require.Len(t, Top(entries, 10), 3)
}

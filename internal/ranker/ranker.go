// Package ranker aggregates member affiliations into a ranking of the groups
// they share.
package ranker

import (
	"cmp"
	"slices"

	"github.com/groupoverlap/groupoverlap/internal/resolver"
	"github.com/groupoverlap/groupoverlap/pkg/group"
)

// Rank counts, across every set in affiliations, each group not in excluded.
// A group is counted at most once per set. Entries are ordered by count
// descending and then by group id ascending, so the output does not depend on
// the order of affiliations.
func Rank(affiliations []group.Set, excluded group.Set) []group.RankingEntry {
	counts := map[group.ID]*group.RankingEntry{}

	for _, set := range affiliations {
		for id, rec := range set {
			if excluded.Has(id) {
				continue
			}
			entry, ok := counts[id]
			if !ok {
				entry = &group.RankingEntry{Group: rec}
				counts[id] = entry
			}
			entry.SharedMemberCount++
		}
	}

	entries := make([]group.RankingEntry, 0, len(counts))
	for _, entry := range counts {
		entries = append(entries, *entry)
	}

	slices.SortFunc(entries, func(a, b group.RankingEntry) int {
		if c := cmp.Compare(b.SharedMemberCount, a.SharedMemberCount); c != 0 {
			return c
		}
		return cmp.Compare(a.Group.ID, b.Group.ID)
	})

	return entries
}

// RankResults ranks the groups of the successful lookups. Failed lookups carry
// empty sets and contribute nothing.
func RankResults(affiliations []resolver.Affiliation, excluded group.Set) []group.RankingEntry {
	sets := make([]group.Set, 0, len(affiliations))
	for _, aff := range affiliations {
		if aff.Failed() {
			continue
		}
		sets = append(sets, aff.Groups)
	}
	return Rank(sets, excluded)
}

// Top returns the first n entries. n <= 0 returns every entry.
func Top(entries []group.RankingEntry, n int) []group.RankingEntry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}

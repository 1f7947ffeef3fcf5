// Package group contains the domain types shared by the collection, resolution
// and ranking stages.
package group

import (
	"slices"
	"strconv"
)

// ID identifies a group. It is an opaque positive integer.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// MemberID identifies a user account.
type MemberID uint64

func (id MemberID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a positive decimal group id.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, strconv.ErrRange
	}
	return ID(v), nil
}

// Owner is the owner of a group. A banned owner only carries a display label.
type Owner struct {
	ID          uint64
	DisplayName string
	Verified    bool
	Banned      bool
}

// BannedOwner returns the sentinel owner used when the owner account is banned
// or absent.
func BannedOwner() *Owner {
	return &Owner{DisplayName: "Banned user", Banned: true}
}

// Record is the metadata of a group. Two records are the same group iff their
// ids are equal, even if the names differ.
type Record struct {
	ID       ID
	Name     string
	Owner    *Owner
	Verified bool
	Locked   bool
}

// Equal reports whether r and other identify the same group.
func (r Record) Equal(other Record) bool {
	return r.ID == other.ID
}

// Set is a set of groups keyed by id. Adding a record whose id is already
// present keeps the first record.
type Set map[ID]Record

// NewSet returns a set containing records.
func NewSet(records ...Record) Set {
	s := make(Set, len(records))
	for _, r := range records {
		s.Add(r)
	}
	return s
}

// Add inserts r and reports whether it was not already present.
func (s Set) Add(r Record) bool {
	if _, ok := s[r.ID]; ok {
		return false
	}
	s[r.ID] = r
	return true
}

// Has reports whether a group with the given id is in the set.
func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the ids of the set in ascending order.
func (s Set) IDs() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// MemberSet is a deduplicated set of member ids.
type MemberSet map[MemberID]struct{}

// NewMemberSet returns a set containing ids.
func NewMemberSet(ids ...MemberID) MemberSet {
	s := make(MemberSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id and reports whether it was not already present.
func (s MemberSet) Add(id MemberID) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Union adds every member of other to s.
func (s MemberSet) Union(other MemberSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Sorted returns the members in ascending order.
func (s MemberSet) Sorted() []MemberID {
	ids := make([]MemberID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RankingEntry is a group and the number of seed members that also belong to it.
type RankingEntry struct {
	Group             Record
	SharedMemberCount int
}

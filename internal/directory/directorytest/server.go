// Package directorytest provides an in-process fake of the directory API for tests.
package directorytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/groupoverlap/groupoverlap/pkg/group"
)

// Server is a fake group service. Configure it before issuing requests; the
// handlers only read the configuration.
type Server struct {
	*httptest.Server

	mu sync.RWMutex
	// Groups holds the metadata served by the group endpoint.
	Groups map[group.ID]group.Record
	// Members holds the ordered membership of each group.
	Members map[group.ID][]group.MemberID
	// Affiliations holds the groups each member belongs to.
	Affiliations map[group.MemberID][]group.ID
	// PageSize overrides the requested limit when non-zero.
	PageSize int
	// FailPage makes the given zero-based page of a group's membership return 500.
	FailPage map[group.ID]int
	// FailMembers makes the affiliation lookup of the given members return 500.
	FailMembers map[group.MemberID]bool
	// MalformedMembers makes the affiliation lookup of the given members return an invalid body.
	MalformedMembers map[group.MemberID]bool

	requests atomic.Int64
}

// NewServer starts a fake service and closes it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Groups:           map[group.ID]group.Record{},
		Members:          map[group.ID][]group.MemberID{},
		Affiliations:     map[group.MemberID][]group.ID{},
		FailPage:         map[group.ID]int{},
		FailMembers:      map[group.MemberID]bool{},
		MalformedMembers: map[group.MemberID]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/groups/{id}", s.handleGroup)
	mux.HandleFunc("GET /v1/groups/{id}/users", s.handleMembers)
	mux.HandleFunc("GET /v1/users/{id}/groups/roles", s.handleUserGroups)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// AddGroup registers a group with a generated name.
func (s *Server) AddGroup(id group.ID, members ...group.MemberID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Groups[id] = group.Record{
		ID:    id,
		Name:  fmt.Sprintf("Group %d", id),
		Owner: &group.Owner{ID: uint64(id) * 10, DisplayName: fmt.Sprintf("owner%d", id)},
	}
	s.Members[id] = members
}

// SetAffiliations registers the groups a member belongs to. Unknown groups are
// registered with generated metadata.
func (s *Server) SetAffiliations(member group.MemberID, groups ...group.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range groups {
		if _, ok := s.Groups[id]; !ok {
			s.Groups[id] = group.Record{ID: id, Name: fmt.Sprintf("Group %d", id)}
		}
	}
	s.Affiliations[member] = groups
}

// Requests returns the number of requests served.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"errors": []map[string]any{{"code": 1, "message": message}},
	})
}

func groupJSON(r group.Record) map[string]any {
	out := map[string]any{
		"id":               uint64(r.ID),
		"name":             r.Name,
		"hasVerifiedBadge": r.Verified,
		"owner":            nil,
	}
	if r.Locked {
		out["isLocked"] = true
	}
	if r.Owner != nil && !r.Owner.Banned {
		out["owner"] = map[string]any{
			"userId":           r.Owner.ID,
			"username":         r.Owner.DisplayName,
			"displayName":      r.Owner.DisplayName,
			"hasVerifiedBadge": r.Owner.Verified,
		}
	}
	return out
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group id.")
		return
	}

	s.mu.RLock()
	rec, ok := s.Groups[group.ID(id)]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusBadRequest, "Group is invalid or does not exist.")
		return
	}

	writeJSON(w, http.StatusOK, groupJSON(rec))
}

// cursors are "page-<n>" so tests can reason about page boundaries.
func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group id.")
		return
	}
	gid := group.ID(id)

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid limit.")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.PageSize > 0 {
		limit = s.PageSize
	}

	members, ok := s.Members[gid]
	if !ok {
		writeError(w, http.StatusBadRequest, "Group is invalid or does not exist.")
		return
	}

	page := 0
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		page, err = strconv.Atoi(strings.TrimPrefix(cursor, "page-"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid cursor.")
			return
		}
	}

	if failAt, ok := s.FailPage[gid]; ok && failAt == page {
		writeError(w, http.StatusInternalServerError, "InternalServerError")
		return
	}

	start := min(page*limit, len(members))
	end := min(start+limit, len(members))

	data := make([]map[string]any, 0, end-start)
	for _, m := range members[start:end] {
		data = append(data, map[string]any{
			"user": map[string]any{"userId": uint64(m), "username": fmt.Sprintf("user%d", m)},
			"role": map[string]any{"id": 1, "name": "Member", "rank": 1},
		})
	}

	var next any
	if end < len(members) {
		next = fmt.Sprintf("page-%d", page+1)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"previousPageCursor": nil,
		"nextPageCursor":     next,
		"data":               data,
	})
}

func (s *Server) handleUserGroups(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id.")
		return
	}
	member := group.MemberID(id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailMembers[member] {
		writeError(w, http.StatusInternalServerError, "InternalServerError")
		return
	}
	if s.MalformedMembers[member] {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"group":{"name":"no id"}}]}`))
		return
	}

	data := make([]map[string]any, 0, len(s.Affiliations[member]))
	for _, gid := range s.Affiliations[member] {
		data = append(data, map[string]any{
			"group": groupJSON(s.Groups[gid]),
			"role":  map[string]any{"id": 1, "name": "Member", "rank": 1},
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

package directory

import (
	"strings"

	"github.com/groupoverlap/groupoverlap/pkg/group"
)

// Wire schemas of the three consumed endpoints. Required fields are pointers so a
// missing field can be told apart from a zero value.

type ownerPayload struct {
	UserID           *uint64 `json:"userId"`
	Username         string  `json:"username"`
	DisplayName      string  `json:"displayName"`
	HasVerifiedBadge bool    `json:"hasVerifiedBadge"`
}

type groupPayload struct {
	ID               *uint64       `json:"id"`
	Name             *string       `json:"name"`
	Owner            *ownerPayload `json:"owner"`
	HasVerifiedBadge bool          `json:"hasVerifiedBadge"`
	IsLocked         bool          `json:"isLocked"`
}

type memberPayload struct {
	User *struct {
		UserID *uint64 `json:"userId"`
	} `json:"user"`
}

type membersResponse struct {
	Data           *[]memberPayload `json:"data"`
	NextPageCursor *string          `json:"nextPageCursor"`
}

type groupRolePayload struct {
	Group *groupPayload `json:"group"`
}

type userGroupsResponse struct {
	Data *[]groupRolePayload `json:"data"`
}

func (p *groupPayload) record(endpoint, path string) (group.Record, error) {
	if p == nil {
		return group.Record{}, &SchemaError{Endpoint: endpoint, Field: strings.TrimSuffix(path, ".")}
	}
	if p.ID == nil || *p.ID == 0 {
		return group.Record{}, &SchemaError{Endpoint: endpoint, Field: path + "id"}
	}
	if p.Name == nil {
		return group.Record{}, &SchemaError{Endpoint: endpoint, Field: path + "name"}
	}

	r := group.Record{
		ID:       group.ID(*p.ID),
		Name:     *p.Name,
		Verified: p.HasVerifiedBadge,
		Locked:   p.IsLocked,
	}

	switch {
	case p.Owner == nil || p.Owner.UserID == nil:
		r.Owner = group.BannedOwner()
	default:
		name := p.Owner.DisplayName
		if name == "" {
			name = p.Owner.Username
		}
		r.Owner = &group.Owner{
			ID:          *p.Owner.UserID,
			DisplayName: name,
			Verified:    p.Owner.HasVerifiedBadge,
		}
	}

	return r, nil
}

func (r *membersResponse) page(endpoint string) (MembersPage, error) {
	if r.Data == nil {
		return MembersPage{}, &SchemaError{Endpoint: endpoint, Field: "data"}
	}

	members := make([]group.MemberID, 0, len(*r.Data))
	for _, m := range *r.Data {
		if m.User == nil || m.User.UserID == nil || *m.User.UserID == 0 {
			return MembersPage{}, &SchemaError{Endpoint: endpoint, Field: "data[].user.userId"}
		}
		members = append(members, group.MemberID(*m.User.UserID))
	}

	var cursor string
	if r.NextPageCursor != nil {
		cursor = *r.NextPageCursor
	}

	return MembersPage{Members: members, NextCursor: cursor}, nil
}

func (r *userGroupsResponse) records(endpoint string) ([]group.Record, error) {
	if r.Data == nil {
		return nil, &SchemaError{Endpoint: endpoint, Field: "data"}
	}

	records := make([]group.Record, 0, len(*r.Data))
	for _, role := range *r.Data {
		rec, err := role.Group.record(endpoint, "data[].group.")
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

//go:generate mockgen -source client.go -destination ../mocks/mock_directory.go -package mocks Directory

// Package directory provides read access to the group metadata, group membership
// and member group-roles endpoints.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/groupoverlap/groupoverlap/internal/build"
	"github.com/groupoverlap/groupoverlap/pkg/group"
	"github.com/groupoverlap/groupoverlap/pkg/logger"
	"github.com/groupoverlap/groupoverlap/pkg/telemetry"
)

var tracer = otel.Tracer("internal/directory")

const (
	EndpointGroup      = "group"
	EndpointMembers    = "members"
	EndpointUserGroups = "user_groups"

	outcomeOK        = "ok"
	outcomeNotFound  = "not_found"
	outcomeTransient = "transient"

	defaultBaseURL        = "https://groups.roblox.com"
	defaultUserGroupsPath = "/v1/users/%d/groups/roles"
	defaultPageSize       = 100

	// maxBodyBytes bounds how much of a response body is read.
	maxBodyBytes = 16 << 20
)

var (
	requestsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "directory_requests_total",
		Help:      "The total number of directory API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	requestDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: build.ProjectName,
		Name:      "directory_request_duration_ms",
		Help:      "The duration of directory API requests, including retries.",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"endpoint"})
)

// MembersPage is a single page of a group's membership.
type MembersPage struct {
	Members []group.MemberID
	// NextCursor is empty on the last page.
	NextCursor string
}

// Directory is the read-only view of the group service used by the pipeline.
type Directory interface {
	// FetchGroup returns the metadata of a group. It returns an error wrapping ErrNotFound
	// if the group does not exist, and ErrTransient for any other failure.
	FetchGroup(ctx context.Context, id group.ID) (group.Record, error)

	// ListMembers returns one page of the group's members starting at cursor. An empty
	// cursor requests the first page.
	ListMembers(ctx context.Context, id group.ID, cursor string) (MembersPage, error)

	// ListUserGroups returns the groups the member currently belongs to.
	ListUserGroups(ctx context.Context, member group.MemberID) ([]group.Record, error)
}

type ClientOption func(c *Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithUserGroupsPath sets the path template of the group-roles endpoint. It must contain
// a single '%d' verb for the member id.
func WithUserGroupsPath(path string) ClientOption {
	return func(c *Client) {
		c.userGroupsPath = path
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithPageSize(size int) ClientOption {
	return func(c *Client) {
		c.pageSize = size
	}
}

func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// Client is the HTTP implementation of Directory.
type Client struct {
	baseURL        string
	userGroupsPath string
	pageSize       int
	httpClient     *http.Client
	logger         logger.Logger
}

var _ Directory = (*Client)(nil)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        defaultBaseURL,
		userGroupsPath: defaultUserGroupsPath,
		pageSize:       defaultPageSize,
		httpClient:     http.DefaultClient,
		logger:         logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) FetchGroup(ctx context.Context, id group.ID) (group.Record, error) {
	ctx, span := tracer.Start(ctx, "directory.FetchGroup", trace.WithAttributes(
		attribute.Int64("group_id", int64(id)),
	))
	defer span.End()

	var payload groupPayload
	err := c.get(ctx, EndpointGroup, "/v1/groups/"+id.String(), nil, &payload)
	if err != nil {
		telemetry.TraceError(span, err)
		return group.Record{}, err
	}

	rec, err := payload.record(EndpointGroup, "")
	if err != nil {
		err = c.classified(EndpointGroup, transient(err))
		telemetry.TraceError(span, err)
		return group.Record{}, err
	}

	if rec.ID != id {
		err = c.classified(EndpointGroup, transient(fmt.Errorf("requested group %d but received group %d", id, rec.ID)))
		telemetry.TraceError(span, err)
		return group.Record{}, err
	}

	requestsCounter.WithLabelValues(EndpointGroup, outcomeOK).Inc()
	return rec, nil
}

func (c *Client) ListMembers(ctx context.Context, id group.ID, cursor string) (MembersPage, error) {
	ctx, span := tracer.Start(ctx, "directory.ListMembers", trace.WithAttributes(
		attribute.Int64("group_id", int64(id)),
		attribute.Bool("first_page", cursor == ""),
	))
	defer span.End()

	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageSize))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var payload membersResponse
	err := c.get(ctx, EndpointMembers, "/v1/groups/"+id.String()+"/users", query, &payload)
	if err != nil {
		telemetry.TraceError(span, err)
		return MembersPage{}, err
	}

	page, err := payload.page(EndpointMembers)
	if err != nil {
		err = c.classified(EndpointMembers, transient(err))
		telemetry.TraceError(span, err)
		return MembersPage{}, err
	}

	span.SetAttributes(attribute.Int("members", len(page.Members)))
	requestsCounter.WithLabelValues(EndpointMembers, outcomeOK).Inc()
	return page, nil
}

func (c *Client) ListUserGroups(ctx context.Context, member group.MemberID) ([]group.Record, error) {
	ctx, span := tracer.Start(ctx, "directory.ListUserGroups", trace.WithAttributes(
		attribute.Int64("member_id", int64(member)),
	))
	defer span.End()

	var payload userGroupsResponse
	err := c.get(ctx, EndpointUserGroups, fmt.Sprintf(c.userGroupsPath, uint64(member)), nil, &payload)
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}

	records, err := payload.records(EndpointUserGroups)
	if err != nil {
		err = c.classified(EndpointUserGroups, transient(err))
		telemetry.TraceError(span, err)
		return nil, err
	}

	requestsCounter.WithLabelValues(EndpointUserGroups, outcomeOK).Inc()
	return records, nil
}

// get performs the request and decodes a 200 response into out. Returned errors are
// already classified and counted.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	start := time.Now()
	defer func() {
		requestDurationHistogram.WithLabelValues(endpoint).Observe(float64(time.Since(start).Milliseconds()))
	}()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return c.classified(endpoint, transient(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classified(endpoint, transient(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.classified(endpoint, transient(fmt.Errorf("%s: reading body: %w", endpoint, err)))
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound:
		// only the metadata endpoint uses these to signal that the group does not exist
		if endpoint == EndpointGroup {
			return c.classified(endpoint, notFound(statusError(endpoint, resp.StatusCode, body)))
		}
		return c.classified(endpoint, transient(statusError(endpoint, resp.StatusCode, body)))
	default:
		return c.classified(endpoint, transient(statusError(endpoint, resp.StatusCode, body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return c.classified(endpoint, transient(fmt.Errorf("%s: decoding body: %w", endpoint, err)))
	}

	return nil
}

// classified counts and logs err by its class and returns it unchanged.
func (c *Client) classified(endpoint string, err error) error {
	outcome := outcomeTransient
	if errors.Is(err, ErrNotFound) {
		outcome = outcomeNotFound
	}
	requestsCounter.WithLabelValues(endpoint, outcome).Inc()
	c.logger.Debug("directory request failed",
		zap.String("endpoint", endpoint),
		zap.String("outcome", outcome),
		zap.Error(err),
	)
	return err
}

func statusError(endpoint string, statusCode int, body []byte) *StatusError {
	e := &StatusError{Endpoint: endpoint, StatusCode: statusCode}
	if gjson.ValidBytes(body) {
		e.Message = gjson.GetBytes(body, "errors.0.message").String()
	}
	return e
}

// Package sentryapi implements the gateway's typed Sentry API façade
// (spec C7): host selection between sentry.io and a user's region host,
// the error taxonomy and retry policy in errors.go/retry.go, and the
// operations tool handlers call into.
package sentryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
)

const referrerHeader = "sentry-mcp"

// Client is the gateway's single typed entry point into the Sentry API. It
// implements mcpsession.ConstraintValidator so the session layer can
// verify a presented access token actually has access to the organization
// (and project) named by an MCP URL's constraints.
type Client struct {
	httpClient *http.Client
	regions    *RegionCache
	logger     *slog.Logger
}

// New builds a Client. httpClient may be nil to use http.DefaultClient.
func New(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{httpClient: httpClient, regions: NewRegionCache(httpClient, logger), logger: logger}
}

// SeedRegion pre-populates the region cache for a token, skipping the
// /users/me/regions/ round trip. Used by callers that already know the
// region host (e.g. one recorded on the session from a prior call), and by
// tests pointing the client at an httptest.Server.
func (c *Client) SeedRegion(accessToken, base string) {
	c.regions.mu.Lock()
	defer c.regions.mu.Unlock()
	c.regions.hosts[accessToken] = base
}

// StartRegionCacheRefresh starts the region cache's periodic full-cache
// invalidation on a cron schedule (e.g. "0 */6 * * *"). Callers should
// defer StopRegionCacheRefresh, or call it during shutdown.
func (c *Client) StartRegionCacheRefresh(spec string) error {
	return c.regions.StartPeriodicInvalidation(spec)
}

// StopRegionCacheRefresh halts the periodic invalidation job, if started.
func (c *Client) StopRegionCacheRefresh() {
	c.regions.Stop()
}

// SetUserScopedBase overrides the base URL used for user-scoped endpoints,
// which otherwise always targets sentry.io. Exists for tests to point the
// client at an httptest.Server.
func (c *Client) SetUserScopedBase(base string) {
	c.regions.userScopedBase = base
}

var _ mcpsession.ConstraintValidator = (*Client)(nil)

// userScopedPaths MUST always be requested against sentry.io, regardless
// of which region the access token's organizations actually live in.
var userScopedPaths = []string{"/api/0/auth/", "/api/0/users/me/"}

func isUserScoped(path string) bool {
	for _, p := range userScopedPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// baseFor resolves which base URL a request to path should target:
// sentry.io for user-scoped endpoints, otherwise the cached region base
// URL for accessToken.
func (c *Client) baseFor(ctx context.Context, path, accessToken string) (string, error) {
	if isUserScoped(path) {
		return c.regions.userScopedBase, nil
	}
	return c.regions.Resolve(ctx, accessToken)
}

// request issues one HTTP call against the Sentry API, retried per the
// gateway's error taxonomy, and decodes a JSON response body into out (if
// non-nil). body, if non-nil, is marshaled as the JSON request body.
func (c *Client) request(ctx context.Context, method, accessToken, path string, query url.Values, body, out any) error {
	base, err := c.baseFor(ctx, path, accessToken)
	if err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sentryapi: marshal request body: %w", err)
		}
	}

	correlationID := ulid.Make().String()

	return withRetry(ctx, func() error {
		u := base + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("X-Sentry-MCP-Referrer", referrerHeader)
		req.Header.Set("X-Sentry-MCP-Correlation-Id", correlationID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &NetworkError{Cause: err}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &NetworkError{Cause: err}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return classifyStatus(resp.StatusCode, path, resp.Header.Get("Retry-After"), string(respBody))
		}
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("sentryapi: decode response for %s: %w", path, err)
			}
		}
		return nil
	})
}

// ValidateConstraints implements mcpsession.ConstraintValidator: it
// confirms the access token can see the named organization (and project,
// if given) by issuing a lightweight lookup against the region host.
func (c *Client) ValidateConstraints(ctx context.Context, sentryHost, accessToken string, constraints mcpsession.Constraints) error {
	if constraints.OrganizationSlug == "" {
		return nil
	}
	var org Organization
	err := c.request(ctx, http.MethodGet, accessToken, "/api/0/organizations/"+constraints.OrganizationSlug+"/", nil, nil, &org)
	if err != nil {
		return mapValidationError(err)
	}
	if constraints.ProjectSlug == "" {
		return nil
	}
	var proj Project
	err = c.request(ctx, http.MethodGet, accessToken,
		"/api/0/projects/"+constraints.OrganizationSlug+"/"+constraints.ProjectSlug+"/", nil, nil, &proj)
	if err != nil {
		return mapValidationError(err)
	}
	return nil
}

func mapValidationError(err error) error {
	var authErr *AuthError
	var notFound *NotFoundError
	switch {
	case errors.As(err, &authErr):
		return &mcpsession.ErrAccessDenied{Cause: err}
	case errors.As(err, &notFound):
		return &mcpsession.ErrNotFoundUpstream{Cause: err}
	default:
		return err
	}
}

// User is the subset of Sentry's /users/me/ response the gateway cares
// about. Unknown fields are ignored by encoding/json, matching the
// permissive-schema rule in the spec's request-fingerprinting note.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Whoami returns the identity of the user behind accessToken.
func (c *Client) Whoami(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.request(ctx, http.MethodGet, accessToken, "/api/0/users/me/", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Organization is a Sentry organization, trimmed to the fields the
// gateway's tool handlers surface.
type Organization struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// ListOrganizations lists every organization accessToken's user belongs
// to. /api/0/organizations/ is not in userScopedPaths, so the request goes
// to the token's region host like any other region-scoped call.
func (c *Client) ListOrganizations(ctx context.Context, accessToken string) ([]Organization, error) {
	var orgs []Organization
	if err := c.request(ctx, http.MethodGet, accessToken, "/api/0/organizations/", nil, nil, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// Team is a Sentry team within an organization.
type Team struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// ListTeams lists the teams in an organization.
func (c *Client) ListTeams(ctx context.Context, accessToken, orgSlug string) ([]Team, error) {
	var teams []Team
	path := "/api/0/organizations/" + orgSlug + "/teams/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, nil, nil, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// CreateTeam creates a new team in an organization.
func (c *Client) CreateTeam(ctx context.Context, accessToken, orgSlug, name string) (*Team, error) {
	var team Team
	path := "/api/0/organizations/" + orgSlug + "/teams/"
	if err := c.request(ctx, http.MethodPost, accessToken, path, nil, map[string]string{"name": name}, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

// Project is a Sentry project, trimmed to the fields the gateway's tool
// handlers surface.
type Project struct {
	ID       string   `json:"id"`
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Platform string   `json:"platform"`
	Teams    []Team   `json:"teams"`
}

// ListProjects lists the projects in an organization.
func (c *Client) ListProjects(ctx context.Context, accessToken, orgSlug string) ([]Project, error) {
	var projects []Project
	path := "/api/0/organizations/" + orgSlug + "/projects/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, nil, nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject fetches a single project.
func (c *Client) GetProject(ctx context.Context, accessToken, orgSlug, projectSlug string) (*Project, error) {
	var p Project
	path := "/api/0/projects/" + orgSlug + "/" + projectSlug + "/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProjectParams carries only the fields to change; zero-value
// fields are omitted by omitempty rather than sent as a reset-to-empty.
type UpdateProjectParams struct {
	Name     string `json:"name,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// UpdateProject applies a partial update to a project.
func (c *Client) UpdateProject(ctx context.Context, accessToken, orgSlug, projectSlug string, params UpdateProjectParams) (*Project, error) {
	var p Project
	path := "/api/0/projects/" + orgSlug + "/" + projectSlug + "/"
	if err := c.request(ctx, http.MethodPut, accessToken, path, nil, params, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject creates a project under a team.
func (c *Client) CreateProject(ctx context.Context, accessToken, orgSlug, teamSlug, name, platform string) (*Project, error) {
	var p Project
	path := "/api/0/teams/" + orgSlug + "/" + teamSlug + "/projects/"
	body := map[string]string{"name": name, "platform": platform}
	if err := c.request(ctx, http.MethodPost, accessToken, path, nil, body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ClientKey is a DSN-bearing project client key.
type ClientKey struct {
	ID    string `json:"id"`
	DSN   struct {
		Public string `json:"public"`
	} `json:"dsn"`
	Label string `json:"label"`
}

// ListClientKeys lists a project's client keys (DSNs).
func (c *Client) ListClientKeys(ctx context.Context, accessToken, orgSlug, projectSlug string) ([]ClientKey, error) {
	var keys []ClientKey
	path := "/api/0/projects/" + orgSlug + "/" + projectSlug + "/keys/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, nil, nil, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// CreateClientKey creates a new client key (DSN) for a project.
func (c *Client) CreateClientKey(ctx context.Context, accessToken, orgSlug, projectSlug, name string) (*ClientKey, error) {
	var key ClientKey
	path := "/api/0/projects/" + orgSlug + "/" + projectSlug + "/keys/"
	if err := c.request(ctx, http.MethodPost, accessToken, path, nil, map[string]string{"name": name}, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// Release is a Sentry release.
type Release struct {
	Version string `json:"version"`
	Date    string `json:"dateCreated"`
}

// ListReleases lists releases for an organization, optionally scoped to a
// project.
func (c *Client) ListReleases(ctx context.Context, accessToken, orgSlug, projectSlug string) ([]Release, error) {
	var releases []Release
	path := "/api/0/organizations/" + orgSlug + "/releases/"
	q := url.Values{}
	if projectSlug != "" {
		q.Set("project", projectSlug)
	}
	if err := c.request(ctx, http.MethodGet, accessToken, path, q, nil, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

// Tag is a Sentry event tag key.
type Tag struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ListTags lists the tag keys recorded on a project's events.
func (c *Client) ListTags(ctx context.Context, accessToken, orgSlug, projectSlug string) ([]Tag, error) {
	var tags []Tag
	path := "/api/0/projects/" + orgSlug + "/" + projectSlug + "/tags/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, nil, nil, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// Issue is a Sentry issue, trimmed to the fields tool handlers surface.
type Issue struct {
	ID        string `json:"id"`
	ShortID   string `json:"shortId"`
	Title     string `json:"title"`
	Culprit   string `json:"culprit"`
	Status    string `json:"status"`
	LastSeen  string `json:"lastSeen"`
	Count     string `json:"count"`
	AssignedTo *struct {
		Name string `json:"name"`
	} `json:"assignedTo"`
}

// ListIssuesParams carries the filter/sort/pagination inputs to
// ListIssues.
type ListIssuesParams struct {
	Query  string
	SortBy string // one of user, freq, date, new
	Cursor string
}

// validSortBy is the closed set the spec requires find_issues to enforce.
var validSortBy = map[string]bool{"user": true, "freq": true, "date": true, "new": true}

// ErrInvalidSortBy is returned when ListIssuesParams.SortBy is set to
// anything outside {user, freq, date, new}.
type ErrInvalidSortBy struct{ Value string }

func (e *ErrInvalidSortBy) Error() string {
	return fmt.Sprintf("sentryapi: invalid sortBy %q, want one of user|freq|date|new", e.Value)
}

// PagedIssues is one page of issues. ListIssues does not read the
// response's pagination headers, so NextCursor is always empty. The
// gateway never auto-paginates past one page (spec C9).
type PagedIssues struct {
	Issues     []Issue
	NextCursor string
}

// ListIssues lists issues in a project, filtered and sorted per params.
func (c *Client) ListIssues(ctx context.Context, accessToken, orgSlug, projectSlug string, params ListIssuesParams) (*PagedIssues, error) {
	if params.SortBy != "" && !validSortBy[params.SortBy] {
		return nil, &ErrInvalidSortBy{Value: params.SortBy}
	}
	q := url.Values{}
	if params.Query != "" {
		q.Set("query", params.Query)
	}
	if params.SortBy != "" {
		q.Set("sort", params.SortBy)
	}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}
	var issues []Issue
	path := "/api/0/projects/" + orgSlug + "/" + projectSlug + "/issues/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, q, nil, &issues); err != nil {
		return nil, err
	}
	return &PagedIssues{Issues: issues}, nil
}

// GetIssue fetches a single issue by ID or short ID.
func (c *Client) GetIssue(ctx context.Context, accessToken, orgSlug, issueIDOrShortID string) (*Issue, error) {
	var issue Issue
	path := "/api/0/organizations/" + orgSlug + "/issues/" + issueIDOrShortID + "/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, nil, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// UpdateIssueParams carries only the fields to change.
type UpdateIssueParams struct {
	Status     string `json:"status,omitempty"`
	AssignedTo string `json:"assignedTo,omitempty"`
}

// UpdateIssue applies a partial update to an issue.
func (c *Client) UpdateIssue(ctx context.Context, accessToken, orgSlug, issueIDOrShortID string, params UpdateIssueParams) (*Issue, error) {
	var issue Issue
	path := "/api/0/organizations/" + orgSlug + "/issues/" + issueIDOrShortID + "/"
	if err := c.request(ctx, http.MethodPut, accessToken, path, nil, params, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// Event is a single captured Sentry event.
type Event struct {
	ID          string         `json:"id"`
	Message     string         `json:"message"`
	Platform    string         `json:"platform"`
	Unhandled   bool           `json:"-"`
	Entries     []EventEntry   `json:"entries"`
	Tags        []Tag          `json:"tags"`
}

// EventEntry is one entry (exception, breadcrumbs, ...) in an event's
// entries list. Data is kept as a raw map since its shape varies by Type.
type EventEntry struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// ListIssueEvents lists the events recorded against an issue.
func (c *Client) ListIssueEvents(ctx context.Context, accessToken, orgSlug, issueIDOrShortID string) ([]Event, error) {
	var events []Event
	path := "/api/0/organizations/" + orgSlug + "/issues/" + issueIDOrShortID + "/events/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, nil, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetLatestEventForIssue fetches the most recent event recorded against an
// issue.
func (c *Client) GetLatestEventForIssue(ctx context.Context, accessToken, orgSlug, issueIDOrShortID string) (*Event, error) {
	var event Event
	path := "/api/0/organizations/" + orgSlug + "/issues/" + issueIDOrShortID + "/events/latest/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, nil, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Attachment is a file attached to an event (minidump, screenshot, log).
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimetype"`
	Size     int64  `json:"size"`
}

// ListIssueAttachments lists attachments recorded against an issue's
// events.
func (c *Client) ListIssueAttachments(ctx context.Context, accessToken, orgSlug, issueIDOrShortID string) ([]Attachment, error) {
	var attachments []Attachment
	path := "/api/0/organizations/" + orgSlug + "/issues/" + issueIDOrShortID + "/attachments/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, nil, nil, &attachments); err != nil {
		return nil, err
	}
	return attachments, nil
}

// GetAttachment fetches the raw bytes of an event attachment.
func (c *Client) GetAttachment(ctx context.Context, accessToken, orgSlug, projectSlug, eventID, attachmentID string) ([]byte, error) {
	path := fmt.Sprintf("/api/0/projects/%s/%s/events/%s/attachments/%s/", orgSlug, projectSlug, eventID, attachmentID)
	base, err := c.baseFor(ctx, path, accessToken)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("X-Sentry-MCP-Referrer", referrerHeader)
		req.Header.Set("X-Sentry-MCP-Correlation-Id", ulid.Make().String())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &NetworkError{Cause: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			return classifyStatus(resp.StatusCode, path, resp.Header.Get("Retry-After"), string(b))
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	return body, err
}

// TraceItemAttribute describes one attribute (span tag, log field) the
// NL search agents can filter or group on.
type TraceItemAttribute struct {
	Key  string `json:"key"`
	Type string `json:"type"`
}

// ListTraceItemAttributes lists the catalog of attributes available for a
// given dataset, used to ground the NL search agents' query generation.
func (c *Client) ListTraceItemAttributes(ctx context.Context, accessToken, orgSlug, dataset string) ([]TraceItemAttribute, error) {
	var attrs []TraceItemAttribute
	path := "/api/0/organizations/" + orgSlug + "/trace-items/attributes/"
	q := url.Values{"dataset": {dataset}}
	if err := c.request(ctx, http.MethodGet, accessToken, path, q, nil, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// Dataset enumerates the four Sentry search surfaces the search/search
// operation can target.
type Dataset string

const (
	DatasetEvents Dataset = "events"
	DatasetIssues Dataset = "issues"
	DatasetSpans  Dataset = "spans"
	DatasetLogs   Dataset = "logs"
)

// SearchResult is one page of raw hits from a dataset search. Shape
// varies by dataset, so results are kept as raw JSON rows rather than
// a shared struct.
type SearchResult struct {
	Rows       []map[string]any `json:"data"`
	NextCursor string            `json:"-"`
}

// Search runs a structured query against one of the four Sentry datasets.
func (c *Client) Search(ctx context.Context, accessToken, orgSlug string, dataset Dataset, query, cursor string) (*SearchResult, error) {
	var result SearchResult
	path := "/api/0/organizations/" + orgSlug + "/" + string(dataset) + "/"
	q := url.Values{"query": {query}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if err := c.request(ctx, http.MethodGet, accessToken, path, q, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Span is one entry in a trace's ordered span tree.
type Span struct {
	SpanID       string  `json:"span_id"`
	ParentSpanID string  `json:"parent_span_id"`
	Op           string  `json:"op"`
	Description  string  `json:"description"`
	StartTS      float64 `json:"start_timestamp"`
	Duration     float64 `json:"duration"`
}

// TraceMeta is the summary metadata returned alongside a trace's spans.
type TraceMeta struct {
	TraceID     string `json:"trace_id"`
	SpanCount   int    `json:"span_count"`
	ErrorCount  int    `json:"error_count"`
	ProjectSlug string `json:"project_slug"`
}

// Trace is the merged result of a trace lookup plus its meta lookup
// (spec C9's get_trace: "merges trace + trace-meta").
type Trace struct {
	Spans []Span
	Meta  TraceMeta
}

// GetTrace fetches a trace's spans and summary metadata concurrently via
// errgroup, then merges them into one result.
func (c *Client) GetTrace(ctx context.Context, accessToken, orgSlug, traceID string) (*Trace, error) {
	var spans []Span
	var meta TraceMeta

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		path := "/api/0/organizations/" + orgSlug + "/trace/" + traceID + "/"
		return c.request(gctx, http.MethodGet, accessToken, path, nil, nil, &spans)
	})
	g.Go(func() error {
		path := "/api/0/organizations/" + orgSlug + "/trace-meta/" + traceID + "/"
		return c.request(gctx, http.MethodGet, accessToken, path, nil, nil, &meta)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Trace{Spans: spans, Meta: meta}, nil
}

// GetTraceMeta fetches only a trace's summary metadata.
func (c *Client) GetTraceMeta(ctx context.Context, accessToken, orgSlug, traceID string) (*TraceMeta, error) {
	var meta TraceMeta
	path := "/api/0/organizations/" + orgSlug + "/trace-meta/" + traceID + "/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, nil, nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// AutofixRun is a running or completed Seer autofix session on an issue.
type AutofixRun struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Steps  []struct {
		Title  string `json:"title"`
		Status string `json:"status"`
	} `json:"steps"`
}

// ListAutofixRuns lists autofix runs started against an issue.
func (c *Client) ListAutofixRuns(ctx context.Context, accessToken, orgSlug, issueIDOrShortID string) ([]AutofixRun, error) {
	var runs []AutofixRun
	path := "/api/0/issues/" + issueIDOrShortID + "/autofix/"
	if err := c.request(ctx, http.MethodGet, accessToken, path, nil, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// StartAutofixRun starts a new autofix run against an issue.
func (c *Client) StartAutofixRun(ctx context.Context, accessToken, orgSlug, issueIDOrShortID string) (*AutofixRun, error) {
	var run AutofixRun
	path := "/api/0/issues/" + issueIDOrShortID + "/autofix/"
	if err := c.request(ctx, http.MethodPost, accessToken, path, nil, map[string]string{}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetProfilingFlamegraph fetches an aggregated flamegraph for a project's
// profiling data.
func (c *Client) GetProfilingFlamegraph(ctx context.Context, accessToken, orgSlug, projectSlug, query string) (map[string]any, error) {
	var out map[string]any
	path := "/api/0/organizations/" + orgSlug + "/profiling/flamegraph/"
	q := url.Values{"project": {projectSlug}}
	if query != "" {
		q.Set("query", query)
	}
	if err := c.request(ctx, http.MethodGet, accessToken, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DocResult is one hit from a documentation search.
type DocResult struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

// SearchDocs searches the external Sentry documentation site.
func (c *Client) SearchDocs(ctx context.Context, accessToken, query, guide string) ([]DocResult, error) {
	var results []DocResult
	q := url.Values{"query": {query}}
	if guide != "" {
		q.Set("guide", guide)
	}
	if err := c.request(ctx, http.MethodGet, accessToken, "/api/0/docs/search/", q, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Doc is a single fetched documentation page.
type Doc struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// GetDoc fetches a single documentation page by path.
func (c *Client) GetDoc(ctx context.Context, accessToken, path string) (*Doc, error) {
	var doc Doc
	q := url.Values{"path": {path}}
	if err := c.request(ctx, http.MethodGet, accessToken, "/api/0/docs/page/", q, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}


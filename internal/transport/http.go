package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sentry-mcp/gateway/internal/authn"
	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/toolcatalog"
)

// HTTPDeps wires every already-built component C11's HTTP/SSE transport
// needs: C4's OAuth server, C6's session manager (already constructed with
// a BuildServerFunc from BuildMCPServer below), and the ambient
// authentication/rate-limit/bot-filter layer.
type HTTPDeps struct {
	OAuth       http.Handler // C4's Server.Handler()
	Sessions    *mcpsession.Manager
	Authn       *authn.Authenticator
	RateLimiter *authn.RateLimiter
	Logger      *slog.Logger

	// SentryHost is the default upstream host used when a request doesn't
	// carry one of its own (the gateway only ever talks to one Sentry
	// install per deployment unless a region host was discovered earlier
	// in the session).
	SentryHost string
	// PublicURL is this gateway's own externally reachable base URL,
	// recorded on ServerContext.MCPUrl for handlers that need to construct
	// absolute links back to themselves.
	PublicURL string
}

// NewHTTPHandler builds the gateway's full HTTP route table: C4's OAuth
// endpoints, MCP metadata discovery, the legacy SSE transport, and the
// modern Streamable HTTP MCP transport under /mcp[/{org}[/{project}]].
// Grounded on internal/runtime/server.go's ServeMux method-pattern routing
// and corsMiddleware/authMiddleware chain, retargeted from a single
// API-key-gated mux to the gateway's bearer-token + bot-filter + rate-limit
// chain in front of per-session MCP dispatch.
func NewHTTPHandler(d HTTPDeps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	mux := http.NewServeMux()

	if d.OAuth != nil {
		mux.Handle("/oauth/", d.OAuth)
		mux.Handle("/.well-known/oauth-authorization-server", corsPublic(d.OAuth))
		mux.Handle("/.well-known/oauth-protected-resource", corsPublic(d.OAuth))
	}
	mux.Handle("/.well-known/", corsPublic(wellKnownFallback()))

	mcpHandler := mcp.NewStreamableHTTPHandler(d.mcpServerForRequest, &mcp.StreamableHTTPOptions{Stateless: false})
	sseHandler := mcp.NewSSEHandler(d.mcpServerForRequest)

	mux.Handle("/mcp", d.mcpGuard(d.sessionGate(mcpHandler)))
	mux.Handle("/mcp/", d.mcpGuard(d.sessionGate(mcpHandler)))
	mux.Handle("/sse", d.mcpGuard(d.sessionGate(sseHandler)))
	mux.Handle("/sse/", d.mcpGuard(d.sessionGate(sseHandler)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

// mcpGuard applies the pre-MCP filter chain the spec fixes in order: bot
// filter, then rate limiting, ahead of the actual MCP handler. Bearer
// authentication itself happens per-request in sessionGate, which runs
// after this chain and before the MCP SDK's handler.
func (d HTTPDeps) mcpGuard(next http.Handler) http.Handler {
	return botFilter(d.rateLimit(next))
}

// rateLimit buffers and peeks the JSON-RPC body for a tools/call naming
// one of the two buckets the spec fixes (use_sentry -> chat, the NL search
// tools -> search), restoring the body afterward so the MCP handler still
// sees the original request. Any other method (initialize, tools/list, a
// direct tool call outside those two buckets) passes through unthrottled,
// matching authn.RateLimiter.Allow's "unknown bucket is unlimited" default.
func (d HTTPDeps) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.RateLimiter == nil || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		if bucket := toolCallBucket(body); bucket != "" {
			key := authn.KeyFor(clientIP(r), bearerToken(r))
			if !d.RateLimiter.Allow(bucket, key) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", d.RateLimiter.RetryAfterSeconds(bucket, key)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// jsonRPCToolCall is the minimal envelope needed to classify a streamable
// HTTP body's rate-limit bucket without fully decoding the MCP frame.
type jsonRPCToolCall struct {
	Method string `json:"method"`
	Params struct {
		Name string `json:"name"`
	} `json:"params"`
}

func toolCallBucket(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var call jsonRPCToolCall
	if err := json.Unmarshal(body, &call); err != nil {
		return ""
	}
	if call.Method != "tools/call" {
		return ""
	}
	switch call.Params.Name {
	case "use_sentry":
		return authn.BucketChat
	case "search_events", "search_issues":
		return authn.BucketSearch
	default:
		return ""
	}
}

type resolvedServerKey struct{}

// sessionGate runs authentication and C6 session resolution up front, so
// it can answer with the spec's precise status codes (401 for a bad
// token, 403 for a bot/approval/upstream-permission rejection, 404 for an
// org/project the token can't see) before the MCP SDK's own handler — which
// only supports accept-or-reject via BuildServerFunc's nil return — ever
// runs. On success the resolved *mcp.Server is stashed in the request
// context for mcpServerForRequest to read back without re-resolving.
func (d HTTPDeps) sessionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := bearerToken(r)
		id, err := d.Authn.Authenticate(ctx, token)
		if err != nil {
			d.Logger.WarnContext(ctx, "mcp request rejected", "error", err, "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		params := mcpsession.RequestParams{
			UserID:          id.UserID,
			ClientID:        id.ClientID,
			AccessToken:     id.SentryAccessToken,
			GrantedScopes:   id.GrantedScopes,
			GrantedSkills:   id.GrantedSkills,
			SentryHost:      d.SentryHost,
			MCPUrl:          d.PublicURL,
			Path:            r.URL.Path,
			ClientName:      r.Header.Get("X-MCP-Client-Name"),
			ClientVersion:   r.Header.Get("X-MCP-Client-Version"),
			ProtocolVersion: r.Header.Get("MCP-Protocol-Version"),
			AgentMode:       r.URL.Query().Get("agent") == "1",
		}

		sess, _, err := d.Sessions.Resolve(ctx, params)
		if err != nil {
			status, msg := sessionResolveStatus(err)
			d.Logger.WarnContext(ctx, "mcp session resolve failed", "error", err, "path", r.URL.Path)
			http.Error(w, msg, status)
			return
		}

		server, ok := sess.Handle.(*mcp.Server)
		if !ok {
			d.Logger.ErrorContext(ctx, "mcp session handle has unexpected type", "path", r.URL.Path)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, resolvedServerKey{}, server)))
	})
}

func sessionResolveStatus(err error) (int, string) {
	var accessDenied *mcpsession.ErrAccessDenied
	var notFound *mcpsession.ErrNotFoundUpstream
	var invalidConstraint *mcpsession.ErrInvalidConstraint
	switch {
	case errors.As(err, &accessDenied):
		return http.StatusForbidden, "access denied"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "organization/project not found"
	case errors.As(err, &invalidConstraint):
		return http.StatusBadRequest, invalidConstraint.Error()
	default:
		return http.StatusBadRequest, "invalid request"
	}
}

// mcpServerForRequest is the BuildServerFunc callback the MCP SDK calls to
// obtain a *mcp.Server for this connection. All the work (auth, session
// resolution, status-code mapping) already ran in sessionGate; this just
// reads the result back out of the request context.
func (d HTTPDeps) mcpServerForRequest(r *http.Request) *mcp.Server {
	server, _ := r.Context().Value(resolvedServerKey{}).(*mcp.Server)
	return server
}

// BuildMCPServer returns the mcpsession.BuildServerFunc passed to
// mcpsession.NewManager: given a resolved ServerContext, it builds a fresh
// *mcp.Server and registers every tool the session's granted
// skills/scopes make visible (or, in agent mode, just the use_sentry
// meta-tool), each handler closing over the session's ServerContext and
// delegating to the shared registry's Dispatch. Grounded on
// other_examples/…janhq-server…mcp_route.go.go's
// mcp.NewServer(impl, nil)/AddTool shape and
// other_examples/…visla-perlin-dev-mcp…sentry_provider.go.go's
// Result-to-CallToolResult translation.
func BuildMCPServer(registry *toolcatalog.Registry, implName, implVersion string) mcpsession.BuildServerFunc {
	return func(ctx context.Context, sc mcpsession.ServerContext) (any, error) {
		server := mcp.NewServer(&mcp.Implementation{Name: implName, Version: implVersion}, nil)

		specs, err := registry.Visible(sc, sc.AgentMode)
		if err != nil {
			return nil, fmt.Errorf("transport: resolve visible tools: %w", err)
		}
		for _, spec := range specs {
			registerTool(server, registry, sc, spec)
		}
		return server, nil
	}
}

func registerTool(server *mcp.Server, registry *toolcatalog.Registry, sc mcpsession.ServerContext, spec toolcatalog.Spec) {
	name := spec.Name
	server.AddTool(&mcp.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: spec.ParamsSchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := registry.Dispatch(ctx, sc, name, req.Params.Arguments)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}
		return toolResultToMCP(result), nil
	})
}

func toolResultToMCP(r *toolcatalog.Result) *mcp.CallToolResult {
	text := r.Text
	if r.Chart != nil {
		if b, err := json.Marshal(r.Chart); err == nil {
			text = string(b)
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: r.IsError,
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}

// corsPublic wraps a public metadata handler with the spec's fixed,
// wildcard CORS policy and answers its own OPTIONS preflight. Grounded on
// internal/runtime/server.go's corsMiddleware, narrowed from an
// origin-allowlist to the spec's literal "Allow-Origin: *" for metadata
// endpoints only (the authenticated /mcp routes never get this wrapper).
func corsPublic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// wellKnownFallback answers any /.well-known/ path C4 doesn't itself mount
// with a 404 rather than falling through to the MCP routes.
func wellKnownFallback() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
}

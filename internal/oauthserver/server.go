// Package oauthserver implements the gateway's own OAuth 2.1 authorization
// server (spec C4): RFC 8414 metadata, RFC 7591 dynamic client registration,
// the authorize/consent/callback dance against the upstream Sentry OAuth
// client (C3), and the token endpoint, all backed by C2 storage.
package oauthserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sentry-mcp/gateway/internal/oauthstore"
	"github.com/sentry-mcp/gateway/internal/skills"
	"github.com/sentry-mcp/gateway/internal/upstream"
)

// Server is the OAuth 2.1 authorization server HTTP surface.
type Server struct {
	mux *http.ServeMux

	clients   oauthstore.ClientStore
	grants    oauthstore.GrantStore
	tokens    oauthstore.TokenStore
	approvals oauthstore.ApprovalStore

	upstreamClient *upstream.Client
	cookieSecret   []byte
	logger         *slog.Logger

	// issuer is this gateway's own external base URL (e.g.
	// "https://mcp.example.com"), used to render RFC 8414 metadata.
	issuer string
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer builds the OAuth server's HTTP handler, wiring C2 storage and
// the C3 upstream client.
func NewServer(
	issuer string,
	cookieSecret []byte,
	clients oauthstore.ClientStore,
	grants oauthstore.GrantStore,
	tokens oauthstore.TokenStore,
	approvals oauthstore.ApprovalStore,
	upstreamClient *upstream.Client,
	opts ...ServerOption,
) *Server {
	s := &Server{
		issuer:         issuer,
		cookieSecret:   cookieSecret,
		clients:        clients,
		grants:         grants,
		tokens:         tokens,
		approvals:      approvals,
		upstreamClient: upstreamClient,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", s.handleMetadata)
	mux.HandleFunc("GET /oauth/authorize", s.handleAuthorizeGet)
	mux.HandleFunc("POST /oauth/authorize", s.handleAuthorizePost)
	mux.HandleFunc("GET /oauth/callback", s.handleCallback)
	mux.HandleFunc("POST /oauth/token", s.handleToken)
	mux.HandleFunc("POST /oauth/register", s.handleRegister)
	s.mux = mux
	return s
}

// Handler returns the http.Handler serving the OAuth surface, with the
// no-store/no-cache headers the spec requires on every response except the
// cacheable metadata document.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/oauth-authorization-server" {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Pragma", "no-cache")
		}
		s.mux.ServeHTTP(w, r)
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// scopesToSkillSet resolves the skills form values, one skill name per
// element (no splitting on commas or spaces), into the validated skill
// set, per §4.5.
func scopesToSkillSet(raw []string) ([]skills.Skill, []string) {
	return skills.ParseSkills(raw)
}

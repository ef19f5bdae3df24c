package transport

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/skills"
	"github.com/sentry-mcp/gateway/internal/toolcatalog"
)

// StdioConfig is everything the stdio entrypoint needs to build its one
// session directly, without OAuth: an already-authenticated Sentry access
// token and the host it belongs to.
type StdioConfig struct {
	AccessToken string
	SentryHost  string
}

// ParseStdioConfig resolves StdioConfig from flags, falling back to the
// spec's named environment variables. Grounded on cmd/agentspec/run.go's
// one-shot CLI invocation shape (flags override env, env provides the
// default), generalized from that command's IntentLang-file argument to
// the gateway's credential/host pair.
func ParseStdioConfig(args []string) (StdioConfig, error) {
	fs := flag.NewFlagSet("sentry-mcp", flag.ContinueOnError)
	accessToken := fs.String("access-token", "", "Sentry access token (overrides SENTRY_AUTH_TOKEN)")
	host := fs.String("host", "", "Sentry host (overrides SENTRY_HOST)")
	if err := fs.Parse(args); err != nil {
		return StdioConfig{}, err
	}

	cfg := StdioConfig{AccessToken: *accessToken, SentryHost: *host}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("SENTRY_AUTH_TOKEN")
	}
	if cfg.SentryHost == "" {
		cfg.SentryHost = os.Getenv("SENTRY_HOST")
	}
	if cfg.AccessToken == "" {
		return StdioConfig{}, fmt.Errorf("transport: missing Sentry access token (--access-token or SENTRY_AUTH_TOKEN)")
	}
	if cfg.SentryHost == "" {
		cfg.SentryHost = "sentry.io"
	}
	return cfg, nil
}

// RunStdio builds a single ServerContext directly from cfg (no OAuth, no
// C6 session manager: one process is one session by construction) and
// runs the MCP runtime over stdin/stdout until the client disconnects. A
// local stdio invocation is trusted with the access token's own full
// authority, so it's granted every skill the catalog defines rather than
// a consent-scoped subset.
func RunStdio(ctx context.Context, cfg StdioConfig, registry *toolcatalog.Registry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	allSkills := skills.AllSkills()
	sc := mcpsession.ServerContext{
		AccessToken:   cfg.AccessToken,
		GrantedScopes: grantAllScopes(allSkills),
		GrantedSkills: grantAllSkills(allSkills),
		SentryHost:    cfg.SentryHost,
	}

	build := BuildMCPServer(registry, "sentry-mcp", "1.0.0")
	handle, err := build(ctx, sc)
	if err != nil {
		return fmt.Errorf("transport: build stdio server: %w", err)
	}
	server, ok := handle.(*mcp.Server)
	if !ok {
		return fmt.Errorf("transport: unexpected stdio server handle type %T", handle)
	}

	logger.InfoContext(ctx, "starting stdio MCP session", "sentry_host", cfg.SentryHost)
	return server.Run(ctx, &mcp.StdioTransport{})
}

func grantAllScopes(selected []skills.Skill) map[skills.Scope]struct{} {
	scopes := skills.ScopesForSkills(selected)
	set := make(map[skills.Scope]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}

func grantAllSkills(selected []skills.Skill) map[skills.Skill]struct{} {
	set := make(map[skills.Skill]struct{}, len(selected))
	for _, s := range selected {
		set[s] = struct{}{}
	}
	return set
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/sentry-mcp/gateway/internal/authn"
	"github.com/sentry-mcp/gateway/internal/config"
	"github.com/sentry-mcp/gateway/internal/llm"
	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/oauthserver"
	"github.com/sentry-mcp/gateway/internal/oauthstore"
	"github.com/sentry-mcp/gateway/internal/searchagent"
	"github.com/sentry-mcp/gateway/internal/secrets"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
	"github.com/sentry-mcp/gateway/internal/telemetry"
	"github.com/sentry-mcp/gateway/internal/toolcatalog"
	"github.com/sentry-mcp/gateway/internal/toolhandlers"
	"github.com/sentry-mcp/gateway/internal/upstream"
)

// stores bundles every C2 backend, whichever config.StoreBackend built them.
type stores struct {
	clients   oauthstore.ClientStore
	grants    oauthstore.GrantStore
	tokens    oauthstore.TokenStore
	approvals oauthstore.ApprovalStore

	pgPool     *pgxpool.Pool
	etcdClient *clientv3.Client
}

func (s *stores) Close() {
	if s.pgPool != nil {
		s.pgPool.Close()
	}
	if s.etcdClient != nil {
		s.etcdClient.Close()
	}
}

// buildStores wires C2's storage interfaces to the backend cfg selects.
// memory backs local dev and satisfies every store from one process;
// postgres only ever backs ClientStore (immutable client registrations
// belong in a relational table); etcd backs Grant/Token/Approval, whose
// per-record TTLs map onto etcd leases.
func buildStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return &stores{
			clients:   oauthstore.NewMemoryClientStore(),
			grants:    oauthstore.NewMemoryGrantStore(),
			tokens:    oauthstore.NewMemoryTokenStore(),
			approvals: oauthstore.NewMemoryApprovalStore(),
		}, nil

	case config.StorePostgres, config.StoreEtcd:
		s := &stores{}

		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("sentry-mcp: connect postgres: %w", err)
		}
		pgClients := oauthstore.NewPostgresClientStore(pool)
		if err := pgClients.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("sentry-mcp: migrate postgres: %w", err)
		}
		s.pgPool = pool
		s.clients = pgClients

		etcdClient, err := clientv3.New(clientv3.Config{Endpoints: cfg.EtcdEndpoints})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("sentry-mcp: connect etcd: %w", err)
		}
		etcdStore := oauthstore.NewEtcdStore(etcdClient)
		s.etcdClient = etcdClient
		s.grants = oauthstore.EtcdGrantStore{EtcdStore: etcdStore}
		s.tokens = oauthstore.EtcdTokenStore{EtcdStore: etcdStore}
		s.approvals = oauthstore.EtcdApprovalStore{EtcdStore: etcdStore}
		return s, nil

	default:
		return nil, fmt.Errorf("sentry-mcp: unknown store backend %q", cfg.StoreBackend)
	}
}

// buildSentryAPIClient constructs C7's client and starts its background
// region-host cache refresh (the robfig/cron janitor the domain stack
// binds against), clearing the whole cache every six hours so a stale
// region mapping is never held indefinitely.
func buildSentryAPIClient(logger *slog.Logger) (*sentryapi.Client, error) {
	client := sentryapi.New(http.DefaultClient, logger)
	if err := client.StartRegionCacheRefresh("0 */6 * * *"); err != nil {
		return nil, fmt.Errorf("sentry-mcp: start region cache refresh: %w", err)
	}
	return client, nil
}

// buildSearchAgent wires C10's bounded NL search loop, picking an LLM
// provider from cfg.SearchModel via internal/llm/provider.go's
// NewClientForModel: a provider prefix or a recognized model name (such as
// the default "gpt-4o") decides first; otherwise OLLAMA_HOST, then
// OPENAI_API_KEY, then Anthropic.
func buildSearchAgent(client *sentryapi.Client, cfg config.Config, logger *slog.Logger) toolhandlers.SearchAgent {
	llmClient, model := llm.NewClientForModel(cfg.SearchModel)
	agent := searchagent.NewAgent(client, llmClient, model)
	agent.Logger = logger
	return agent
}

// buildRegistry wires C8/C9 together via toolhandlers.BuildRegistry.
func buildRegistry(client *sentryapi.Client, agent toolhandlers.SearchAgent, logger *slog.Logger) (*toolcatalog.Registry, error) {
	return toolhandlers.BuildRegistry(client, agent, logger)
}

// buildOAuthServer wires C3's upstream client and C2's stores into C4's
// authorization server.
func buildOAuthServer(cfg config.Config, st *stores, logger *slog.Logger) *oauthserver.Server {
	upstreamClient := upstream.NewClient(cfg.SentryHost, cfg.SentryClientID, cfg.SentryClientSecret, http.DefaultClient)
	return oauthserver.NewServer(
		cfg.MCPUrl,
		[]byte(cfg.CookieSecret),
		st.clients,
		st.grants,
		st.tokens,
		st.approvals,
		upstreamClient,
		oauthserver.WithLogger(logger),
	)
}

// buildSessionManager wires C6 over the given build function and C7's
// client as the ConstraintValidator.
func buildSessionManager(cfg config.Config, client *sentryapi.Client, build mcpsession.BuildServerFunc) *mcpsession.Manager {
	return mcpsession.NewManager(nil, client, build, cfg.HibernateAfter)
}

// buildRateLimiter wires the ambient per-bucket rate limiter from the
// resolved chat/search limits.
func buildRateLimiter(cfg config.Config) *authn.RateLimiter {
	return authn.NewRateLimiter(map[string]int{
		authn.BucketChat:   cfg.ChatRateLimit,
		authn.BucketSearch: cfg.SearchRateLimit,
	})
}

// buildLogger builds the ambient slog logger with secret redaction
// wrapped around it, registering the gateway's own long-lived secrets
// the moment they're read from config.
func buildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	base := telemetry.NewLogger(nil, level)
	redact := secrets.NewRedactFilter(base.Handler())
	if cfg.CookieSecret != "" {
		redact.AddSecret(cfg.CookieSecret)
	}
	if cfg.SentryClientSecret != "" {
		redact.AddSecret(cfg.SentryClientSecret)
	}
	return slog.New(redact)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentry-mcp/gateway/internal/authn"
	"github.com/sentry-mcp/gateway/internal/config"
	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/telemetry"
	"github.com/sentry-mcp/gateway/internal/transport"
)

const (
	implName    = "sentry-mcp"
	implVersion = "0.1.0"
)

func newServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway's HTTP/SSE MCP server and OAuth endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "optional YAML overlay file, hot reloaded on change")
	return cmd
}

// runServe builds every SPEC_FULL component and serves it until SIGINT/
// SIGTERM, following cmd/agentspec/run.go's signal.NotifyContext shutdown
// pattern and internal/runtime/server.go's ListenAndServe timeout values.
func runServe(ctx context.Context, configFile string) error {
	cfg, err := config.LoadOverlay(config.FromEnv(), configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := buildLogger(cfg)

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:      cfg.TracingEnabled,
		OTLPEndpoint: cfg.OTLPEndpoint,
		ServiceName:  implName,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry-mcp: init tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	telemetry.NewMetrics(nil) // registers against the default registerer /metrics serves

	st, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	apiClient, err := buildSentryAPIClient(logger)
	if err != nil {
		return err
	}
	defer apiClient.StopRegionCacheRefresh()

	searchAgent := buildSearchAgent(apiClient, cfg, logger)
	registry, err := buildRegistry(apiClient, searchAgent, logger)
	if err != nil {
		return fmt.Errorf("sentry-mcp: build tool registry: %w", err)
	}

	oauthServer := buildOAuthServer(cfg, st, logger)
	sessions := buildSessionManager(cfg, apiClient, transport.BuildMCPServer(registry, implName, implVersion))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hibernationLoop(ctx, sessions, logger)

	deps := transport.HTTPDeps{
		OAuth:       oauthServer.Handler(),
		Sessions:    sessions,
		Authn:       authn.NewAuthenticator(st.tokens),
		RateLimiter: buildRateLimiter(cfg),
		Logger:      logger,
		SentryHost:  cfg.SentryHost,
		PublicURL:   cfg.MCPUrl,
	}

	mux := http.NewServeMux()
	mux.Handle("/", transport.NewHTTPHandler(deps))
	mux.Handle("/metrics", telemetry.Handler())

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sentry-mcp: listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("sentry-mcp: shutting down")
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// hibernationLoop periodically releases idle session handles, grounded on
// internal/mcpsession.Manager's own hibernation sweep being caller-driven
// rather than self-scheduled.
func hibernationLoop(ctx context.Context, sessions *mcpsession.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Hibernate(ctx)
		}
	}
}

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sentry-mcp/gateway/internal/config"
	"github.com/sentry-mcp/gateway/internal/transport"
)

func newStdioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Run the gateway as a single-session MCP server over stdin/stdout",
		Long: `stdio runs one trusted MCP session directly from a Sentry access token
(--access-token or SENTRY_AUTH_TOKEN), with no OAuth server and no C6
session table: the process itself is the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(cmd.Context(), args)
		},
	}
	cmd.DisableFlagParsing = true // ParseStdioConfig owns its own flag set
	return cmd
}

func runStdio(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadOverlay(config.FromEnv(), "")
	if err != nil {
		return err
	}
	logger := buildLogger(cfg)

	stdioCfg, err := transport.ParseStdioConfig(args)
	if err != nil {
		return err
	}

	apiClient, err := buildSentryAPIClient(logger)
	if err != nil {
		return err
	}
	defer apiClient.StopRegionCacheRefresh()

	searchAgent := buildSearchAgent(apiClient, cfg, logger)
	registry, err := buildRegistry(apiClient, searchAgent, logger)
	if err != nil {
		return err
	}

	return transport.RunStdio(ctx, stdioCfg, registry, logger)
}

package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/sentry-mcp/gateway/internal/config"
	"github.com/sentry-mcp/gateway/internal/oauthstore"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema for the oauth_clients table",
		Long: `migrate connects to POSTGRES_DSN and creates the oauth_clients
table if it doesn't already exist. It runs for STORE_BACKEND "postgres"
and "etcd" (the etcd backend still keeps client registrations in
Postgres) and returns an error for "memory", which has nothing to
migrate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
}

func runMigrate(ctx context.Context) error {
	cfg := config.FromEnv()
	if cfg.StoreBackend != config.StorePostgres && cfg.StoreBackend != config.StoreEtcd {
		return fmt.Errorf("sentry-mcp: migrate requires STORE_BACKEND=postgres (or etcd, which still uses postgres for ClientStore), got %q", cfg.StoreBackend)
	}
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("sentry-mcp: POSTGRES_DSN is required")
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("sentry-mcp: connect postgres: %w", err)
	}
	defer pool.Close()

	clients := oauthstore.NewPostgresClientStore(pool)
	if err := clients.Migrate(ctx); err != nil {
		return fmt.Errorf("sentry-mcp: migrate: %w", err)
	}

	fmt.Println("migrated oauth_clients table")
	return nil
}

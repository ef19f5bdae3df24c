package oauthstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresClientStore is a pgx-backed ClientStore. ClientRegistration is
// relational and immutable-after-create, unlike Grant/Token/Approval, so it
// gets a durable Postgres table (`oauth_clients`) rather than an etcd lease.
type PostgresClientStore struct {
	pool *pgxpool.Pool
}

// NewPostgresClientStore wraps an existing pgx pool. Run migrations that
// create the `oauth_clients` table before using the store.
func NewPostgresClientStore(pool *pgxpool.Pool) *PostgresClientStore {
	return &PostgresClientStore{pool: pool}
}

const createOAuthClientsTable = `
CREATE TABLE IF NOT EXISTS oauth_clients (
	client_id                  TEXT PRIMARY KEY,
	client_secret_hash         TEXT NOT NULL DEFAULT '',
	redirect_uris              TEXT[] NOT NULL,
	token_endpoint_auth_method TEXT NOT NULL,
	grant_types                TEXT[] NOT NULL,
	response_types             TEXT[] NOT NULL,
	client_name                TEXT NOT NULL DEFAULT '',
	client_uri                 TEXT NOT NULL DEFAULT '',
	logo_uri                   TEXT NOT NULL DEFAULT '',
	policy_uri                 TEXT NOT NULL DEFAULT '',
	tos_uri                    TEXT NOT NULL DEFAULT '',
	registration_date          TIMESTAMPTZ NOT NULL
)`

// Migrate creates the oauth_clients table if it does not already exist.
func (s *PostgresClientStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, createOAuthClientsTable)
	if err != nil {
		return fmt.Errorf("migrate oauth_clients: %w", err)
	}
	return nil
}

func grantTypeStrings(gt []GrantType) []string {
	out := make([]string, len(gt))
	for i, g := range gt {
		out[i] = string(g)
	}
	return out
}

func toGrantTypes(ss []string) []GrantType {
	out := make([]GrantType, len(ss))
	for i, s := range ss {
		out[i] = GrantType(s)
	}
	return out
}

const upsertClient = `
INSERT INTO oauth_clients (
	client_id, client_secret_hash, redirect_uris, token_endpoint_auth_method,
	grant_types, response_types, client_name, client_uri, logo_uri,
	policy_uri, tos_uri, registration_date
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (client_id) DO NOTHING`

func (s *PostgresClientStore) Put(ctx context.Context, c *ClientRegistration) error {
	_, err := s.pool.Exec(ctx, upsertClient,
		c.ClientID, c.ClientSecretHash, c.RedirectURIs, string(c.TokenEndpointAuthMethod),
		grantTypeStrings(c.GrantTypes), c.ResponseTypes, c.ClientName, c.ClientURI, c.LogoURI,
		c.PolicyURI, c.TosURI, c.RegistrationDate,
	)
	if err != nil {
		return fmt.Errorf("insert oauth_client %s: %w", c.ClientID, err)
	}
	return nil
}

const selectClient = `
SELECT client_id, client_secret_hash, redirect_uris, token_endpoint_auth_method,
	grant_types, response_types, client_name, client_uri, logo_uri,
	policy_uri, tos_uri, registration_date
FROM oauth_clients WHERE client_id = $1`

func (s *PostgresClientStore) Get(ctx context.Context, clientID string) (*ClientRegistration, error) {
	row := s.pool.QueryRow(ctx, selectClient, clientID)

	var (
		c          ClientRegistration
		authMethod string
		grantTypes []string
	)
	err := row.Scan(
		&c.ClientID, &c.ClientSecretHash, &c.RedirectURIs, &authMethod,
		&grantTypes, &c.ResponseTypes, &c.ClientName, &c.ClientURI, &c.LogoURI,
		&c.PolicyURI, &c.TosURI, &c.RegistrationDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select oauth_client %s: %w", clientID, err)
	}
	c.TokenEndpointAuthMethod = TokenEndpointAuthMethod(authMethod)
	c.GrantTypes = toGrantTypes(grantTypes)
	return &c, nil
}

func (s *PostgresClientStore) Delete(ctx context.Context, clientID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM oauth_clients WHERE client_id = $1`, clientID)
	if err != nil {
		return fmt.Errorf("delete oauth_client %s: %w", clientID, err)
	}
	return nil
}

var _ ClientStore = (*PostgresClientStore)(nil)

// RedirectURIMatches reports whether uri is registered for the client, used
// by the authorize/token endpoints (C4) before trusting a redirect_uri.
func RedirectURIMatches(c *ClientRegistration, uri string) bool {
	for _, r := range c.RedirectURIs {
		if strings.EqualFold(r, uri) {
			return true
		}
	}
	return false
}

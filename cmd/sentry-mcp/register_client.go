package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentry-mcp/gateway/internal/config"
	"github.com/sentry-mcp/gateway/internal/crypto"
	"github.com/sentry-mcp/gateway/internal/oauthstore"
)

func newRegisterClientCmd() *cobra.Command {
	var (
		name         string
		redirectURIs []string
		public       bool
	)

	cmd := &cobra.Command{
		Use:   "register-client",
		Short: "Pre-register an OAuth client directly against the configured store",
		Long: `register-client performs the same RFC 7591 registration the
POST /oauth/register endpoint does, but writes straight to the
configured C2 store — useful for provisioning a first-party client
before the server has ever answered a request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(redirectURIs) == 0 {
				return fmt.Errorf("sentry-mcp: at least one --redirect-uri is required")
			}
			return runRegisterClient(cmd.Context(), name, redirectURIs, public)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "client_name")
	cmd.Flags().StringSliceVar(&redirectURIs, "redirect-uri", nil, "redirect_uris (repeatable)")
	cmd.Flags().BoolVar(&public, "public", false, "register a public client (auth method \"none\", no client secret)")
	return cmd
}

func runRegisterClient(ctx context.Context, name string, redirectURIs []string, public bool) error {
	cfg, err := config.LoadOverlay(config.FromEnv(), "")
	if err != nil {
		return err
	}

	st, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	clientID, err := crypto.GenerateClientID()
	if err != nil {
		return fmt.Errorf("sentry-mcp: generate client_id: %w", err)
	}

	authMethod := oauthstore.AuthMethodClientSecretBasic
	var clientSecret, clientSecretHash string
	if public {
		authMethod = oauthstore.AuthMethodNone
	} else {
		clientSecret, err = crypto.GenerateClientSecret()
		if err != nil {
			return fmt.Errorf("sentry-mcp: generate client_secret: %w", err)
		}
		clientSecretHash = crypto.HashSecret(clientSecret)
	}

	reg := &oauthstore.ClientRegistration{
		ClientID:                clientID,
		ClientSecretHash:        clientSecretHash,
		RedirectURIs:            redirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              []oauthstore.GrantType{oauthstore.GrantTypeAuthorizationCode, oauthstore.GrantTypeRefreshToken},
		ResponseTypes:           []string{"code"},
		ClientName:              name,
		RegistrationDate:        time.Now(),
	}
	if err := st.clients.Put(ctx, reg); err != nil {
		return fmt.Errorf("sentry-mcp: store client registration: %w", err)
	}

	fmt.Printf("client_id: %s\n", clientID)
	if clientSecret != "" {
		fmt.Printf("client_secret: %s\n", clientSecret)
	}
	return nil
}

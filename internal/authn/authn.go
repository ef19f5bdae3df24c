// Package authn resolves an inbound bearer token into the gateway's own
// identity and the upstream Sentry credentials behind it, and applies the
// per-IP/per-token rate limiting the MCP transports sit behind (ambient concerns of C11's
// transports). Grounded on the teacher's internal/auth package, retargeted
// from static API-key comparison to resolving the gateway's own opaque
// OAuth tokens against C2 storage.
package authn

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sentry-mcp/gateway/internal/crypto"
	"github.com/sentry-mcp/gateway/internal/oauthstore"
	"github.com/sentry-mcp/gateway/internal/skills"
)

// ErrInvalidToken is returned for a bearer token that doesn't resolve to a
// live access token record.
var ErrInvalidToken = errors.New("authn: invalid or unknown access token")

// ErrExpiredToken is returned for a token record found but past its TTL.
var ErrExpiredToken = errors.New("authn: access token expired")

// Identity is everything a resolved bearer token yields: the gateway's own
// user/client identity, the granted skill/scope set from consent, and the
// upstream Sentry access token to act on the user's behalf with.
type Identity struct {
	UserID            string
	ClientID          string
	SentryAccessToken string
	GrantedScopes     []skills.Scope
	GrantedSkills     []skills.Skill
	ExpiresAt         time.Time
}

// workerProps mirrors oauthserver's unexported struct of the same shape:
// the upstream Sentry tokens and identity encrypted at rest inside a Token
// record. Duplicated here, rather than exported from oauthserver, because
// this is a distinct concern (resource-server token introspection) from
// the authorization server that minted the token.
type workerProps struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
}

// Authenticator resolves bearer tokens against C2's TokenStore.
type Authenticator struct {
	Tokens oauthstore.TokenStore
}

// NewAuthenticator builds an Authenticator over the given token store.
func NewAuthenticator(tokens oauthstore.TokenStore) *Authenticator {
	return &Authenticator{Tokens: tokens}
}

// Authenticate resolves a raw bearer token (as presented in the
// Authorization header, without the "Bearer " prefix) into an Identity.
func (a *Authenticator) Authenticate(ctx context.Context, bearer string) (Identity, error) {
	if bearer == "" {
		return Identity{}, ErrInvalidToken
	}

	tokenID := crypto.TokenID(bearer)
	t, err := a.Tokens.Get(ctx, tokenID)
	if err != nil || t.Kind != oauthstore.TokenKindAccess {
		return Identity{}, ErrInvalidToken
	}
	if time.Now().After(t.ExpiresAt) {
		return Identity{}, ErrExpiredToken
	}

	dataKey, err := crypto.UnwrapKeyWithToken(bearer, t.WrappedEncryptionKey)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	plaintext, err := crypto.DecryptProps(crypto.EncryptedProps{
		Nonce:      t.EncryptedPropsNonce,
		Ciphertext: t.EncryptedProps,
	}, dataKey)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	var props workerProps
	if err := json.Unmarshal(plaintext, &props); err != nil {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID:            t.UserID,
		ClientID:          t.ClientID,
		SentryAccessToken: props.AccessToken,
		GrantedScopes:     scopesFromStrings(t.Scope),
		GrantedSkills:     skillsFromStrings(t.Skills),
		ExpiresAt:         t.ExpiresAt,
	}, nil
}

func scopesFromStrings(ss []string) []skills.Scope {
	out := make([]skills.Scope, len(ss))
	for i, s := range ss {
		out[i] = skills.Scope(s)
	}
	return out
}

func skillsFromStrings(ss []string) []skills.Skill {
	out := make([]skills.Skill, len(ss))
	for i, s := range ss {
		out[i] = skills.Skill(s)
	}
	return out
}

// Package oauthstore implements the gateway's OAuth record storage (spec C2):
// a key-value façade over ClientRegistration, Grant, Token, and Approval
// records, with record-kind-specific TTLs.
package oauthstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store Get methods when no record exists for the
// given key, or it has expired.
var ErrNotFound = errors.New("oauthstore: record not found")

// ErrCASFailed is returned by token rotation when the compare-and-set on the
// old token fails — another request already rotated or revoked it.
var ErrCASFailed = errors.New("oauthstore: compare-and-set failed")

// Record TTLs, per spec §4.2.
const (
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 30 * 24 * time.Hour
	AuthCodeTTL     = 10 * time.Minute
	ApprovalTTL     = 90 * 24 * time.Hour
)

// TokenEndpointAuthMethod enumerates RFC 7591 client auth methods.
type TokenEndpointAuthMethod string

const (
	AuthMethodNone              TokenEndpointAuthMethod = "none"
	AuthMethodClientSecretBasic TokenEndpointAuthMethod = "client_secret_basic"
	AuthMethodClientSecretPost  TokenEndpointAuthMethod = "client_secret_post"
)

// GrantType enumerates the grant types a ClientRegistration may be issued.
type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeRefreshToken      GrantType = "refresh_token"
)

// ClientRegistration is an OAuth client created by POST /oauth/register.
// Immutable after creation; destroyed only by admin tooling.
type ClientRegistration struct {
	ClientID                string
	ClientSecretHash        string // empty iff TokenEndpointAuthMethod == none
	RedirectURIs            []string
	TokenEndpointAuthMethod TokenEndpointAuthMethod
	GrantTypes              []GrantType
	ResponseTypes           []string // always {"code"}
	ClientName              string
	ClientURI               string
	LogoURI                 string
	PolicyURI               string
	TosURI                  string
	RegistrationDate        time.Time
}

// PKCEMethod mirrors crypto.PKCEMethodS256/PKCEMethodPlain without importing
// the crypto package, so oauthstore stays a leaf dependency.
type PKCEMethod string

const (
	PKCES256  PKCEMethod = "S256"
	PKCEPlain PKCEMethod = "plain"
)

// Grant records a single authorization — one per completed /callback — and
// carries the encrypted WorkerProps plus, while unconsumed, the one-time
// auth code's locator and wrapped data key.
type Grant struct {
	ID                 string
	ClientID           string
	UserID             string
	Scope              []string
	Skills             []string // the user-facing skills selected at consent, distinct from their expanded Scope closure
	EncryptedProps     []byte // AEAD ciphertext of WorkerProps
	EncryptedPropsNonce []byte
	CreatedAt          time.Time

	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod PKCEMethod

	AuthCodeID         string // SHA-256 of the one-time code; empty once consumed
	AuthCodeWrappedKey []byte // data key wrapped by the code secret; empty once consumed
}

// TokenKind distinguishes access from refresh tokens within the same store.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Token is an access or refresh token record, inlining enough of its parent
// Grant for O(1) lookup on the request hot path.
type Token struct {
	ID        string // SHA-256(secret); never the raw secret
	Kind      TokenKind
	GrantID   string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time

	WrappedEncryptionKey []byte // data key wrapped by this token's own secret

	ClientID            string
	Scope               []string
	Skills              []string
	EncryptedProps      []byte
	EncryptedPropsNonce []byte
}

// Approval is a long-lived "user already approved this client" cookie,
// keyed by (userId, clientId), so repeat authorizations can skip the
// consent screen.
type Approval struct {
	UserID    string
	ClientID  string
	Scope     []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ClientStore persists ClientRegistration records.
type ClientStore interface {
	Put(ctx context.Context, c *ClientRegistration) error
	Get(ctx context.Context, clientID string) (*ClientRegistration, error)
	Delete(ctx context.Context, clientID string) error
}

// GrantStore persists Grant records.
type GrantStore interface {
	Put(ctx context.Context, g *Grant) error
	Get(ctx context.Context, grantID string) (*Grant, error)
	// ConsumeAuthCode atomically clears AuthCodeID/AuthCodeWrappedKey on the
	// grant identified by authCodeID, returning the grant as it was just
	// before consumption. Returns ErrNotFound if no grant has that unconsumed
	// auth code (already used, or never existed).
	ConsumeAuthCode(ctx context.Context, authCodeID string) (*Grant, error)
	Delete(ctx context.Context, grantID string) error
}

// TokenStore persists Token records, keyed by TokenID (SHA-256 of secret).
type TokenStore interface {
	Put(ctx context.Context, t *Token) error
	Get(ctx context.Context, tokenID string) (*Token, error)
	Delete(ctx context.Context, tokenID string) error
	// Rotate writes newToken and deletes oldTokenID as a single unit; if
	// either step fails, the old token remains valid (ErrCASFailed or the
	// underlying error is returned and newToken is rolled back).
	Rotate(ctx context.Context, oldTokenID string, newToken *Token) error
	// DeleteByGrant removes every token (access and refresh) for a grant,
	// used when a grant is revoked.
	DeleteByGrant(ctx context.Context, grantID string) error
}

// ApprovalStore persists Approval records, keyed by (userID, clientID).
type ApprovalStore interface {
	Put(ctx context.Context, a *Approval) error
	Get(ctx context.Context, userID, clientID string) (*Approval, error)
}

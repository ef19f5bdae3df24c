// Package upstream implements the gateway's OAuth client against Sentry
// itself (spec C3): building the upstream authorize URL and exchanging or
// refreshing tokens against Sentry's /oauth/token/ endpoint.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Error classes surfaced to C4, matching the spec's failure taxonomy.
var (
	// ErrUpstreamUnavailable wraps network-level failures reaching Sentry.
	ErrUpstreamUnavailable = errors.New("upstream: sentry unavailable")
	// ErrUpstreamMalformed wraps a 2xx response whose body didn't parse.
	ErrUpstreamMalformed = errors.New("upstream: malformed token response")
)

// RejectedError wraps a 4xx `error=...` response from Sentry's token
// endpoint, carrying the upstream error code through for the gateway to
// surface or map onto its own OAuth error taxonomy.
type RejectedError struct {
	Code        string
	Description string
}

func (e *RejectedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("upstream rejected: %s (%s)", e.Code, e.Description)
	}
	return fmt.Sprintf("upstream rejected: %s", e.Code)
}

// TokenResult is the parsed result of a code exchange or refresh.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds
	User         struct {
		ID   string
		Name string
	}
}

// Client talks to a single Sentry installation's OAuth endpoints.
type Client struct {
	upstreamBase string // e.g. "https://sentry.io"
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewClient builds a Client for one Sentry region host. clientSecret may be
// empty for public clients.
func NewClient(upstreamBase, clientID, clientSecret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		upstreamBase: upstreamBase,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
	}
}

func (c *Client) oauthConfig(redirectURI string, scope []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scope,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.upstreamBase + "/oauth/authorize/",
			TokenURL: c.upstreamBase + "/oauth/token/",
		},
	}
}

// AuthorizeURLParams bundles the inputs to AuthorizeURL.
type AuthorizeURLParams struct {
	RedirectURI string
	Scope       []string
	State       string
}

// AuthorizeURL returns the canonical Sentry /oauth/authorize/ URL the
// gateway 302s the user-agent to from its own /oauth/authorize endpoint.
func (c *Client) AuthorizeURL(p AuthorizeURLParams) string {
	conf := c.oauthConfig(p.RedirectURI, p.Scope)
	return conf.AuthCodeURL(p.State)
}

// ExchangeCode exchanges a freshly-issued upstream authorization code for
// access/refresh tokens, using the same redirectURI sent to /authorize.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResult, error) {
	conf := c.oauthConfig(redirectURI, nil)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, classifyOAuth2Error(err)
	}
	return resultFromToken(tok)
}

// Refresh exchanges a refresh token for a new access token (and, per
// Sentry's rotation policy, typically a new refresh token).
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResult, error) {
	conf := c.oauthConfig("", nil)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, classifyOAuth2Error(err)
	}
	return resultFromToken(tok)
}

func resultFromToken(tok *oauth2.Token) (*TokenResult, error) {
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access_token", ErrUpstreamMalformed)
	}

	result := &TokenResult{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		if d := time.Until(tok.Expiry); d > 0 {
			result.ExpiresIn = int(d.Seconds())
		}
	}

	if raw, ok := tok.Extra("user").(map[string]any); ok {
		if id, ok := raw["id"].(string); ok {
			result.User.ID = id
		}
		if name, ok := raw["name"].(string); ok {
			result.User.Name = name
		}
	}
	return result, nil
}

// classifyOAuth2Error maps golang.org/x/oauth2's error taxonomy onto the
// gateway's UpstreamUnavailable/UpstreamRejected/UpstreamMalformed classes.
func classifyOAuth2Error(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return &RejectedError{
				Code:        retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
			}
		}
		return fmt.Errorf("%w: %v", ErrUpstreamMalformed, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

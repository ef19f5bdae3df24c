package oauthserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sentry-mcp/gateway/internal/crypto"
	"github.com/sentry-mcp/gateway/internal/oauthstore"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// handleToken serves both grant types the gateway supports:
// authorization_code (minting a fresh access/refresh pair from a one-time
// code) and refresh_token (rotating the refresh token and, when the
// upstream access token is close to expiring, refreshing it too).
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		s.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		s.handleRefreshTokenGrant(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

// authenticateClient resolves the requesting client via HTTP Basic auth or
// client_id/client_secret form fields, per the client's registered
// token_endpoint_auth_method. Public clients (auth method "none") only need
// to name themselves.
func (s *Server) authenticateClient(w http.ResponseWriter, r *http.Request) (*oauthstore.ClientRegistration, bool) {
	clientID, clientSecret, hasBasic := r.BasicAuth()
	if !hasBasic {
		clientID = r.FormValue("client_id")
		clientSecret = r.FormValue("client_secret")
	}
	if clientID == "" {
		s.unauthorizedClient(w, "client_id is required")
		return nil, false
	}

	client, err := s.clients.Get(r.Context(), clientID)
	if err != nil {
		s.unauthorizedClient(w, "unknown client")
		return nil, false
	}

	if client.TokenEndpointAuthMethod == oauthstore.AuthMethodNone {
		return client, true
	}
	if clientSecret == "" || !crypto.SecureEqual(crypto.HashSecret(clientSecret), client.ClientSecretHash) {
		s.unauthorizedClient(w, "invalid client credentials")
		return nil, false
	}
	return client, true
}

func (s *Server) unauthorizedClient(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
	writeOAuthError(w, http.StatusUnauthorized, "invalid_client", description)
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	client, ok := s.authenticateClient(w, r)
	if !ok {
		return
	}

	code := r.FormValue("code")
	if code == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	authCodeID := crypto.HashSecret(code)
	grant, err := s.grants.ConsumeAuthCode(r.Context(), authCodeID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code is invalid, expired, or already used")
		return
	}

	if grant.ClientID != client.ClientID {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code was not issued to this client")
		return
	}
	if redirectURI := r.FormValue("redirect_uri"); redirectURI != grant.RedirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match")
		return
	}
	if grant.CodeChallenge != "" {
		verifier := r.FormValue("code_verifier")
		if verifier == "" || !crypto.VerifyPKCE(verifier, grant.CodeChallenge, string(grant.CodeChallengeMethod)) {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
			return
		}
	}

	dataKey, err := crypto.UnwrapKeyWithToken(code, grant.AuthCodeWrappedKey)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "failed to unwrap grant data key")
		return
	}

	accessSecret, err := crypto.GenerateToken(grant.UserID, grant.ID)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to generate access token")
		return
	}
	refreshSecret, err := crypto.GenerateToken(grant.UserID, grant.ID)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to generate refresh token")
		return
	}

	now := time.Now()
	accessWrapped, err := crypto.WrapKeyWithToken(accessSecret, dataKey)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to wrap access token key")
		return
	}
	refreshWrapped, err := crypto.WrapKeyWithToken(refreshSecret, dataKey)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to wrap refresh token key")
		return
	}

	accessToken := &oauthstore.Token{
		ID:                   crypto.TokenID(accessSecret),
		Kind:                 oauthstore.TokenKindAccess,
		GrantID:              grant.ID,
		UserID:               grant.UserID,
		CreatedAt:            now,
		ExpiresAt:            now.Add(oauthstore.AccessTokenTTL),
		WrappedEncryptionKey: accessWrapped,
		ClientID:             grant.ClientID,
		Scope:                grant.Scope,
		Skills:               grant.Skills,
		EncryptedProps:       grant.EncryptedProps,
		EncryptedPropsNonce:  grant.EncryptedPropsNonce,
	}
	refreshToken := &oauthstore.Token{
		ID:                   crypto.TokenID(refreshSecret),
		Kind:                 oauthstore.TokenKindRefresh,
		GrantID:              grant.ID,
		UserID:               grant.UserID,
		CreatedAt:            now,
		ExpiresAt:            now.Add(oauthstore.RefreshTokenTTL),
		WrappedEncryptionKey: refreshWrapped,
		ClientID:             grant.ClientID,
		Scope:                grant.Scope,
		Skills:               grant.Skills,
		EncryptedProps:       grant.EncryptedProps,
		EncryptedPropsNonce:  grant.EncryptedPropsNonce,
	}

	if err := s.tokens.Put(r.Context(), accessToken); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to store access token")
		return
	}
	if err := s.tokens.Put(r.Context(), refreshToken); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to store refresh token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessSecret,
		TokenType:    "bearer",
		ExpiresIn:    int(oauthstore.AccessTokenTTL.Seconds()),
		RefreshToken: refreshSecret,
		Scope:        strings.Join(grant.Scope, " "),
	})
}

// refreshMarginSeconds is how close to expiry the upstream Sentry access
// token must be before a refresh-token grant also refreshes it upstream,
// rather than just reusing the still-encrypted worker props as-is.
const refreshMarginSeconds = 60

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	client, ok := s.authenticateClient(w, r)
	if !ok {
		return
	}

	refreshSecret := r.FormValue("refresh_token")
	if refreshSecret == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	oldTokenID := crypto.TokenID(refreshSecret)
	oldToken, err := s.tokens.Get(r.Context(), oldTokenID)
	if err != nil || oldToken.Kind != oauthstore.TokenKindRefresh {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh_token is invalid or expired")
		return
	}
	if oldToken.ClientID != client.ClientID {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh_token was not issued to this client")
		return
	}

	dataKey, err := crypto.UnwrapKeyWithToken(refreshSecret, oldToken.WrappedEncryptionKey)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "failed to unwrap refresh token data key")
		return
	}

	encryptedProps, encryptedNonce := oldToken.EncryptedProps, oldToken.EncryptedPropsNonce

	if d := time.Until(accessTokenDeadline(oldToken)); d.Seconds() < refreshMarginSeconds {
		encryptedProps, encryptedNonce, dataKey, err = s.refreshUpstreamProps(r, oldToken, dataKey)
		if err != nil {
			s.writeUpstreamError(w, err)
			return
		}
	}

	newRefreshSecret, err := crypto.GenerateToken(oldToken.UserID, oldToken.GrantID)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to generate refresh token")
		return
	}
	newAccessSecret, err := crypto.GenerateToken(oldToken.UserID, oldToken.GrantID)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to generate access token")
		return
	}

	now := time.Now()
	newRefreshWrapped, err := crypto.WrapKeyWithToken(newRefreshSecret, dataKey)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to wrap refresh token key")
		return
	}
	newAccessWrapped, err := crypto.WrapKeyWithToken(newAccessSecret, dataKey)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to wrap access token key")
		return
	}

	newRefreshToken := &oauthstore.Token{
		ID:                   crypto.TokenID(newRefreshSecret),
		Kind:                 oauthstore.TokenKindRefresh,
		GrantID:              oldToken.GrantID,
		UserID:               oldToken.UserID,
		CreatedAt:            now,
		ExpiresAt:            now.Add(oauthstore.RefreshTokenTTL),
		WrappedEncryptionKey: newRefreshWrapped,
		ClientID:             oldToken.ClientID,
		Scope:                oldToken.Scope,
		Skills:               oldToken.Skills,
		EncryptedProps:       encryptedProps,
		EncryptedPropsNonce:  encryptedNonce,
	}
	newAccessToken := &oauthstore.Token{
		ID:                   crypto.TokenID(newAccessSecret),
		Kind:                 oauthstore.TokenKindAccess,
		GrantID:              oldToken.GrantID,
		UserID:               oldToken.UserID,
		CreatedAt:            now,
		ExpiresAt:            now.Add(oauthstore.AccessTokenTTL),
		WrappedEncryptionKey: newAccessWrapped,
		ClientID:             oldToken.ClientID,
		Scope:                oldToken.Scope,
		Skills:               oldToken.Skills,
		EncryptedProps:       encryptedProps,
		EncryptedPropsNonce:  encryptedNonce,
	}

	if err := s.tokens.Rotate(r.Context(), oldTokenID, newRefreshToken); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh_token was already rotated or revoked")
		return
	}
	if err := s.tokens.Put(r.Context(), newAccessToken); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to store access token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  newAccessSecret,
		TokenType:    "bearer",
		ExpiresIn:    int(oauthstore.AccessTokenTTL.Seconds()),
		RefreshToken: newRefreshSecret,
		Scope:        strings.Join(oldToken.Scope, " "),
	})
}

// accessTokenDeadline approximates when the upstream Sentry access token
// embedded in this grant's worker props expires, using the refresh token's
// own creation as a stand-in since the upstream expiry isn't tracked
// separately from the wrapping token's lifetime.
func accessTokenDeadline(t *oauthstore.Token) time.Time {
	return t.CreatedAt.Add(time.Hour)
}

// refreshUpstreamProps exchanges the stored refresh token for a fresh
// upstream access (and possibly refresh) token, re-encrypting the worker
// props under a freshly generated data key.
func (s *Server) refreshUpstreamProps(r *http.Request, t *oauthstore.Token, dataKey []byte) (props []byte, nonce []byte, newDataKey []byte, err error) {
	plaintext, err := crypto.DecryptProps(crypto.EncryptedProps{Nonce: t.EncryptedPropsNonce, Ciphertext: t.EncryptedProps}, dataKey)
	if err != nil {
		return nil, nil, nil, err
	}
	var wp workerProps
	if err := json.Unmarshal(plaintext, &wp); err != nil {
		return nil, nil, nil, err
	}

	result, err := s.upstreamClient.Refresh(r.Context(), wp.RefreshToken)
	if err != nil {
		return nil, nil, nil, err
	}

	wp.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		wp.RefreshToken = result.RefreshToken
	}
	updated, err := json.Marshal(wp)
	if err != nil {
		return nil, nil, nil, err
	}

	enc, key, err := crypto.EncryptPropsWithNewKey(updated)
	if err != nil {
		return nil, nil, nil, err
	}
	return enc.Ciphertext, enc.Nonce, key, nil
}

package oauthserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/sentry-mcp/gateway/internal/crypto"
	"github.com/sentry-mcp/gateway/internal/oauthstore"
	"github.com/sentry-mcp/gateway/internal/skills"
	"github.com/sentry-mcp/gateway/internal/upstream"
)

// workerProps is the per-grant payload encrypted at rest: the upstream
// Sentry tokens and identity, never stored or logged in the clear.
type workerProps struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
}

// handleCallback completes the dance against Sentry: it verifies the state
// signature, re-checks the approval cookie, exchanges the upstream code,
// mints a fresh one-time code of its own, and redirects the original
// client to its redirect_uri with that code.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		writeOAuthError(w, http.StatusBadGateway, "access_denied", "upstream denied authorization: "+errCode)
		return
	}

	st, err := verifyState(s.cookieSecret, q.Get("state"), stateTTL)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "expired or invalid state")
		return
	}

	client, err := s.clients.Get(r.Context(), st.ClientID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}
	if !oauthstore.RedirectURIMatches(client, st.RedirectURI) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not registered for this client")
		return
	}
	if !s.isClientApproved(r, st.ClientID) {
		writeOAuthError(w, http.StatusForbidden, "access_denied", "client not approved")
		return
	}

	selectedSkills, _ := skills.ParseSkills(st.Skills)
	if len(selectedSkills) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "no valid skills in state")
		return
	}
	grantedScope := skills.ScopesForSkills(selectedSkills)

	code := q.Get("code")
	if code == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "missing code")
		return
	}

	result, err := s.upstreamClient.ExchangeCode(r.Context(), code, st.RedirectURI)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	props := workerProps{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		UserID:       result.User.ID,
		UserName:     result.User.Name,
	}
	plaintext, err := json.Marshal(props)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to marshal worker props")
		return
	}
	encProps, dataKey, err := crypto.EncryptPropsWithNewKey(plaintext)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to encrypt worker props")
		return
	}

	grantID := uuid.NewString()
	authCode, err := crypto.GenerateAuthCode(result.User.ID, grantID)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to generate auth code")
		return
	}
	wrappedKey, err := crypto.WrapKeyWithToken(authCode, dataKey)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to wrap data key")
		return
	}

	grant := &oauthstore.Grant{
		ID:                  grantID,
		ClientID:            st.ClientID,
		UserID:              result.User.ID,
		Scope:               scopesToStringSlice(grantedScope),
		Skills:              skillsToStringSlice(selectedSkills),
		EncryptedProps:      encProps.Ciphertext,
		EncryptedPropsNonce: encProps.Nonce,
		RedirectURI:         st.RedirectURI,
		CodeChallenge:       st.CodeChallenge,
		CodeChallengeMethod: oauthstore.PKCEMethod(st.CodeChallengeMethod),
		AuthCodeID:          crypto.HashSecret(authCode),
		AuthCodeWrappedKey:  wrappedKey,
	}
	if err := s.grants.Put(r.Context(), grant); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to store grant")
		return
	}

	redirectURL, err := url.Parse(st.RedirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to parse redirect_uri")
		return
	}
	q2 := redirectURL.Query()
	q2.Set("code", authCode)
	if st.DownstreamState != "" {
		q2.Set("state", st.DownstreamState)
	}
	redirectURL.RawQuery = q2.Encode()
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	var rejected *upstream.RejectedError
	if errors.As(err, &rejected) {
		writeOAuthError(w, http.StatusBadGateway, "access_denied", rejected.Error())
		return
	}
	writeOAuthError(w, http.StatusBadGateway, "server_error", "upstream unavailable")
}

func scopesToStringSlice(scopes []skills.Scope) []string {
	out := make([]string, len(scopes))
	for i, sc := range scopes {
		out[i] = string(sc)
	}
	return out
}

func skillsToStringSlice(selected []skills.Skill) []string {
	out := make([]string, len(selected))
	for i, sk := range selected {
		out[i] = string(sk)
	}
	return out
}

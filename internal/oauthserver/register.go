package oauthserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sentry-mcp/gateway/internal/crypto"
	"github.com/sentry-mcp/gateway/internal/oauthstore"
)

type registerRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              string   `json:"client_name"`
	ClientURI               string   `json:"client_uri"`
	LogoURI                 string   `json:"logo_uri"`
	PolicyURI               string   `json:"policy_uri"`
	TosURI                  string   `json:"tos_uri"`
}

type registerResponse struct {
	ClientID                string   `json:"client_id"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientSecretExpiresAt   int      `json:"client_secret_expires_at,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              string   `json:"client_name,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "malformed JSON body")
		return
	}

	if len(req.RedirectURIs) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect_uris is required")
		return
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", err.Error())
			return
		}
	}

	authMethod := oauthstore.TokenEndpointAuthMethod(req.TokenEndpointAuthMethod)
	if authMethod == "" {
		authMethod = oauthstore.AuthMethodNone
	}
	switch authMethod {
	case oauthstore.AuthMethodNone, oauthstore.AuthMethodClientSecretBasic, oauthstore.AuthMethodClientSecretPost:
	default:
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "unsupported token_endpoint_auth_method")
		return
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code"}
	}
	for _, gt := range grantTypes {
		switch oauthstore.GrantType(gt) {
		case oauthstore.GrantTypeAuthorizationCode, oauthstore.GrantTypeRefreshToken:
		default:
			writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "unsupported grant_types entry: "+gt)
			return
		}
	}

	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}
	if len(responseTypes) != 1 || responseTypes[0] != "code" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "response_types must be [\"code\"]")
		return
	}

	for name, uri := range map[string]string{
		"client_uri": req.ClientURI, "logo_uri": req.LogoURI,
		"policy_uri": req.PolicyURI, "tos_uri": req.TosURI,
	} {
		if uri == "" {
			continue
		}
		parsed, err := url.Parse(uri)
		if err != nil || parsed.Scheme != "https" {
			writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", name+" must be an absolute https URL")
			return
		}
	}

	clientID, err := crypto.GenerateClientID()
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to generate client_id")
		return
	}

	var clientSecret, clientSecretHash string
	if authMethod != oauthstore.AuthMethodNone {
		clientSecret, err = crypto.GenerateClientSecret()
		if err != nil {
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to generate client_secret")
			return
		}
		clientSecretHash = crypto.HashSecret(clientSecret)
	}

	reg := &oauthstore.ClientRegistration{
		ClientID:                clientID,
		ClientSecretHash:        clientSecretHash,
		RedirectURIs:            req.RedirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              toStoreGrantTypes(grantTypes),
		ResponseTypes:           responseTypes,
		ClientName:              req.ClientName,
		ClientURI:               req.ClientURI,
		LogoURI:                 req.LogoURI,
		PolicyURI:               req.PolicyURI,
		TosURI:                  req.TosURI,
		RegistrationDate:        time.Now(),
	}
	if err := s.clients.Put(r.Context(), reg); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to store client registration")
		return
	}

	resp := registerResponse{
		ClientID:                clientID,
		ClientIDIssuedAt:        reg.RegistrationDate.Unix(),
		ClientSecret:            clientSecret,
		RedirectURIs:            reg.RedirectURIs,
		TokenEndpointAuthMethod: string(authMethod),
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		ClientName:              req.ClientName,
	}
	if clientSecret != "" {
		resp.ClientSecretExpiresAt = 0
	}
	writeJSON(w, http.StatusCreated, resp)
}

func toStoreGrantTypes(ss []string) []oauthstore.GrantType {
	out := make([]oauthstore.GrantType, len(ss))
	for i, s := range ss {
		out[i] = oauthstore.GrantType(s)
	}
	return out
}

// validateRedirectURI enforces the spec's redirect_uri rules: absolute,
// no fragment, HTTPS except loopback.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return errInvalidRedirectURI("must be an absolute URI")
	}
	if u.Fragment != "" {
		return errInvalidRedirectURI("must not contain a fragment")
	}
	if u.Scheme == "https" {
		return nil
	}
	host := u.Hostname()
	if isLoopbackHost(host) {
		return nil
	}
	return errInvalidRedirectURI("must be HTTPS unless loopback")
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

type errInvalidRedirectURI string

func (e errInvalidRedirectURI) Error() string { return string(e) }

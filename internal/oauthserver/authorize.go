package oauthserver

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/sentry-mcp/gateway/internal/oauthstore"
	"github.com/sentry-mcp/gateway/internal/skills"
	"github.com/sentry-mcp/gateway/internal/upstream"
)

// handleAuthorizeGet begins the authorization dance: validate the client
// and redirect_uri, then either skip straight to the upstream redirect (if
// this user-agent already approved this client) or render the consent
// dialog listing the skills it can grant.
func (s *Server) handleAuthorizeGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "client_id is required")
		return
	}

	client, err := s.clients.Get(r.Context(), clientID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}

	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" || !oauthstore.RedirectURIMatches(client, redirectURI) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not registered for this client")
		return
	}

	st := signedState{
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               splitScope(q.Get("scope")),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		DownstreamState:     q.Get("state"),
		IssuedAt:            time.Now().Unix(),
	}

	if s.isClientApproved(r, clientID) {
		s.redirectUpstream(w, r, st, skills.DefaultScopes)
		return
	}

	s.renderConsent(w, client, st)
}

// handleAuthorizePost processes the submitted consent form: it collects the
// skills the user selected, extends the approval cookie, and 302s to the
// upstream authorize URL with a freshly signed state blob.
func (s *Server) handleAuthorizePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	st, err := verifyState(s.cookieSecret, r.FormValue("state"), stateTTL)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "expired or invalid consent form")
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

	selected, _ := skills.ParseSkills(r.Form["skills"])
	if len(selected) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "at least one skill must be granted")
		return
	}

	if err := s.setApprovalCookie(w, r, st.ClientID); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to set approval cookie")
		return
	}

	st.Skills = skillsToStringSlice(selected)
	st.IssuedAt = time.Now().Unix()
	s.redirectUpstream(w, r, st, skills.ScopesForSkills(selected))
}

func (s *Server) redirectUpstream(w http.ResponseWriter, r *http.Request, st signedState, grantedScope []skills.Scope) {
	signed, err := signState(s.cookieSecret, st)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to sign state")
		return
	}

	loc := s.upstreamClient.AuthorizeURL(upstream.AuthorizeURLParams{
		RedirectURI: st.RedirectURI,
		Scope:       strings.Fields(skills.JoinScopes(grantedScope)),
		State:       signed,
	})
	http.Redirect(w, r, loc, http.StatusFound)
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorize {{.Client.ClientName}}</title></head>
<body>
<h1>{{if .Client.ClientName}}{{.Client.ClientName}}{{else}}{{.Client.ClientID}}{{end}} wants to access your Sentry data</h1>
<form method="POST" action="/oauth/authorize">
<input type="hidden" name="state" value="{{.StateToken}}">
{{range .Skills}}
<label><input type="checkbox" name="skills" value="{{.}}" checked> {{.}}</label><br>
{{end}}
<button type="submit">Approve</button>
</form>
</body>
</html>
`))

func (s *Server) renderConsent(w http.ResponseWriter, client *oauthstore.ClientRegistration, st signedState) {
	signed, err := signState(s.cookieSecret, st)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to sign state")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := map[string]any{
		"Client":     client,
		"StateToken": signed,
		"Skills":     skills.AllSkills(),
	}
	if err := consentTemplate.Execute(w, data); err != nil {
		s.logger.Error("render consent dialog", "error", err)
	}
}

func splitScope(raw string) []string {
	return strings.Fields(raw)
}

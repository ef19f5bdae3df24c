package oauthserver

import (
	"net/http"
	"time"
)

const approvalCookieName = "mcp-approved-clients"

func (s *Server) readApprovalCookie(r *http.Request) []string {
	c, err := r.Cookie(approvalCookieName)
	if err != nil {
		return nil
	}

	state, err := verifyState(s.cookieSecret, c.Value, approvalCookieTTL)
	if err != nil {
		return nil
	}
	return state.Skills // reuse signedState.Skills as the generic string-list field
}

func (s *Server) isClientApproved(r *http.Request, clientID string) bool {
	for _, id := range s.readApprovalCookie(r) {
		if id == clientID {
			return true
		}
	}
	return false
}

func (s *Server) setApprovalCookie(w http.ResponseWriter, r *http.Request, clientID string) error {
	ids := s.readApprovalCookie(r)

	found := false
	for _, id := range ids {
		if id == clientID {
			found = true
			break
		}
	}
	if !found {
		ids = append(ids, clientID)
	}

	token, err := signState(s.cookieSecret, signedState{
		Skills:   ids,
		IssuedAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     approvalCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(approvalCookieTTL.Seconds()),
	})
	return nil
}

const approvalCookieTTL = 90 * 24 * time.Hour

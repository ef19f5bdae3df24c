// Package transport implements the gateway's request entrypoints (spec
// C11): the HTTP/SSE transport serving OAuth, MCP, and metadata routes,
// and the stdio transport for a single local invocation.
package transport

import (
	"net/http"
	"strings"
)

// denyUserAgentSubstrings are automated-client signatures the gateway
// refuses before any session work happens. Grounded on
// internal/auth/middleware.go's pattern of rejecting a request outright
// before it reaches the mux, retargeted from API-key checking to a
// User-Agent allow/deny filter (the teacher has no UA precedent for this
// one).
var denyUserAgentSubstrings = []string{
	"python-requests",
	"Go-http-client",
	"okhttp",
	"curl",
}

// allowUserAgentPrefixes always pass regardless of the deny list above:
// real browsers and the handful of named services the gateway has to stay
// reachable from.
var allowUserAgentPrefixes = []string{
	"Mozilla/",
	"Googlebot",
	"PostmanRuntime",
	"UptimeRobot",
}

const minUserAgentLen = 4

// botFilter rejects requests from User-Agents that look like unattended
// scripts rather than MCP clients or browsers, before any authentication,
// rate limiting, or session work runs.
func botFilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !userAgentAllowed(r.UserAgent()) {
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userAgentAllowed(ua string) bool {
	for _, prefix := range allowUserAgentPrefixes {
		if strings.HasPrefix(ua, prefix) {
			return true
		}
	}
	if ua == "" || len(ua) < minUserAgentLen {
		return false
	}
	for _, deny := range denyUserAgentSubstrings {
		if strings.Contains(ua, deny) {
			return false
		}
	}
	return true
}

package llm

import "fmt"

// parseRetryAfterHeader parses an HTTP Retry-After header's seconds form,
// returning 0 if absent or malformed (the caller then falls back to a
// fixed default backoff).
func parseRetryAfterHeader(v string) int {
	if v == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(v, "%d", &seconds); err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

// RateLimited wraps a provider 429 response, carrying the Retry-After hint
// (0 if the provider didn't send one) so callers can back off deliberately
// instead of treating it as an opaque failure.
type RateLimited struct {
	Provider          string
	RetryAfterSeconds int
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("llm: %s rate limited, retry after %ds", e.Provider, e.RetryAfterSeconds)
}

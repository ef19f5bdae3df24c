package sentryapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/robfig/cron/v3"
)

// defaultUserScopedBase is the one base URL user-scoped endpoints (whoami,
// regions) must always use, regardless of which region a user's
// organizations live in.
const defaultUserScopedBase = "https://sentry.io"

// RegionCache resolves which region base URL (e.g. "https://us.sentry.io")
// an access token's organizations live behind, caching the result per
// token so every non-user-scoped call doesn't re-fetch
// /users/me/regions/.
type RegionCache struct {
	httpClient     *http.Client
	logger         *slog.Logger
	userScopedBase string // overridable in tests to point at an httptest.Server

	mu    sync.Mutex
	hosts map[string]string // accessToken -> region base URL

	cronJob *cron.Cron
}

// NewRegionCache builds an empty RegionCache rooted at sentry.io.
func NewRegionCache(httpClient *http.Client, logger *slog.Logger) *RegionCache {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegionCache{httpClient: httpClient, logger: logger, userScopedBase: defaultUserScopedBase, hosts: make(map[string]string)}
}

type regionsResponse struct {
	Regions []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"regions"`
}

// Resolve returns the region host for accessToken, fetching and caching it
// from /api/0/users/me/regions/ on first use.
func (c *RegionCache) Resolve(ctx context.Context, accessToken string) (string, error) {
	c.mu.Lock()
	if host, ok := c.hosts[accessToken]; ok {
		c.mu.Unlock()
		return host, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userScopedBase+"/api/0/users/me/regions/", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, "user regions", resp.Header.Get("Retry-After"), "")
	}

	var parsed regionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("sentryapi: decode regions response: %w", err)
	}
	if len(parsed.Regions) == 0 {
		return c.userScopedBase, nil
	}

	base := parsed.Regions[0].URL
	c.mu.Lock()
	c.hosts[accessToken] = base
	c.mu.Unlock()
	return base, nil
}

// Invalidate drops a token's cached region host, forcing the next Resolve
// to refetch it.
func (c *RegionCache) Invalidate(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hosts, accessToken)
}

// StartPeriodicInvalidation clears the whole cache on a cron schedule, so a
// stale region mapping (e.g. after an account migration) is never held
// indefinitely. spec is a standard 5-field cron expression (e.g. "0 */6 * * *"
// for every six hours).
func (c *RegionCache) StartPeriodicInvalidation(spec string) error {
	job := cron.New()
	_, err := job.AddFunc(spec, func() {
		c.mu.Lock()
		cleared := len(c.hosts)
		c.hosts = make(map[string]string)
		c.mu.Unlock()
		c.logger.Info("region cache cleared", "entries", cleared)
	})
	if err != nil {
		return fmt.Errorf("sentryapi: schedule region cache refresh: %w", err)
	}
	job.Start()
	c.cronJob = job
	return nil
}

// Stop halts the periodic invalidation job, if started.
func (c *RegionCache) Stop() {
	if c.cronJob != nil {
		c.cronJob.Stop()
	}
}

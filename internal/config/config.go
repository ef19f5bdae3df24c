// Package config resolves the gateway's runtime configuration: environment
// variables first, with an optional YAML file overlay that can be hot
// reloaded without a restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreBackend selects which oauthstore implementation backs C2.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreEtcd     StoreBackend = "etcd"
)

// Config is every environment-driven setting the gateway needs to start.
// Zero values are never valid for the required fields; Validate reports
// the ones that are missing.
type Config struct {
	// Sentry / upstream OAuth client (C3).
	SentryHost         string `yaml:"sentry_host"`
	SentryClientID     string `yaml:"sentry_client_id"`
	SentryClientSecret string `yaml:"sentry_client_secret"`

	// This gateway's own OAuth server (C4).
	CookieSecret string `yaml:"cookie_secret"`
	MCPUrl       string `yaml:"mcp_url"`

	// NL search agents (C10).
	OpenAIAPIKey  string `yaml:"-"` // never serialized back out, even to an overlay file
	SearchModel   string `yaml:"search_model"`

	// Storage backend (C2).
	StoreBackend  StoreBackend `yaml:"store_backend"`
	PostgresDSN   string       `yaml:"postgres_dsn"`
	EtcdEndpoints []string     `yaml:"etcd_endpoints"`

	// Rate limiting (C11a), requests per minute.
	ChatRateLimit   int `yaml:"chat_rate_limit"`
	SearchRateLimit int `yaml:"search_rate_limit"`

	// Session hibernation (C6).
	HibernateAfter time.Duration `yaml:"hibernate_after"`

	// HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// Telemetry.
	LogLevel        string `yaml:"log_level"`
	OTLPEndpoint    string `yaml:"otlp_endpoint"`
	TracingEnabled  bool   `yaml:"tracing_enabled"`
}

// FromEnv reads every setting from its named environment variable, applying
// the spec's defaults for anything unset. Grounded on
// internal/auth.RateLimitConfigFromEnv's "read one var, fall back to a
// default" idiom, generalized across the gateway's full settings surface.
func FromEnv() Config {
	cfg := Config{
		SentryHost:         getenv("SENTRY_HOST", "sentry.io"),
		SentryClientID:     os.Getenv("SENTRY_CLIENT_ID"),
		SentryClientSecret: os.Getenv("SENTRY_CLIENT_SECRET"),
		CookieSecret:       os.Getenv("COOKIE_SECRET"),
		MCPUrl:             os.Getenv("MCP_URL"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		SearchModel:        getenv("SEARCH_MODEL", "gpt-4o"),
		StoreBackend:       StoreBackend(getenv("STORE_BACKEND", string(StoreMemory))),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		EtcdEndpoints:      splitCSV(os.Getenv("ETCD_ENDPOINTS")),
		ChatRateLimit:      getenvInt("CHAT_RATE_LIMIT", 10),
		SearchRateLimit:    getenvInt("SEARCH_RATE_LIMIT", 20),
		HibernateAfter:     getenvDuration("SESSION_HIBERNATE_AFTER", 30*time.Minute),
		ListenAddr:         getenv("LISTEN_ADDR", ":8080"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TracingEnabled:     getenvBool("TRACING_ENABLED", false),
	}
	return cfg
}

// LoadOverlay reads a YAML file and merges its non-zero fields over base,
// returning the merged Config. Missing files are not an error: the overlay
// is optional, env-only deployments never need one.
func LoadOverlay(base Config, path string) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return base, fmt.Errorf("config: read overlay %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return base, fmt.Errorf("config: parse overlay %s: %w", path, err)
	}
	return mergeOverlay(base, overlay), nil
}

func mergeOverlay(base, overlay Config) Config {
	if overlay.SentryHost != "" {
		base.SentryHost = overlay.SentryHost
	}
	if overlay.SentryClientID != "" {
		base.SentryClientID = overlay.SentryClientID
	}
	if overlay.SentryClientSecret != "" {
		base.SentryClientSecret = overlay.SentryClientSecret
	}
	if overlay.CookieSecret != "" {
		base.CookieSecret = overlay.CookieSecret
	}
	if overlay.MCPUrl != "" {
		base.MCPUrl = overlay.MCPUrl
	}
	if overlay.SearchModel != "" {
		base.SearchModel = overlay.SearchModel
	}
	if overlay.StoreBackend != "" {
		base.StoreBackend = overlay.StoreBackend
	}
	if overlay.PostgresDSN != "" {
		base.PostgresDSN = overlay.PostgresDSN
	}
	if len(overlay.EtcdEndpoints) > 0 {
		base.EtcdEndpoints = overlay.EtcdEndpoints
	}
	if overlay.ChatRateLimit > 0 {
		base.ChatRateLimit = overlay.ChatRateLimit
	}
	if overlay.SearchRateLimit > 0 {
		base.SearchRateLimit = overlay.SearchRateLimit
	}
	if overlay.HibernateAfter > 0 {
		base.HibernateAfter = overlay.HibernateAfter
	}
	if overlay.ListenAddr != "" {
		base.ListenAddr = overlay.ListenAddr
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}
	if overlay.OTLPEndpoint != "" {
		base.OTLPEndpoint = overlay.OTLPEndpoint
	}
	if overlay.TracingEnabled {
		base.TracingEnabled = true
	}
	return base
}

// Validate reports the required settings the HTTP transport can't start
// without. The stdio transport doesn't call this: it only ever needs an
// access token, checked separately by transport.ParseStdioConfig.
func (c Config) Validate() error {
	var missing []string
	if c.SentryClientID == "" {
		missing = append(missing, "SENTRY_CLIENT_ID")
	}
	if c.SentryClientSecret == "" {
		missing = append(missing, "SENTRY_CLIENT_SECRET")
	}
	if c.CookieSecret == "" {
		missing = append(missing, "COOKIE_SECRET")
	}
	if c.MCPUrl == "" {
		missing = append(missing, "MCP_URL")
	}
	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			missing = append(missing, "POSTGRES_DSN")
		}
	case StoreEtcd:
		if len(c.EtcdEndpoints) == 0 {
			missing = append(missing, "ETCD_ENDPOINTS")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

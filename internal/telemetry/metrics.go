// Package telemetry provides observability for the gateway: structured
// logging, Prometheus metrics, and OpenTelemetry tracing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"net/http"
)

// Metrics collects Prometheus metrics for the gateway's request surface.
type Metrics struct {
	MCPRequestsTotal    *prometheus.CounterVec
	MCPRequestDuration  *prometheus.HistogramVec
	ToolCallsTotal      *prometheus.CounterVec
	ToolCallDuration    *prometheus.HistogramVec
	OAuthGrantsTotal    *prometheus.CounterVec
	SessionsActive      prometheus.Gauge
	RateLimitHitsTotal  *prometheus.CounterVec
	UpstreamErrorsTotal *prometheus.CounterVec
}

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// NewMetrics registers the gateway's metrics against registry, or the
// default Prometheus registerer when nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		MCPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentry_mcp_requests_total",
				Help: "Total MCP JSON-RPC frames handled, by method and outcome",
			},
			[]string{"method", "status"},
		),
		MCPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentry_mcp_request_duration_seconds",
				Help:    "MCP request handling duration",
				Buckets: durationBuckets,
			},
			[]string{"method"},
		),
		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentry_mcp_tool_calls_total",
				Help: "Total tool invocations, by tool name and outcome",
			},
			[]string{"tool", "status"},
		),
		ToolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentry_mcp_tool_call_duration_seconds",
				Help:    "Tool dispatch duration",
				Buckets: durationBuckets,
			},
			[]string{"tool"},
		),
		OAuthGrantsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentry_mcp_oauth_grants_total",
				Help: "Total OAuth token endpoint outcomes, by grant type and status",
			},
			[]string{"grant_type", "status"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentry_mcp_sessions_active",
				Help: "Number of MCP sessions currently holding a live server handle",
			},
		),
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentry_mcp_rate_limit_hits_total",
				Help: "Total requests rejected by the per-bucket rate limiter",
			},
			[]string{"bucket"},
		),
		UpstreamErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentry_mcp_upstream_errors_total",
				Help: "Total errors returned by the upstream Sentry API, by status class",
			},
			[]string{"status_class"},
		),
	}
}

// Handler serves the registered metrics in the Prometheus text exposition
// format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordMCPRequest records one handled JSON-RPC frame.
func (m *Metrics) RecordMCPRequest(method, status string, d time.Duration) {
	m.MCPRequestsTotal.WithLabelValues(method, status).Inc()
	m.MCPRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordToolCall records one tool dispatch.
func (m *Metrics) RecordToolCall(tool, status string, d time.Duration) {
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordOAuthGrant records one token endpoint outcome.
func (m *Metrics) RecordOAuthGrant(grantType, status string) {
	m.OAuthGrantsTotal.WithLabelValues(grantType, status).Inc()
}

// RecordRateLimitHit records one rejected request for bucket.
func (m *Metrics) RecordRateLimitHit(bucket string) {
	m.RateLimitHitsTotal.WithLabelValues(bucket).Inc()
}

// RecordUpstreamError records one upstream Sentry API failure.
func (m *Metrics) RecordUpstreamError(statusClass string) {
	m.UpstreamErrorsTotal.WithLabelValues(statusClass).Inc()
}

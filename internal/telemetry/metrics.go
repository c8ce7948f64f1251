package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the access-control core.
type Metrics struct {
	AuthDecisionTotal      *prometheus.CounterVec
	RateLimitDeniedTotal   *prometheus.CounterVec
	TokensIssuedTotal      *prometheus.CounterVec
	OAuthTokenRequestTotal *prometheus.CounterVec
	ResolveDurationMs      *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		AuthDecisionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "castellan_auth_decision_total",
			Help: "Authentication decisions by credential scheme and outcome.",
		}, []string{"scheme", "outcome"}),

		RateLimitDeniedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "castellan_rate_limit_denied_total",
			Help: "Requests denied by the rate limiter, by window.",
		}, []string{"window"}),

		TokensIssuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "castellan_tokens_issued_total",
			Help: "Tokens issued, by token type.",
		}, []string{"type"}),

		OAuthTokenRequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "castellan_oauth_token_request_total",
			Help: "OAuth2 token endpoint requests, by outcome.",
		}, []string{"outcome"}),

		ResolveDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "castellan_resolve_duration_ms",
			Help:    "Identity resolution latency in milliseconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"scheme"}),
	}
}

// RecordAuthDecision records the outcome of one identity resolution.
func (m *Metrics) RecordAuthDecision(scheme, outcome string) {
	m.AuthDecisionTotal.WithLabelValues(scheme, outcome).Inc()
}

// RecordRateLimitDenied records a rate-limit denial for a window
// ("per_minute" or "per_hour").
func (m *Metrics) RecordRateLimitDenied(window string) {
	m.RateLimitDeniedTotal.WithLabelValues(window).Inc()
}

// RecordTokenIssued records issuance of one token.
func (m *Metrics) RecordTokenIssued(tokenType string) {
	m.TokensIssuedTotal.WithLabelValues(tokenType).Inc()
}

// RecordOAuthTokenRequest records a token endpoint outcome
// (issued, unsupported_grant_type, invalid_client, access_denied,
// invalid_scope, rate_limited).
func (m *Metrics) RecordOAuthTokenRequest(outcome string) {
	m.OAuthTokenRequestTotal.WithLabelValues(outcome).Inc()
}

// ObserveResolveDuration records identity resolution latency.
func (m *Metrics) ObserveResolveDuration(scheme string, ms float64) {
	m.ResolveDurationMs.WithLabelValues(scheme).Observe(ms)
}

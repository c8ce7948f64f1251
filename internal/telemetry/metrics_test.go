package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m.AuthDecisionTotal == nil {
		t.Error("AuthDecisionTotal should not be nil")
	}
	if m.RateLimitDeniedTotal == nil {
		t.Error("RateLimitDeniedTotal should not be nil")
	}
	if m.TokensIssuedTotal == nil {
		t.Error("TokensIssuedTotal should not be nil")
	}
	if m.OAuthTokenRequestTotal == nil {
		t.Error("OAuthTokenRequestTotal should not be nil")
	}
	if m.ResolveDurationMs == nil {
		t.Error("ResolveDurationMs should not be nil")
	}
}

func TestRecordAuthDecision(t *testing.T) {
	// Use a fresh registry to avoid polluting the default one
	reg := prometheus.NewRegistry()

	authTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_castellan_auth_decision_total",
		Help: "Test counter",
	}, []string{"scheme", "outcome"})
	reg.MustRegister(authTotal)

	m := &Metrics{AuthDecisionTotal: authTotal}
	m.RecordAuthDecision("api_key", "allowed")
	m.RecordAuthDecision("api_key", "allowed")
	m.RecordAuthDecision("bearer_user", "invalid_credential")

	var metric dto.Metric
	if err := authTotal.WithLabelValues("api_key", "allowed").Write(&metric); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Errorf("api_key/allowed = %v, want 2", got)
	}

	if err := authTotal.WithLabelValues("bearer_user", "invalid_credential").Write(&metric); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Errorf("bearer_user/invalid_credential = %v, want 1", got)
	}
}

func TestRecordRateLimitDenied(t *testing.T) {
	reg := prometheus.NewRegistry()

	denied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_castellan_rate_limit_denied_total",
		Help: "Test counter",
	}, []string{"window"})
	reg.MustRegister(denied)

	m := &Metrics{RateLimitDeniedTotal: denied}
	m.RecordRateLimitDenied("per_minute")

	var metric dto.Metric
	if err := denied.WithLabelValues("per_minute").Write(&metric); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Errorf("per_minute denials = %v, want 1", got)
	}
}

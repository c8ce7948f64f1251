package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/castellan-api/castellan/internal/identity"
)

func serve(mw func(http.Handler) http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_HeadersOnAllowedResponse(t *testing.T) {
	mw := Middleware(NewLimiter(10, 100), nil)

	req := httptest.NewRequest("GET", "/v1/me", nil)
	req.RemoteAddr = "203.0.113.7:4242"
	rec := serve(mw, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("X-RateLimit-Limit = %q, want 10", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("X-RateLimit-Remaining = %q, want 9", got)
	}
	if got := rec.Header().Get("X-RateLimit-Limit-Hour"); got != "100" {
		t.Errorf("X-RateLimit-Limit-Hour = %q, want 100", got)
	}
	if rec.Header().Get("Retry-After") != "" {
		t.Error("allowed responses must not carry Retry-After")
	}
}

func TestMiddleware_DeniesWith429(t *testing.T) {
	mw := Middleware(NewLimiter(2, 100), nil)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/v1/me", nil)
		req.RemoteAddr = "203.0.113.7:4242"
		rec = serve(mw, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third request, got %d", rec.Code)
	}
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After should be an integer: %v", err)
	}
	if retry < 1 || retry > 60 {
		t.Errorf("Retry-After out of the minute window: %d", retry)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
}

func TestMiddleware_KeysByIdentityOverIP(t *testing.T) {
	limiter := NewLimiter(1, 100)
	mw := Middleware(limiter, nil)

	// Same IP, two different identities: each gets its own bucket.
	for _, id := range []string{"user-1", "user-2"} {
		req := httptest.NewRequest("GET", "/v1/me", nil)
		req.RemoteAddr = "203.0.113.7:4242"
		req = req.WithContext(identity.ContextWithAuth(req.Context(), &identity.AuthContext{
			IdentityID: id,
			Kind:       identity.KindUser,
		}))
		if rec := serve(mw, req); rec.Code != http.StatusOK {
			t.Errorf("identity %s should have its own bucket, got %d", id, rec.Code)
		}
	}

	if stats := limiter.Stats("id:user-1"); stats.RequestsLastMinute != 1 {
		t.Errorf("expected 1 recorded request for id:user-1, got %d", stats.RequestsLastMinute)
	}
	if stats := limiter.Stats("ip:203.0.113.7"); stats.RequestsLastMinute != 0 {
		t.Errorf("authenticated requests must not count against the IP bucket, got %d", stats.RequestsLastMinute)
	}
}

func TestMiddleware_DeniedAttemptNotRecorded(t *testing.T) {
	limiter := NewLimiter(1, 100)
	mw := Middleware(limiter, nil)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/v1/me", nil)
		req.RemoteAddr = "203.0.113.7:4242"
		serve(mw, req)
	}

	if stats := limiter.Stats("ip:203.0.113.7"); stats.RequestsLastMinute != 1 {
		t.Errorf("denied attempts must not extend the window, got %d recorded", stats.RequestsLastMinute)
	}
}

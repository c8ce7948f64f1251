package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/castellan-api/castellan/internal/token"
)

func authedHandler(t *testing.T, got **AuthContext) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := AuthFromContext(r.Context())
		if !ok {
			t.Error("handler reached without auth context")
		}
		*got = ac
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_NoCredentials(t *testing.T) {
	f := newFixture(t)
	var got *AuthContext
	h := Middleware(f.resolver, nil)(authedHandler(t, &got))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body should be JSON: %v", err)
	}
	if body.Error.Code != "authentication_required" {
		t.Errorf("expected authentication_required code, got %q", body.Error.Code)
	}
}

func TestMiddleware_BearerToken(t *testing.T) {
	f := newFixture(t)
	var got *AuthContext
	h := Middleware(f.resolver, nil)(authedHandler(t, &got))

	tok, err := f.tokens.IssueAccess(token.UserClaims{UserID: "user-1", Role: "org_admin"})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got == nil || got.IdentityID != "user-1" || got.Role != RoleOrgAdmin {
		t.Errorf("unexpected context: %+v", got)
	}
}

func TestMiddleware_InvalidAPIKeyIs401(t *testing.T) {
	f := newFixture(t)
	var got *AuthContext
	h := Middleware(f.resolver, nil)(authedHandler(t, &got))

	req := httptest.NewRequest("GET", "/v1/me", nil)
	req.Header.Set(APIKeyHeader, "bogus-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "invalid_credential" {
		t.Errorf("presented-but-invalid credential must report invalid_credential, got %q", body.Error.Code)
	}
}

func TestMiddleware_StoreOutageIs503(t *testing.T) {
	f := newFixture(t)
	f.creds.keyErr = errTimeout{}
	var got *AuthContext
	h := Middleware(f.resolver, nil)(authedHandler(t, &got))

	req := httptest.NewRequest("GET", "/v1/me", nil)
	req.Header.Set(APIKeyHeader, "some-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("store outage must be 503, not an auth failure; got %d", rec.Code)
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "i/o timeout" }

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"", ""},
		{"Basic dXNlcjpwYXNz", ""},
		{"bearer abc123", ""}, // scheme is case-sensitive
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(req); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

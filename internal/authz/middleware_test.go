package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/castellan-api/castellan/internal/audit"
	"github.com/castellan-api/castellan/internal/identity"
)

type captureEmitter struct {
	decisions []audit.Decision
}

func (c *captureEmitter) Emit(_ context.Context, d audit.Decision) {
	c.decisions = append(c.decisions, d)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveWith(t *testing.T, mw func(http.Handler) http.Handler, ac *identity.AuthContext) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", "/admin", nil)
	if ac != nil {
		req = req.WithContext(identity.ContextWithAuth(req.Context(), ac))
	}
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)
	return rec
}

func TestRequireRoleMiddleware(t *testing.T) {
	emitter := &captureEmitter{}
	mw := RequireRoleMiddleware(emitter, identity.RolePlatformAdmin)

	rec := serveWith(t, mw, userCtx(identity.RolePlatformAdmin))
	if rec.Code != http.StatusOK {
		t.Errorf("platform admin should pass, got %d", rec.Code)
	}

	rec = serveWith(t, mw, userCtx(identity.RoleDeveloper))
	if rec.Code != http.StatusForbidden {
		t.Errorf("developer should get 403, got %d", rec.Code)
	}

	rec = serveWith(t, mw, clientCtx("admin:all"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("app client should get 403 on a role gate, got %d", rec.Code)
	}

	if len(emitter.decisions) != 3 {
		t.Fatalf("expected 3 audit decisions, got %d", len(emitter.decisions))
	}
	if emitter.decisions[0].Decision != "allowed" {
		t.Errorf("first decision should be allowed, got %q", emitter.decisions[0].Decision)
	}
	if emitter.decisions[1].Decision != "denied" || emitter.decisions[1].Reason == "" {
		t.Errorf("denied decision should carry a reason: %+v", emitter.decisions[1])
	}
}

func TestRequireRoleMiddleware_NoContext(t *testing.T) {
	mw := RequireRoleMiddleware(nil, identity.RolePlatformAdmin)

	rec := serveWith(t, mw, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing auth context is 401, not 403; got %d", rec.Code)
	}
}

func TestRequireScopesMiddleware(t *testing.T) {
	mw := RequireScopesMiddleware(nil, "payments:read", "payments:write")

	rec := serveWith(t, mw, clientCtx("payments:read", "payments:write", "extra:scope"))
	if rec.Code != http.StatusOK {
		t.Errorf("full scope set should pass, got %d", rec.Code)
	}

	rec = serveWith(t, mw, clientCtx("payments:read"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("missing scope should get 403, got %d", rec.Code)
	}
}

package authz

import (
	"errors"
	"net/http"

	"github.com/castellan-api/castellan/internal/audit"
	"github.com/castellan-api/castellan/internal/httputil"
	"github.com/castellan-api/castellan/internal/identity"
)

// RequireRoleMiddleware gates a route on user roles. It expects the
// identity middleware to have run first; a request with no resolved
// context is treated as unauthenticated, not forbidden.
func RequireRoleMiddleware(emitter audit.Emitter, allowed ...identity.Role) func(http.Handler) http.Handler {
	return guard("authz.require_role", emitter, func(ac *identity.AuthContext) error {
		return RequireRole(ac, allowed...)
	})
}

// RequireScopesMiddleware gates a route on scopes (ALL-of).
func RequireScopesMiddleware(emitter audit.Emitter, required ...string) func(http.Handler) http.Handler {
	return guard("authz.require_scopes", emitter, func(ac *identity.AuthContext) error {
		return RequireScopes(ac, required...)
	})
}

func guard(action string, emitter audit.Emitter, check func(*identity.AuthContext) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			ac, ok := identity.AuthFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthenticated(w, reqID, "Authentication required")
				return
			}

			err := check(ac)
			emit(emitter, r, action, ac, err)

			if err != nil {
				if errors.Is(err, identity.ErrUnauthenticated) {
					httputil.WriteUnauthenticated(w, reqID, "Authentication required")
					return
				}
				httputil.WriteForbidden(w, reqID, err.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func emit(emitter audit.Emitter, r *http.Request, action string, ac *identity.AuthContext, err error) {
	if emitter == nil {
		return
	}
	d := audit.Decision{
		Action:    action,
		Resource:  r.Method + " " + r.URL.Path,
		Decision:  "allowed",
		RequestID: r.Header.Get("X-Request-ID"),
	}
	if ac != nil {
		d.ActorID = ac.IdentityID
		d.ActorType = string(ac.Kind)
	} else {
		d.ActorType = "anonymous"
	}
	if err != nil {
		d.Decision = "denied"
		d.Reason = err.Error()
	}
	emitter.Emit(r.Context(), d)
}

// Package identity resolves raw request credentials into a unified
// AuthContext and carries it through the request context. Resolution tries
// bearer-token decoding first, then API-key lookup; the resulting context
// is a tagged variant that every consumer matches on explicitly.
package identity

import (
	"context"
	"sort"
)

// AuthType records which credential scheme produced a context.
type AuthType string

const (
	AuthTypeBearerUser        AuthType = "bearer_user"
	AuthTypeBearerOAuthClient AuthType = "bearer_oauth_client"
	AuthTypeAPIKey            AuthType = "api_key"
)

// Kind discriminates the two principal shapes.
type Kind string

const (
	KindUser      Kind = "user"
	KindAppClient Kind = "app_client"
)

// Role is the platform role carried by user identities. App clients never
// have a role; they carry scopes instead.
type Role string

const (
	RolePlatformAdmin Role = "platform_admin"
	RoleOrgAdmin      Role = "org_admin"
	RoleDeveloper     Role = "developer"
)

// ParseRole maps a raw claim value onto a recognized role. Unrecognized
// values are rejected, never passed through.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePlatformAdmin, RoleOrgAdmin, RoleDeveloper:
		return Role(s), true
	}
	return "", false
}

// AuthContext is the request-scoped result of identity resolution. It is
// never persisted. Kind==KindUser implies Role is set and Scopes may be
// empty; Kind==KindAppClient implies Role is empty and Scopes is the union
// of the client's currently approved grants.
type AuthContext struct {
	AuthType    AuthType
	IdentityID  string
	Kind        Kind
	Role        Role
	OrgID       string
	Email       string
	Scopes      []string
	AppClientID string
}

// HasScope reports whether the context carries the named scope.
func (a *AuthContext) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// HasAllScopes reports whether every required scope is present (ALL-of).
func (a *AuthContext) HasAllScopes(required []string) bool {
	for _, s := range required {
		if !a.HasScope(s) {
			return false
		}
	}
	return true
}

// normalizeScopes deduplicates and orders a scope set; order is never
// significant to consumers.
func normalizeScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type contextKey string

const authContextKey contextKey = "castellan_auth"

// ContextWithAuth returns a child context carrying the resolved identity.
func ContextWithAuth(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// AuthFromContext extracts the resolved identity, if any.
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(*AuthContext)
	return ac, ok
}

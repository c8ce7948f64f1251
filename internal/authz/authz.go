// Package authz evaluates a resolved AuthContext against the role or scope
// requirements of an operation. Checks are pure predicates over the
// context: roles gate user identities, scopes gate app clients, and the two
// are never interchangeable. Every check fails closed.
package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/castellan-api/castellan/internal/identity"
)

// ErrForbidden means the identity is authenticated but not allowed:
// insufficient role, missing scopes, or an identity-kind mismatch.
var ErrForbidden = errors.New("forbidden")

// RequireRole checks that the context is a user identity holding one of
// the allowed roles. An app-client context presented to a role-gated
// operation is rejected outright; scopes do not substitute for roles.
func RequireRole(ac *identity.AuthContext, allowed ...identity.Role) error {
	if ac == nil {
		return identity.ErrUnauthenticated
	}
	if ac.Kind != identity.KindUser {
		return fmt.Errorf("%w: user authentication required", ErrForbidden)
	}
	for _, role := range allowed {
		if ac.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: requires one of roles %v", ErrForbidden, allowed)
}

// RequireScopes checks that the context carries every required scope.
// ALL-of semantics: one missing scope denies the operation; there is no
// partial grant.
func RequireScopes(ac *identity.AuthContext, required ...string) error {
	if ac == nil {
		return identity.ErrUnauthenticated
	}
	var missing []string
	for _, s := range required {
		if !ac.HasScope(s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required scopes: %s", ErrForbidden, strings.Join(missing, " "))
	}
	return nil
}

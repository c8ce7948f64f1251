package identity

import (
	"context"
	"fmt"

	"github.com/castellan-api/castellan/internal/token"
)

// TokenPair is a freshly issued access+refresh pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// RefreshTokens exchanges a valid refresh token for a new access+refresh
// pair. The token must decode, be of type refresh, and carry the identity's
// current token version; the identity must still be active. Access tokens
// are never exchanged here; only a refresh token opens this path. The new
// pair carries the same token version, so bumping the version on the
// identity record invalidates every outstanding refresh token at once.
func (r *Resolver) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := r.tokens.Decode(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid or expired refresh token", ErrInvalidCredential)
	}
	if claims.Type != token.TypeRefresh {
		return nil, fmt.Errorf("%w: not a refresh token", ErrInvalidCredential)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}

	u, err := r.users.LookupUser(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup user: %v", ErrUpstreamUnavailable, err)
	}
	if u == nil || !u.IsActive {
		return nil, fmt.Errorf("%w: user not found or inactive", ErrInvalidCredential)
	}
	if claims.TokenVersion != u.TokenVersion {
		return nil, fmt.Errorf("%w: invalid or expired refresh token", ErrInvalidCredential)
	}

	uc := token.UserClaims{
		UserID:       u.ID,
		Email:        u.Email,
		Role:         u.Role,
		OrgID:        u.OrgID,
		TokenVersion: u.TokenVersion,
	}

	access, err := r.tokens.IssueAccess(uc)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := r.tokens.IssueRefresh(uc)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

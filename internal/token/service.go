// Package token issues and validates the signed, time-bounded claim sets
// used by the gateway: user access tokens, user refresh tokens, and OAuth2
// client-credentials tokens. All three share one HS256 signing secret and
// are discriminated by an embedded type claim; a token of one type is never
// accepted where another is required.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type discriminates the three claim-set flavors.
type Type string

const (
	TypeAccess      Type = "access"
	TypeRefresh     Type = "refresh"
	TypeOAuthClient Type = "oauth_client"
)

// Default TTLs, overridable via Config.
const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultOAuthTTL   = 900 * time.Second
)

// ErrRejected is returned by Decode for any token that cannot be accepted:
// bad signature, expired, malformed, or unknown type. Callers decide whether
// rejection means "try another scheme" or "hard fail".
var ErrRejected = errors.New("token rejected")

// Claims is the claim set carried by every gateway token. Role, OrgID and
// Email are populated for user tokens; Scopes for OAuth client tokens;
// TokenVersion for user tokens (checked on refresh to allow bulk
// revocation).
type Claims struct {
	Type         Type     `json:"type"`
	Role         string   `json:"role,omitempty"`
	OrgID        string   `json:"org_id,omitempty"`
	Email        string   `json:"email,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	TokenVersion int      `json:"tv"`
	jwt.RegisteredClaims
}

// UserClaims is the caller-supplied identity payload for user tokens.
type UserClaims struct {
	UserID       string
	Email        string
	Role         string
	OrgID        string
	TokenVersion int
}

// Config holds the signing secret and TTLs for the service.
type Config struct {
	SigningSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	OAuthTTL      time.Duration
}

// Service issues and decodes tokens. Operations are pure over the signing
// secret and need no synchronization.
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	oauthTTL   time.Duration
	now        func() time.Time
}

// NewService creates a token service. The signing secret is required; token
// validity must never silently depend on a generated default.
func NewService(cfg Config) (*Service, error) {
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("token signing secret must be set")
	}
	s := &Service{
		secret:     []byte(cfg.SigningSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		oauthTTL:   cfg.OAuthTTL,
		now:        time.Now,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = DefaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTTL
	}
	if s.oauthTTL <= 0 {
		s.oauthTTL = DefaultOAuthTTL
	}
	return s, nil
}

// IssueAccess issues a user access token.
func (s *Service) IssueAccess(u UserClaims) (string, error) {
	return s.issue(&Claims{
		Type:         TypeAccess,
		Role:         u.Role,
		OrgID:        u.OrgID,
		Email:        u.Email,
		TokenVersion: u.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: u.UserID,
		},
	}, s.accessTTL)
}

// IssueRefresh issues a user refresh token carrying the identity's current
// token version.
func (s *Service) IssueRefresh(u UserClaims) (string, error) {
	return s.issue(&Claims{
		Type:         TypeRefresh,
		Role:         u.Role,
		OrgID:        u.OrgID,
		Email:        u.Email,
		TokenVersion: u.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: u.UserID,
		},
	}, s.refreshTTL)
}

// IssueOAuth issues an OAuth client-credentials token embedding the scopes
// authorized at issuance time. Scopes are fixed for the token's lifetime; a
// later-approved grant never widens an already-issued token.
func (s *Service) IssueOAuth(clientID string, scopes []string) (string, error) {
	return s.issue(&Claims{
		Type:   TypeOAuthClient,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: clientID,
		},
	}, s.oauthTTL)
}

// OAuthTTL reports the configured client-token lifetime (for expires_in).
func (s *Service) OAuthTTL() time.Duration { return s.oauthTTL }

func (s *Service) issue(claims *Claims, ttl time.Duration) (string, error) {
	now := s.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Type, err)
	}
	return signed, nil
}

// Decode verifies signature and expiry and returns the claim set. Every
// failure mode collapses into ErrRejected; decode errors never escape as
// anything the caller must inspect beyond the sentinel.
func (s *Service) Decode(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	switch claims.Type {
	case TypeAccess, TypeRefresh, TypeOAuthClient:
	default:
		return nil, fmt.Errorf("%w: unknown token type %q", ErrRejected, claims.Type)
	}
	return claims, nil
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/castellan-api/castellan/internal/credential"
	"github.com/castellan-api/castellan/internal/token"
)

// Resolution failures. Every check fails closed; ambiguity is denial.
var (
	// ErrUnauthenticated means no usable credential was presented.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrInvalidCredential means a credential was presented but is
	// malformed, expired, revoked or inactive. Never collapsed into
	// ErrUnauthenticated: "bad credential" and "no credential" are
	// different answers.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrUpstreamUnavailable means a collaborator (credential store,
	// scope source) failed. Surfaced distinctly so a store outage is
	// never reported as an authentication failure.
	ErrUpstreamUnavailable = errors.New("auth store unavailable")
)

// APIKeyRecord is the credential store's view of one API key.
type APIKeyRecord struct {
	ID        string
	ClientID  string
	Prefix    string
	IsActive  bool
	ExpiresAt *time.Time
}

// ClientRecord is the credential store's view of an owning app client.
type ClientRecord struct {
	ID       string
	OrgID    string
	IsActive bool
}

// UserRecord is the user source's view of a human identity, used by the
// refresh flow to re-validate liveness and token version.
type UserRecord struct {
	ID           string
	Email        string
	Role         string
	OrgID        string
	IsActive     bool
	TokenVersion int
}

// CredentialStore is the external credential-lookup collaborator. A nil
// record with a nil error means "not found".
type CredentialStore interface {
	LookupAPIKey(ctx context.Context, keyHash string) (*APIKeyRecord, error)
	LookupClient(ctx context.Context, clientID string) (*ClientRecord, error)
	// TouchAPIKey updates last_used_at. Best-effort: failures are logged
	// and swallowed by the resolver.
	TouchAPIKey(ctx context.Context, keyID string) error
}

// ScopeSource is the external scopes-grant collaborator: the union of
// scope names across a client's currently approved grants.
type ScopeSource interface {
	GrantedScopes(ctx context.Context, clientID string) ([]string, error)
}

// UserSource looks up user identities for the refresh flow.
type UserSource interface {
	LookupUser(ctx context.Context, userID string) (*UserRecord, error)
}

// Resolver turns raw request credentials into an AuthContext. All
// collaborators are injected explicitly; the resolver holds no global
// state.
type Resolver struct {
	tokens *token.Service
	codec  *credential.Codec
	creds  CredentialStore
	scopes ScopeSource
	users  UserSource
	logger *slog.Logger
	now    func() time.Time
}

func NewResolver(tokens *token.Service, codec *credential.Codec, creds CredentialStore, scopes ScopeSource, users UserSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		tokens: tokens,
		codec:  codec,
		creds:  creds,
		scopes: scopes,
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// Resolve produces an AuthContext from the presented credentials. A bearer
// token that decodes to an access or oauth_client claim set wins outright;
// a bearer token that is absent, expired, tampered or of the wrong type
// falls through to API-key resolution. A presented-but-invalid API key is a
// hard failure, never a silent fallback. With no usable credential the
// caller gets ErrUnauthenticated and must not proceed.
func (r *Resolver) Resolve(ctx context.Context, bearerToken, apiKey string) (*AuthContext, error) {
	if bearerToken != "" {
		if ac := r.resolveBearer(bearerToken); ac != nil {
			return ac, nil
		}
	}

	if apiKey != "" {
		return r.resolveAPIKey(ctx, apiKey)
	}

	return nil, ErrUnauthenticated
}

// resolveBearer returns nil (fall through) on any rejection: the bearer
// scheme is optional evidence until it decodes cleanly.
func (r *Resolver) resolveBearer(bearerToken string) *AuthContext {
	claims, err := r.tokens.Decode(bearerToken)
	if err != nil {
		return nil
	}

	switch claims.Type {
	case token.TypeOAuthClient:
		if claims.Subject == "" {
			return nil
		}
		return &AuthContext{
			AuthType:    AuthTypeBearerOAuthClient,
			IdentityID:  claims.Subject,
			Kind:        KindAppClient,
			Scopes:      normalizeScopes(claims.Scopes),
			AppClientID: claims.Subject,
		}

	case token.TypeAccess:
		if claims.Subject == "" {
			return nil
		}
		role, ok := ParseRole(claims.Role)
		if !ok {
			return nil
		}
		return &AuthContext{
			AuthType:   AuthTypeBearerUser,
			IdentityID: claims.Subject,
			Kind:       KindUser,
			Role:       role,
			OrgID:      claims.OrgID,
			Email:      claims.Email,
		}
	}

	// Refresh tokens are never accepted as request credentials.
	return nil
}

func (r *Resolver) resolveAPIKey(ctx context.Context, apiKey string) (*AuthContext, error) {
	keyHash := r.codec.Hash(apiKey)

	rec, err := r.creds.LookupAPIKey(ctx, keyHash)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup api key: %v", ErrUpstreamUnavailable, err)
	}
	if rec == nil {
		r.logger.Warn("auth failed: unknown api key", "key_prefix", credential.SafePrefix(apiKey))
		return nil, fmt.Errorf("%w: unknown API key", ErrInvalidCredential)
	}
	if !rec.IsActive {
		return nil, fmt.Errorf("%w: API key is revoked", ErrInvalidCredential)
	}
	if rec.ExpiresAt != nil && rec.ExpiresAt.Before(r.now()) {
		return nil, fmt.Errorf("%w: API key has expired", ErrInvalidCredential)
	}

	client, err := r.creds.LookupClient(ctx, rec.ClientID)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup client: %v", ErrUpstreamUnavailable, err)
	}
	if client == nil || !client.IsActive {
		return nil, fmt.Errorf("%w: app client is inactive", ErrInvalidCredential)
	}

	scopes, err := r.scopes.GrantedScopes(ctx, client.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: granted scopes: %v", ErrUpstreamUnavailable, err)
	}

	if err := r.creds.TouchAPIKey(ctx, rec.ID); err != nil {
		r.logger.Warn("failed to update api key last_used_at", "key_id", rec.ID, "error", err)
	}

	return &AuthContext{
		AuthType:    AuthTypeAPIKey,
		IdentityID:  rec.ID,
		Kind:        KindAppClient,
		OrgID:       client.OrgID,
		Scopes:      normalizeScopes(scopes),
		AppClientID: client.ID,
	}, nil
}

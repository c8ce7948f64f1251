// Package store is the Postgres-backed implementation of the core's
// external collaborators: credential lookup, scope grants, OAuth clients
// and users. A Redis cache in front of API-key lookups keeps the hot path
// off the database; revocation invalidates the cached entry so a revoked
// key fails on the very next resolution.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/castellan-api/castellan/internal/credential"
	"github.com/castellan-api/castellan/internal/identity"
	"github.com/castellan-api/castellan/internal/oauth"
)

const (
	redisCacheTTL  = 5 * time.Minute
	redisKeyPrefix = "castellan:key:"
)

// Store implements identity.CredentialStore, identity.ScopeSource,
// identity.UserSource and oauth.ClientStore over PostgreSQL, with an
// optional Redis cache for API-key metadata.
type Store struct {
	db     *pgxpool.Pool
	redis  *redis.Client
	codec  *credential.Codec
	logger *slog.Logger
}

func NewStore(db *pgxpool.Pool, rdb *redis.Client, codec *credential.Codec, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, redis: rdb, codec: codec, logger: logger}
}

// cachedKey is the Redis representation of an API-key record.
type cachedKey struct {
	ID        string     `json:"id"`
	ClientID  string     `json:"client_id"`
	Prefix    string     `json:"prefix"`
	IsActive  bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// LookupAPIKey resolves a key hash to its record. Returns (nil, nil) when
// no key matches. Active records are cached; revocation and rotation
// invalidate the cache entry.
func (s *Store) LookupAPIKey(ctx context.Context, keyHash string) (*identity.APIKeyRecord, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+keyHash).Bytes()
		if err == nil {
			var ck cachedKey
			if err := json.Unmarshal(cached, &ck); err == nil {
				return &identity.APIKeyRecord{
					ID:        ck.ID,
					ClientID:  ck.ClientID,
					Prefix:    ck.Prefix,
					IsActive:  ck.IsActive,
					ExpiresAt: ck.ExpiresAt,
				}, nil
			}
		}
	}

	rec, err := s.lookupAPIKeyDB(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	if s.redis != nil && rec.IsActive {
		data, err := json.Marshal(cachedKey{
			ID:        rec.ID,
			ClientID:  rec.ClientID,
			Prefix:    rec.Prefix,
			IsActive:  rec.IsActive,
			ExpiresAt: rec.ExpiresAt,
		})
		if err == nil {
			s.redis.Set(ctx, redisKeyPrefix+keyHash, data, redisCacheTTL)
		}
	}

	return rec, nil
}

func (s *Store) lookupAPIKeyDB(ctx context.Context, keyHash string) (*identity.APIKeyRecord, error) {
	var rec identity.APIKeyRecord
	err := s.db.QueryRow(ctx, `
		SELECT id, app_client_id, key_prefix, is_active, expires_at
		FROM api_keys
		WHERE key_hash = $1
	`, keyHash).Scan(&rec.ID, &rec.ClientID, &rec.Prefix, &rec.IsActive, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query api_keys: %w", err)
	}
	return &rec, nil
}

// LookupClient resolves an app client by internal id. Returns (nil, nil)
// when no client matches.
func (s *Store) LookupClient(ctx context.Context, clientID string) (*identity.ClientRecord, error) {
	var rec identity.ClientRecord
	err := s.db.QueryRow(ctx, `
		SELECT id, org_id, is_active
		FROM app_clients
		WHERE id = $1
	`, clientID).Scan(&rec.ID, &rec.OrgID, &rec.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query app_clients: %w", err)
	}
	return &rec, nil
}

// TouchAPIKey updates last_used_at. Advisory only; callers swallow errors.
func (s *Store) TouchAPIKey(ctx context.Context, keyID string) error {
	_, err := s.db.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("update api_keys.last_used_at: %w", err)
	}
	return nil
}

// GrantedScopes returns the union of scope names across the client's
// approved subscriptions. Pending, denied and revoked subscriptions
// contribute nothing.
func (s *Store) GrantedScopes(ctx context.Context, clientID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT granted_scopes
		FROM subscriptions
		WHERE app_client_id = $1
		  AND status = 'approved'
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var all []string
	for rows.Next() {
		var scopes []string
		if err := rows.Scan(&scopes); err != nil {
			return nil, fmt.Errorf("scan granted_scopes: %w", err)
		}
		all = append(all, scopes...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return all, nil
}

// LookupOAuthClient resolves an app client by its public OAuth client_id.
// Returns (nil, nil) when no client matches.
func (s *Store) LookupOAuthClient(ctx context.Context, publicClientID string) (*oauth.ClientRecord, error) {
	var rec oauth.ClientRecord
	err := s.db.QueryRow(ctx, `
		SELECT id, oauth_client_id, client_secret_hash, org_id, is_active
		FROM app_clients
		WHERE oauth_client_id = $1
	`, publicClientID).Scan(&rec.ID, &rec.ClientID, &rec.SecretHash, &rec.OrgID, &rec.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query app_clients by oauth id: %w", err)
	}
	return &rec, nil
}

// LookupUser resolves a user identity for the refresh flow. Returns
// (nil, nil) when no user matches.
func (s *Store) LookupUser(ctx context.Context, userID string) (*identity.UserRecord, error) {
	var rec identity.UserRecord
	err := s.db.QueryRow(ctx, `
		SELECT id, email, role, COALESCE(org_id::text, ''), is_active, token_version
		FROM users
		WHERE id = $1
	`, userID).Scan(&rec.ID, &rec.Email, &rec.Role, &rec.OrgID, &rec.IsActive, &rec.TokenVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query users: %w", err)
	}
	return &rec, nil
}

// invalidateKeyCache drops the cached entry for a key hash.
func (s *Store) invalidateKeyCache(ctx context.Context, keyHash string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, redisKeyPrefix+keyHash).Err(); err != nil {
		s.logger.Warn("failed to invalidate api key cache", "error", err)
	}
}

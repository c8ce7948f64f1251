package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned by lifecycle operations targeting a record that
// does not exist.
var ErrNotFound = errors.New("record not found")

// IssuedKey is the one-time result of API key issuance. Plaintext is
// returned here and never retained or recoverable afterwards.
type IssuedKey struct {
	ID        string
	Plaintext string
	Prefix    string
	ExpiresAt *time.Time
}

// IssueAPIKey mints a new API key for an app client. A zero expiresIn
// issues a non-expiring key.
func (s *Store) IssueAPIKey(ctx context.Context, clientID, name string, expiresIn time.Duration) (*IssuedKey, error) {
	plaintext, prefix, hash, err := s.codec.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	var expiresAt *time.Time
	if expiresIn > 0 {
		t := time.Now().Add(expiresIn)
		expiresAt = &t
	}

	var keyID string
	err = s.db.QueryRow(ctx, `
		INSERT INTO api_keys (app_client_id, key_hash, key_prefix, name, is_active, expires_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		RETURNING id
	`, clientID, hash, prefix, name, expiresAt).Scan(&keyID)
	if err != nil {
		return nil, fmt.Errorf("insert api_key: %w", err)
	}

	return &IssuedKey{
		ID:        keyID,
		Plaintext: plaintext,
		Prefix:    prefix,
		ExpiresAt: expiresAt,
	}, nil
}

// RevokeAPIKey deactivates a key and records who revoked it. The cached
// lookup entry is invalidated so the next resolution attempt sees the
// revocation immediately.
func (s *Store) RevokeAPIKey(ctx context.Context, keyID, revokedBy string) error {
	var keyHash string
	err := s.db.QueryRow(ctx, `
		UPDATE api_keys
		SET is_active = FALSE, revoked_at = NOW(), revoked_by = $2
		WHERE id = $1
		RETURNING key_hash
	`, keyID, revokedBy).Scan(&keyHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: api key %s", ErrNotFound, keyID)
		}
		return fmt.Errorf("revoke api_key: %w", err)
	}

	s.invalidateKeyCache(ctx, keyHash)
	return nil
}

// RotateClientSecret replaces an OAuth client's secret and returns the new
// plaintext exactly once. Outstanding tokens stay valid until expiry; only
// new token requests need the new secret.
func (s *Store) RotateClientSecret(ctx context.Context, clientID string) (string, error) {
	plaintext, _, hash, err := s.codec.Generate()
	if err != nil {
		return "", fmt.Errorf("generate client secret: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE app_clients
		SET client_secret_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, clientID, hash)
	if err != nil {
		return "", fmt.Errorf("rotate client secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("%w: app client %s", ErrNotFound, clientID)
	}

	return plaintext, nil
}

// BumpTokenVersion increments a user's token version, invalidating every
// outstanding refresh token for that user in one write.
func (s *Store) BumpTokenVersion(ctx context.Context, userID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET token_version = token_version + 1 WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("bump token_version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return nil
}

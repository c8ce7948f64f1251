package credential

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// secretBytes is the entropy of a generated secret (256 bits).
	secretBytes = 32
	// PrefixLength is how many plaintext characters are kept as the
	// display/lookup prefix. The prefix carries negligible entropy and is
	// safe to store and show.
	PrefixLength = 8
)

// Codec generates and verifies API keys and OAuth client secrets using a
// keyed hash over a server-held secret. Hashing is deterministic, so the
// hash doubles as a unique database lookup key; the inputs are
// machine-generated high-entropy strings, so a slow password hash is not
// needed.
type Codec struct {
	hashSecret []byte
}

// NewCodec creates a codec keyed with hashSecret.
func NewCodec(hashSecret []byte) (*Codec, error) {
	if len(hashSecret) == 0 {
		return nil, fmt.Errorf("credential hash secret must not be empty")
	}
	return &Codec{hashSecret: hashSecret}, nil
}

// Generate creates a new secret from a cryptographically secure source.
// It returns the URL-safe plaintext (shown to the caller exactly once),
// its display prefix, and the keyed hash to store. The codec retains none
// of them.
func (c *Codec) Generate() (plaintext, prefix, hash string, err error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", fmt.Errorf("generate random: %w", err)
	}
	plaintext = base64.RawURLEncoding.EncodeToString(b)
	return plaintext, Prefix(plaintext), c.Hash(plaintext), nil
}

// Hash returns the hex-encoded HMAC-SHA256 digest of plaintext.
func (c *Codec) Hash(plaintext string) string {
	mac := hmac.New(sha256.New, c.hashSecret)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether plaintext hashes to storedHash. The comparison is
// constant-time.
func (c *Codec) Verify(plaintext, storedHash string) bool {
	if plaintext == "" || storedHash == "" {
		return false
	}
	computed := c.Hash(plaintext)
	return hmac.Equal([]byte(computed), []byte(storedHash))
}

// Prefix truncates a plaintext secret to its display prefix.
func Prefix(plaintext string) string {
	if len(plaintext) < PrefixLength {
		return plaintext
	}
	return plaintext[:PrefixLength]
}

// SafePrefix returns a safe-to-log form of a presented secret (never the
// full value).
func SafePrefix(plaintext string) string {
	if len(plaintext) > PrefixLength {
		return plaintext[:PrefixLength] + "..."
	}
	return plaintext
}

// ParseDuration parses a duration string like "365d", "30d", "24h".
func ParseDuration(s string) (time.Duration, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty duration")
	}
	last := s[len(s)-1]
	if last == 'd' {
		var days int
		_, err := fmt.Sscanf(s, "%dd", &days)
		if err != nil {
			return 0, fmt.Errorf("parse days: %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

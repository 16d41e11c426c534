// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token secret configuration.
const (
	// TokenSecretBytes is the entropy of the opaque secret. 32 bytes = 64 hex chars.
	TokenSecretBytes = 32

	// TokenLifetime is the fixed validity window of a session token.
	TokenLifetime = 8 * time.Hour
)

// Token represents a session token record. The opaque secret handed to the
// client is never stored; only its SHA-256 hash is. The row ID is never exposed
// to clients.
type Token struct {
	ID         ulid.ULID
	UserID     ulid.ULID
	SecretHash string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// IsExpired returns true if the token has expired.
func (t *Token) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the token would be expired at the given time.
// The boundary instant counts as expired: a token is valid strictly before
// ExpiresAt.
func (t *Token) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Issuer mints session tokens with a fixed lifetime.
type Issuer struct {
	lifetime time.Duration
}

// NewIssuer creates an Issuer. A non-positive lifetime falls back to
// TokenLifetime.
func NewIssuer(lifetime time.Duration) *Issuer {
	if lifetime <= 0 {
		lifetime = TokenLifetime
	}
	return &Issuer{lifetime: lifetime}
}

// Issue mints a token for the given user.
// Returns (plaintext_secret, token, error). The plaintext secret is sent to the
// client; the token carries only the hash for storage.
func (i *Issuer) Issue(userID ulid.ULID) (string, *Token, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return "", nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}

	secretBytes := make([]byte, TokenSecretBytes)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenSecretBytes).
			Wrap(err)
	}

	secret := hex.EncodeToString(secretBytes)
	issuedAt := time.Now()
	token := &Token{
		ID:         ulid.Make(),
		UserID:     userID,
		SecretHash: HashTokenSecret(secret),
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(i.lifetime),
	}
	return secret, token, nil
}

// Lifetime returns the configured token lifetime.
func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}

// HashTokenSecret computes the SHA-256 hash of a token secret.
// This is used to securely store secrets in the database.
func HashTokenSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// VerifyTokenSecret checks if the plaintext secret matches the stored hash.
// Uses constant-time comparison to prevent timing attacks.
func VerifyTokenSecret(secret, hash string) (bool, error) {
	if secret == "" {
		return false, oops.Code("TOKEN_SECRET_EMPTY").Errorf("token secret cannot be empty")
	}
	if hash == "" {
		return false, oops.Code("TOKEN_HASH_EMPTY").Errorf("stored hash cannot be empty")
	}
	computed := HashTokenSecret(secret)
	// Both are hex-encoded SHA-256 hashes (64 chars), use constant-time compare
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}

// TokenRepository manages session token persistence.
type TokenRepository interface {
	// Save upserts the token slot for token.UserID. A user holds at most one
	// token; saving over an existing slot replaces its secret and timestamps
	// in place, invalidating the previous session.
	Save(ctx context.Context, token *Token) error

	// GetBySecretHash retrieves a token by the hash of its opaque secret.
	GetBySecretHash(ctx context.Context, secretHash string) (*Token, error)

	// DeleteByUser removes the token slot for a user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpired removes all expired tokens and returns the count of
	// deleted records.
	DeleteExpired(ctx context.Context) (int64, error)
}

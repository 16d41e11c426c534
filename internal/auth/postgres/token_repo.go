// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cardkeep/cardkeep/internal/auth"
)

// TokenRepository implements auth.TokenRepository using PostgreSQL.
//
// The auth_tokens table carries a UNIQUE constraint on user_id, so a user
// holds at most one token row. Save upserts on that constraint, making the
// replace-on-reauthenticate atomic even under concurrent logins.
type TokenRepository struct {
	pool DBPool
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(pool DBPool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Save upserts the token slot for token.UserID. An existing row for the user
// is overwritten in place, invalidating whatever secret it held.
func (r *TokenRepository) Save(ctx context.Context, token *auth.Token) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_tokens (id, user_id, secret_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			secret_hash = EXCLUDED.secret_hash,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at
	`,
		token.ID.String(),
		token.UserID.String(),
		token.SecretHash,
		token.IssuedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return oops.Code("TOKEN_SAVE_FAILED").
			With("operation", "upsert auth_token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetBySecretHash retrieves a token by the hash of its opaque secret. The
// lookup hits the unique index on secret_hash.
func (r *TokenRepository) GetBySecretHash(ctx context.Context, secretHash string) (*auth.Token, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, secret_hash, issued_at, expires_at
		FROM auth_tokens
		WHERE secret_hash = $1
	`, secretHash)

	token, err := r.scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_BY_HASH_FAILED").
			With("operation", "get token by secret hash").
			Wrap(err)
	}
	return token, nil
}

// DeleteByUser removes the token slot for a user. Deleting a user with no
// token is a valid state, not an error.
func (r *TokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM auth_tokens WHERE user_id = $1
	`, userID.String())
	if err != nil {
		return oops.Code("TOKEN_DELETE_BY_USER_FAILED").
			With("operation", "delete auth_tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes all expired tokens and returns the count. A token at
// its exact expiry instant counts as expired.
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM auth_tokens WHERE expires_at <= $1
	`, time.Now())
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired auth_tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanToken scans a single row into a Token.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *TokenRepository) scanToken(row pgx.Row) (*auth.Token, error) {
	var (
		idStr      string
		userIDStr  string
		secretHash string
		issuedAt   time.Time
		expiresAt  time.Time
	)

	err := row.Scan(&idStr, &userIDStr, &secretHash, &issuedAt, &expiresAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("TOKEN_SCAN_FAILED").
			With("operation", "scan auth_token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").
			With("operation", "parse token id").
			With("id", idStr).
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").
			With("operation", "parse token user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.Token{
		ID:         id,
		UserID:     userID,
		SecretHash: secretHash,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenRepository)(nil)

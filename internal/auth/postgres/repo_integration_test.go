// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardkeep/cardkeep/internal/auth"
	"github.com/cardkeep/cardkeep/internal/auth/postgres"
)

// createTestUserRow inserts a user and registers cleanup.
func createTestUserRow(ctx context.Context, t *testing.T, username string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(username, "$argon2id$v=19$m=65536,t=1,p=4$salt$hash")
	require.NoError(t, err)

	repo := postgres.NewUserRepository(testPool)
	require.NoError(t, repo.Create(ctx, user))

	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
	})
	return user
}

func TestUserRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	t.Run("create and get by username is case-insensitive", func(t *testing.T) {
		user := createTestUserRow(ctx, t, "moiraine")

		got, err := repo.GetByUsername(ctx, "MOIRAINE")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, "moiraine", got.Username)
	})

	t.Run("duplicate username maps to already exists", func(t *testing.T) {
		createTestUserRow(ctx, t, "duplicate_user")

		dup, err := auth.NewUser("Duplicate_User", "$argon2id$v=19$m=65536,t=1,p=4$salt$hash")
		require.NoError(t, err)

		err = repo.Create(ctx, dup)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "USER_ALREADY_EXISTS")
	})

	t.Run("update persists lockout state", func(t *testing.T) {
		user := createTestUserRow(ctx, t, "lockout_user")

		lockout := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Microsecond)
		user.FailedAttempts = 7
		user.LockedUntil = &lockout
		user.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

		require.NoError(t, repo.Update(ctx, user))

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.FailedAttempts)
		require.NotNil(t, got.LockedUntil)
		assert.Equal(t, lockout, got.LockedUntil.UTC())
	})

	t.Run("get missing user is not found", func(t *testing.T) {
		_, err := repo.GetByUsername(ctx, "never_registered")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete removes user", func(t *testing.T) {
		user := createTestUserRow(ctx, t, "deleted_user")

		require.NoError(t, repo.Delete(ctx, user.ID))

		_, err := repo.GetByID(ctx, user.ID)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestTokenRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewTokenRepository(testPool)
	issuer := auth.NewIssuer(auth.TokenLifetime)

	issueFor := func(t *testing.T, userID ulid.ULID) (string, *auth.Token) {
		t.Helper()
		secret, token, err := issuer.Issue(userID)
		require.NoError(t, err)
		return secret, token
	}

	t.Run("save and lookup by secret hash", func(t *testing.T) {
		user := createTestUserRow(ctx, t, "token_user")
		secret, token := issueFor(t, user.ID)

		require.NoError(t, repo.Save(ctx, token))

		got, err := repo.GetBySecretHash(ctx, auth.HashTokenSecret(secret))
		require.NoError(t, err)
		assert.Equal(t, token.ID, got.ID)
		assert.Equal(t, user.ID, got.UserID)
		assert.False(t, got.IsExpired())
	})

	t.Run("second save for same user overwrites the slot", func(t *testing.T) {
		user := createTestUserRow(ctx, t, "token_overwrite_user")

		firstSecret, firstToken := issueFor(t, user.ID)
		require.NoError(t, repo.Save(ctx, firstToken))

		secondSecret, secondToken := issueFor(t, user.ID)
		require.NoError(t, repo.Save(ctx, secondToken))

		// Old secret no longer resolves.
		_, err := repo.GetBySecretHash(ctx, auth.HashTokenSecret(firstSecret))
		assert.ErrorIs(t, err, auth.ErrNotFound)

		got, err := repo.GetBySecretHash(ctx, auth.HashTokenSecret(secondSecret))
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.UserID)

		// Still exactly one row for the user.
		var count int
		err = testPool.QueryRow(ctx,
			`SELECT COUNT(*) FROM auth_tokens WHERE user_id = $1`, user.ID.String()).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("delete by user removes the slot", func(t *testing.T) {
		user := createTestUserRow(ctx, t, "token_delete_user")
		secret, token := issueFor(t, user.ID)
		require.NoError(t, repo.Save(ctx, token))

		require.NoError(t, repo.DeleteByUser(ctx, user.ID))

		_, err := repo.GetBySecretHash(ctx, auth.HashTokenSecret(secret))
		assert.ErrorIs(t, err, auth.ErrNotFound)

		// Deleting again is still fine.
		require.NoError(t, repo.DeleteByUser(ctx, user.ID))
	})

	t.Run("deleting user cascades to token", func(t *testing.T) {
		user := createTestUserRow(ctx, t, "token_cascade_user")
		secret, token := issueFor(t, user.ID)
		require.NoError(t, repo.Save(ctx, token))

		userRepo := postgres.NewUserRepository(testPool)
		require.NoError(t, userRepo.Delete(ctx, user.ID))

		_, err := repo.GetBySecretHash(ctx, auth.HashTokenSecret(secret))
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete expired removes stale tokens only", func(t *testing.T) {
		liveUser := createTestUserRow(ctx, t, "token_live_user")
		staleUser := createTestUserRow(ctx, t, "token_stale_user")

		liveSecret, liveToken := issueFor(t, liveUser.ID)
		require.NoError(t, repo.Save(ctx, liveToken))

		_, staleToken := issueFor(t, staleUser.ID)
		staleToken.IssuedAt = time.Now().Add(-2 * auth.TokenLifetime)
		staleToken.ExpiresAt = time.Now().Add(-auth.TokenLifetime)
		require.NoError(t, repo.Save(ctx, staleToken))

		n, err := repo.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		_, err = repo.GetBySecretHash(ctx, staleToken.SecretHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)

		_, err = repo.GetBySecretHash(ctx, auth.HashTokenSecret(liveSecret))
		assert.NoError(t, err)
	})
}

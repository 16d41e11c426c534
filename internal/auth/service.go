// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/cardkeep/cardkeep/pkg/errutil"
)

// Service provides authentication operations. It holds no mutable state of its
// own; all state lives in the injected repositories.
type Service struct {
	users  UserRepository
	tokens TokenRepository
	hasher PasswordHasher
	issuer *Issuer
	logger *slog.Logger
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// NewService creates a new Service.
func NewService(users UserRepository, tokens TokenRepository, hasher PasswordHasher, issuer *Issuer) (*Service, error) {
	return NewServiceWithLogger(users, tokens, hasher, issuer, slog.Default())
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(users UserRepository, tokens TokenRepository, hasher PasswordHasher, issuer *Issuer, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("users repository is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("tokens repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if issuer == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token issuer is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger is required")
	}
	return &Service{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		issuer: issuer,
		logger: logger,
	}, nil
}

// invalidCredentials builds the single rejection every authentication failure
// collapses into. Unknown username, wrong password and storage faults are
// indistinguishable to the caller; storage faults reach operators through the
// log only.
func (s *Service) invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
}

// Authenticate verifies a username/password pair and issues a session token.
// Returns the persisted token and its plaintext secret - the only place in the
// system where the secret is disclosed.
//
// If the user already holds a token the slot is overwritten in place, which
// invalidates any outstanding session for that user.
// Uses constant-time operations to prevent timing-based username enumeration.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Token, string, error) {
	user, lookupErr := s.users.GetByUsername(ctx, username)

	// Determine which hash to verify against (real or dummy for timing attack prevention)
	var targetHash string
	var userExists bool

	if lookupErr != nil {
		if errors.Is(lookupErr, ErrNotFound) {
			// Use dummy hash - still perform verification to maintain constant time
			targetHash = dummyPasswordHash
			userExists = false
		} else {
			// Storage fault: fail closed. The operator sees the cause in the
			// log, the caller sees a plain credential rejection.
			errutil.LogError(s.logger, "authenticate: user lookup failed", lookupErr)
			targetHash = dummyPasswordHash
			userExists = false
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify password (constant-time operation for timing attack prevention).
	// A malformed stored hash verifies as a mismatch, never as a pass.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if userExists {
			errutil.LogError(s.logger, "authenticate: password verify failed", verifyErr)
		}
		valid = false
	}

	// If user doesn't exist OR password invalid, return same error
	if !userExists || !valid {
		if userExists {
			// Record failure only for existing users
			user.RecordFailure()
			_ = s.users.Update(ctx, user) //nolint:errcheck // Best effort
		}
		return nil, "", s.invalidCredentials()
	}

	// Check lockout and retry delay AFTER password verification to maintain
	// constant time. UpdatedAt marks the last failure while the counter is
	// non-zero, so the delay window is measured from it.
	limit := CheckFailures(user.FailedAttempts, user.LockedUntil)
	if limit.IsLockedOut {
		return nil, "", oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", user.LockedUntil).
			Errorf("account is temporarily locked")
	}
	if remaining := limit.Delay - time.Since(user.UpdatedAt); limit.Delay > 0 && remaining > 0 {
		return nil, "", oops.Code("AUTH_RETRY_DELAYED").
			With("retry_after", remaining).
			Errorf("too many failed attempts, retry later")
	}

	// Success - reset failure counter.
	// Ignore errors - login should succeed even if update fails.
	user.RecordSuccess()
	_ = s.users.Update(ctx, user) //nolint:errcheck // Best effort, login succeeds regardless

	secret, token, err := s.issuer.Issue(user.ID)
	if err != nil {
		errutil.LogError(s.logger, "authenticate: token issue failed", err)
		return nil, "", s.invalidCredentials()
	}

	if err := s.tokens.Save(ctx, token); err != nil {
		errutil.LogError(s.logger, "authenticate: token persist failed", err)
		return nil, "", s.invalidCredentials()
	}

	return token, secret, nil
}

// GetTokenBySecret retrieves a token by its opaque secret value.
// The lookup goes through the store's equality index on the secret hash, never
// through a linear string compare.
func (s *Service) GetTokenBySecret(ctx context.Context, secret string) (*Token, error) {
	if secret == "" {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(ErrNotFound)
	}

	token, err := s.tokens.GetBySecretHash(ctx, HashTokenSecret(secret))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(ErrNotFound)
		}
		return nil, oops.Code("TOKEN_LOOKUP_FAILED").
			With("operation", "get token by secret hash").
			Wrap(err)
	}
	return token, nil
}

// IsValid reports whether the token is currently valid. Pure predicate, safe to
// call repeatedly.
func (s *Service) IsValid(token *Token) bool {
	return token != nil && !token.IsExpired()
}

// ValidateSecret resolves a secret to its token and checks expiry. Used by the
// request gate; every failure collapses to an error the gate maps to a single
// unauthorized response.
func (s *Service) ValidateSecret(ctx context.Context, secret string) (*Token, error) {
	token, err := s.GetTokenBySecret(ctx, secret)
	if err != nil {
		return nil, err
	}
	if token.IsExpired() {
		return nil, oops.Code("TOKEN_EXPIRED").Errorf("session token has expired")
	}
	return token, nil
}

// Register creates a new user with a hashed password. Exposed for operator
// tooling; there is no self-service registration endpoint.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(username, hash)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

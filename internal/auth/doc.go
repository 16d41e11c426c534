// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

// Package auth provides the credential-to-session-token boundary for cardkeep.
//
// # Domain Types
//
// Domain types (User, Token) should be created using their constructors:
//   - NewUser - creates a User with a validated username and password hash
//   - Issuer.Issue - mints a Token with a fresh random secret and a fixed lifetime
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Service
//
// Service orchestrates the repositories, the password hasher and the token
// issuer. It deliberately collapses every authentication failure (unknown user,
// wrong password, storage fault) into a single AUTH_INVALID_CREDENTIALS error so
// the caller cannot enumerate usernames or probe backend state. Storage faults
// are still logged for operators.
//
// A user holds at most one token. Re-authentication overwrites the existing
// token slot with a fresh secret, invalidating any outstanding session.
package auth

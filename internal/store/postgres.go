// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

// Package store provides the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection retry configuration. The database frequently comes up a few
// seconds after the service in container environments.
const (
	connectBaseDelay  = 500 * time.Millisecond
	connectMaxRetries = 5
)

// Store owns the pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	dsn  string
}

// Connect creates a connection pool and verifies connectivity, retrying with
// exponential backoff until the database answers or retries are exhausted.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("STORE_INVALID_DSN").
			With("operation", "parse pool config").
			Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "create connection pool").
			Wrap(err)
	}

	backoff := retry.WithMaxRetries(connectMaxRetries, retry.NewExponential(connectBaseDelay))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	}); err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "ping database").
			Wrap(err)
	}

	return &Store{pool: pool, dsn: dsn}, nil
}

// Pool exposes the underlying pgx pool for repository construction.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Migrate applies all pending schema migrations.
func (s *Store) Migrate() error {
	migrator, err := NewMigrator(s.dsn)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck // close error after successful Up is not actionable

	return migrator.Up()
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

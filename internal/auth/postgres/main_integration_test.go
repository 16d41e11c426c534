// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cardkeep/cardkeep/internal/store"
)

// testPool is shared by all repository integration tests. TestMain starts one
// container and migrates the schema once; individual tests clean up their rows.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runMain(m))
}

func runMain(m *testing.M) int {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("cardkeep_test"),
		tcpostgres.WithUsername("cardkeep"),
		tcpostgres.WithPassword("cardkeep"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres container: %v\n", err)
		return 1
	}
	defer func() { _ = container.Terminate(ctx) }()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "container connection string: %v\n", err)
		return 1
	}

	st, err := store.Connect(ctx, connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect store: %v\n", err)
		return 1
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}

	testPool = st.Pool()
	return m.Run()
}

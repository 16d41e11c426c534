// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardkeep/cardkeep/internal/catalog"
	"github.com/cardkeep/cardkeep/pkg/errutil"
)

var entryColumns = []string{"id", "name", "set_num", "num_in_set", "data", "created_at", "updated_at"}

func newRepoMock(t *testing.T) (pgxmock.PgxPoolIface, *catalog.PostgresRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, catalog.NewPostgresRepository(mock)
}

func entryRow(entry *catalog.Entry) *pgxmock.Rows {
	return pgxmock.NewRows(entryColumns).AddRow(
		entry.ID.String(), entry.Name, entry.SetNum, entry.NumInSet,
		entry.Data, entry.CreatedAt, entry.UpdatedAt,
	)
}

func testEntry(t *testing.T, name string, setNum, numInSet int) *catalog.Entry {
	t.Helper()
	entry, err := catalog.NewEntry(name, setNum, numInSet, json.RawMessage(`{"rarity":"rare"}`))
	require.NoError(t, err)
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)
	entry.UpdatedAt = entry.UpdatedAt.UTC().Truncate(time.Microsecond)
	return entry
}

func TestNewEntry(t *testing.T) {
	tests := []struct {
		name      string
		entryName string
		setNum    int
		numInSet  int
		wantErr   bool
	}{
		{name: "valid entry", entryName: "02-131_the_prophet", setNum: 2, numInSet: 131},
		{name: "empty name", entryName: "", setNum: 2, numInSet: 131, wantErr: true},
		{name: "set number below range", entryName: "x", setNum: -1, numInSet: 1, wantErr: true},
		{name: "set number above range", entryName: "x", setNum: 5, numInSet: 1, wantErr: true},
		{name: "zero position", entryName: "x", setNum: 0, numInSet: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := catalog.NewEntry(tt.entryName, tt.setNum, tt.numInSet, nil)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "CATALOG_INVALID_ENTRY")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.entryName, entry.Name)
			assert.JSONEq(t, `{}`, string(entry.Data), "nil data defaults to empty document")
		})
	}
}

func TestPostgresRepository_GetByName(t *testing.T) {
	ctx := context.Background()

	t.Run("returns entry", func(t *testing.T) {
		mock, repo := newRepoMock(t)
		entry := testEntry(t, "02-131_the_prophet", 2, 131)

		mock.ExpectQuery(`SELECT (.+) FROM catalog_entries`).
			WithArgs("02-131_the_prophet").
			WillReturnRows(entryRow(entry))

		got, err := repo.GetByName(ctx, "02-131_the_prophet")
		require.NoError(t, err)
		assert.Equal(t, entry.Name, got.Name)
		assert.Equal(t, 2, got.SetNum)
		assert.Equal(t, 131, got.NumInSet)
		assert.JSONEq(t, `{"rarity":"rare"}`, string(got.Data))
	})

	t.Run("unknown name is not found", func(t *testing.T) {
		mock, repo := newRepoMock(t)

		mock.ExpectQuery(`SELECT (.+) FROM catalog_entries`).
			WithArgs("99-000_nothing").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByName(ctx, "99-000_nothing")
		require.Error(t, err)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("wraps database errors", func(t *testing.T) {
		mock, repo := newRepoMock(t)

		mock.ExpectQuery(`SELECT (.+) FROM catalog_entries`).
			WithArgs("02-131_the_prophet").
			WillReturnError(errors.New("timeout"))

		_, err := repo.GetByName(ctx, "02-131_the_prophet")
		require.Error(t, err)
		assert.NotErrorIs(t, err, catalog.ErrNotFound)
		// The scan wraps the driver error first, so its code is what surfaces.
		errutil.AssertErrorCode(t, err, "CATALOG_SCAN_FAILED")
	})
}

func TestPostgresRepository_GetByNames(t *testing.T) {
	ctx := context.Background()

	t.Run("returns matching entries only", func(t *testing.T) {
		mock, repo := newRepoMock(t)
		first := testEntry(t, "01-001_rand_althor", 1, 1)
		second := testEntry(t, "02-131_the_prophet", 2, 131)

		names := []string{"01-001_rand_althor", "02-131_the_prophet", "99-000_bogus"}
		mock.ExpectQuery(`SELECT (.+) FROM catalog_entries`).
			WithArgs(names).
			WillReturnRows(pgxmock.NewRows(entryColumns).
				AddRow(first.ID.String(), first.Name, first.SetNum, first.NumInSet,
					first.Data, first.CreatedAt, first.UpdatedAt).
				AddRow(second.ID.String(), second.Name, second.SetNum, second.NumInSet,
					second.Data, second.CreatedAt, second.UpdatedAt))

		got, err := repo.GetByNames(ctx, names)
		require.NoError(t, err)
		require.Len(t, got, 2, "unknown names are ignored")
		assert.Equal(t, first.Name, got[0].Name)
		assert.Equal(t, second.Name, got[1].Name)
	})

	t.Run("empty input skips the query", func(t *testing.T) {
		_, repo := newRepoMock(t)

		got, err := repo.GetByNames(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestPostgresRepository_GetBySetPosition(t *testing.T) {
	ctx := context.Background()

	t.Run("returns entry at position", func(t *testing.T) {
		mock, repo := newRepoMock(t)
		entry := testEntry(t, "02-131_the_prophet", 2, 131)

		mock.ExpectQuery(`SELECT (.+) FROM catalog_entries`).
			WithArgs(2, 131).
			WillReturnRows(entryRow(entry))

		got, err := repo.GetBySetPosition(ctx, 2, 131)
		require.NoError(t, err)
		assert.Equal(t, entry.Name, got.Name)
	})

	t.Run("out-of-range set is not found without a query", func(t *testing.T) {
		_, repo := newRepoMock(t)

		_, err := repo.GetBySetPosition(ctx, 5, 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("missing position is not found", func(t *testing.T) {
		mock, repo := newRepoMock(t)

		mock.ExpectQuery(`SELECT (.+) FROM catalog_entries`).
			WithArgs(2, 999).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetBySetPosition(ctx, 2, 999)
		require.Error(t, err)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})
}

func TestPostgresRepository_ListBySet(t *testing.T) {
	ctx := context.Background()

	t.Run("returns entries ordered by position", func(t *testing.T) {
		mock, repo := newRepoMock(t)
		first := testEntry(t, "02-001_first", 2, 1)
		second := testEntry(t, "02-002_second", 2, 2)

		mock.ExpectQuery(`SELECT (.+) FROM catalog_entries`).
			WithArgs(2).
			WillReturnRows(pgxmock.NewRows(entryColumns).
				AddRow(first.ID.String(), first.Name, first.SetNum, first.NumInSet,
					first.Data, first.CreatedAt, first.UpdatedAt).
				AddRow(second.ID.String(), second.Name, second.SetNum, second.NumInSet,
					second.Data, second.CreatedAt, second.UpdatedAt))

		got, err := repo.ListBySet(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 1, got[0].NumInSet)
		assert.Equal(t, 2, got[1].NumInSet)
	})

	t.Run("out-of-range set is not found", func(t *testing.T) {
		_, repo := newRepoMock(t)

		_, err := repo.ListBySet(ctx, -1)
		require.Error(t, err)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("empty set returns no entries", func(t *testing.T) {
		mock, repo := newRepoMock(t)

		mock.ExpectQuery(`SELECT (.+) FROM catalog_entries`).
			WithArgs(0).
			WillReturnRows(pgxmock.NewRows(entryColumns))

		got, err := repo.ListBySet(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestPostgresRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts entry", func(t *testing.T) {
		mock, repo := newRepoMock(t)
		entry := testEntry(t, "02-131_the_prophet", 2, 131)

		mock.ExpectExec(`INSERT INTO catalog_entries`).
			WithArgs(
				entry.ID.String(), entry.Name, entry.SetNum, entry.NumInSet,
				entry.Data, entry.CreatedAt, entry.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(ctx, entry))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scan rejects malformed stored id", func(t *testing.T) {
		mock, repo := newRepoMock(t)
		entry := testEntry(t, "02-131_the_prophet", 2, 131)

		mock.ExpectQuery(`SELECT (.+) FROM catalog_entries`).
			WithArgs(entry.Name).
			WillReturnRows(pgxmock.NewRows(entryColumns).AddRow(
				"not-a-ulid", entry.Name, entry.SetNum, entry.NumInSet,
				entry.Data, entry.CreatedAt, entry.UpdatedAt,
			))

		_, err := repo.GetByName(ctx, entry.Name)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CATALOG_INVALID_ID")
	})
}

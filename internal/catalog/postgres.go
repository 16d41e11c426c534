// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DBPool is the subset of pgxpool.Pool the repository needs. Satisfied by
// *pgxpool.Pool in production and pgxmock.PgxPoolIface in tests.
type DBPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const entryColumns = `id, name, set_num, num_in_set, data, created_at, updated_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool DBPool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create stores a new entry.
func (r *PostgresRepository) Create(ctx context.Context, entry *Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO catalog_entries (id, name, set_num, num_in_set, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		entry.ID.String(),
		entry.Name,
		entry.SetNum,
		entry.NumInSet,
		entry.Data,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("CATALOG_ENTRY_EXISTS").
				With("name", entry.Name).
				Wrap(err)
		}
		return oops.Code("CATALOG_CREATE_FAILED").
			With("operation", "insert catalog entry").
			With("name", entry.Name).
			Wrap(err)
	}
	return nil
}

// List returns every entry ordered by set and position.
func (r *PostgresRepository) List(ctx context.Context) ([]*Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM catalog_entries
		ORDER BY set_num, num_in_set
	`)
	if err != nil {
		return nil, oops.Code("CATALOG_LIST_FAILED").
			With("operation", "list catalog entries").
			Wrap(err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

// GetByName retrieves the entry with the given unique name.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM catalog_entries
		WHERE LOWER(name) = LOWER($1)
	`, name)

	entry, err := r.scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CATALOG_ENTRY_NOT_FOUND").
			With("name", name).
			Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CATALOG_GET_BY_NAME_FAILED").
			With("operation", "get entry by name").
			With("name", name).
			Wrap(err)
	}
	return entry, nil
}

// GetByNames returns one entry per valid distinct name. Unknown names produce
// no row, so the result may be shorter than the input.
func (r *PostgresRepository) GetByNames(ctx context.Context, names []string) ([]*Entry, error) {
	if len(names) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM catalog_entries
		WHERE name = ANY($1)
		ORDER BY set_num, num_in_set
	`, names)
	if err != nil {
		return nil, oops.Code("CATALOG_GET_BY_NAMES_FAILED").
			With("operation", "get entries by names").
			With("count", len(names)).
			Wrap(err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

// GetBySetPosition retrieves the entry at a position within a set. Out-of-range
// set numbers are a plain not-found, matching the lookup contract.
func (r *PostgresRepository) GetBySetPosition(ctx context.Context, setNum, numInSet int) (*Entry, error) {
	if !ValidSet(setNum) {
		return nil, oops.Code("CATALOG_ENTRY_NOT_FOUND").
			With("set_num", setNum).
			Wrap(ErrNotFound)
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM catalog_entries
		WHERE set_num = $1 AND num_in_set = $2
	`, setNum, numInSet)

	entry, err := r.scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CATALOG_ENTRY_NOT_FOUND").
			With("set_num", setNum).
			With("num_in_set", numInSet).
			Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CATALOG_GET_BY_POSITION_FAILED").
			With("operation", "get entry by set position").
			With("set_num", setNum).
			With("num_in_set", numInSet).
			Wrap(err)
	}
	return entry, nil
}

// ListBySet returns every entry of a set ordered by position.
func (r *PostgresRepository) ListBySet(ctx context.Context, setNum int) ([]*Entry, error) {
	if !ValidSet(setNum) {
		return nil, oops.Code("CATALOG_ENTRY_NOT_FOUND").
			With("set_num", setNum).
			Wrap(ErrNotFound)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM catalog_entries
		WHERE set_num = $1
		ORDER BY num_in_set
	`, setNum)
	if err != nil {
		return nil, oops.Code("CATALOG_LIST_BY_SET_FAILED").
			With("operation", "list entries by set").
			With("set_num", setNum).
			Wrap(err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

func (r *PostgresRepository) collectEntries(rows pgx.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, oops.Code("CATALOG_SCAN_FAILED").
				With("operation", "scan catalog entry row").
				Wrap(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("CATALOG_ROWS_ERROR").
			With("operation", "iterate catalog entries").
			Wrap(err)
	}
	return entries, nil
}

// scanEntry scans a single row into an Entry.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *PostgresRepository) scanEntry(row pgx.Row) (*Entry, error) {
	var (
		idStr     string
		name      string
		setNum    int
		numInSet  int
		data      json.RawMessage
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&idStr, &name, &setNum, &numInSet, &data, &createdAt, &updatedAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("CATALOG_SCAN_FAILED").
			With("operation", "scan catalog entry").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("CATALOG_INVALID_ID").
			With("operation", "parse entry id").
			With("id", idStr).
			Wrap(err)
	}

	return &Entry{
		ID:        id,
		Name:      name,
		SetNum:    setNum,
		NumInSet:  numInSet,
		Data:      data,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// Compile-time interface check.
var _ Repository = (*PostgresRepository)(nil)

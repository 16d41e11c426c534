// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

// Package catalog is the key-addressable store for card catalog entries.
// The backend treats entries as opaque documents addressed by name or by
// their position within a set; it does no card-domain modeling of its own.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrNotFound is returned when no entry matches a lookup.
var ErrNotFound = errors.New("not found")

// Set numbers run from SetMin to SetMax inclusive.
const (
	SetMin = 0
	SetMax = 4
)

// Entry is a catalog record. Name is the unique external identifier
// ("02-131_the_prophet"); Data carries the entry's document as-is.
type Entry struct {
	ID        ulid.ULID       `json:"-"`
	Name      string          `json:"name"`
	SetNum    int             `json:"setNum"`
	NumInSet  int             `json:"numInSet"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"-"`
	UpdatedAt time.Time       `json:"-"`
}

// NewEntry creates a validated Entry.
func NewEntry(name string, setNum, numInSet int, data json.RawMessage) (*Entry, error) {
	if name == "" {
		return nil, oops.Code("CATALOG_INVALID_ENTRY").Errorf("entry name cannot be empty")
	}
	if setNum < SetMin || setNum > SetMax {
		return nil, oops.Code("CATALOG_INVALID_ENTRY").
			With("set_num", setNum).
			Errorf("set number must be in [%d, %d]", SetMin, SetMax)
	}
	if numInSet < 1 {
		return nil, oops.Code("CATALOG_INVALID_ENTRY").
			With("num_in_set", numInSet).
			Errorf("number in set must be positive")
	}
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	now := time.Now()
	return &Entry{
		ID:        ulid.Make(),
		Name:      name,
		SetNum:    setNum,
		NumInSet:  numInSet,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidSet reports whether setNum is within the known range.
func ValidSet(setNum int) bool {
	return setNum >= SetMin && setNum <= SetMax
}

// setNames maps set numbers to their display names.
var setNames = map[int]string{
	0: "Promo",
	1: "Premiere",
	2: "Dark Prophecies",
	3: "Children of the Dragon",
	4: "Cycles",
}

// SetName returns the display name for a set number, or "" when the set
// number is out of range.
func SetName(setNum int) string {
	return setNames[setNum]
}

// Repository provides catalog entry lookups.
type Repository interface {
	// Create stores a new entry.
	Create(ctx context.Context, entry *Entry) error

	// List returns every entry ordered by set and position.
	List(ctx context.Context) ([]*Entry, error)

	// GetByName retrieves the entry with the given unique name.
	GetByName(ctx context.Context, name string) (*Entry, error)

	// GetByNames returns one entry per valid distinct name; unknown names are
	// ignored rather than failing the batch.
	GetByNames(ctx context.Context, names []string) ([]*Entry, error)

	// GetBySetPosition retrieves the entry at a position within a set.
	GetBySetPosition(ctx context.Context, setNum, numInSet int) (*Entry, error)

	// ListBySet returns every entry of a set ordered by position.
	ListBySet(ctx context.Context, setNum int) ([]*Entry, error)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

// Package images resolves untrusted card identifiers to image files under a
// fixed resource root without permitting path traversal.
package images

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
)

// Sentinel errors the HTTP layer maps to distinct statuses: malformed
// identifiers are 400, missing images 404.
var (
	ErrMalformedIdentifier = errors.New("malformed identifier")
	ErrNotFound            = errors.New("image not found")
)

const imageSuffix = ".jpg"

// smallDirSuffix names the sibling directories holding half-size renders,
// e.g. premiere_small next to premiere.
const smallDirSuffix = "_small"

// setDirs maps the two-digit set prefix of an identifier to its directory
// under the resource root. Identifiers look like "02-131_the_prophet".
var setDirs = map[int]string{
	0: "promo",
	1: "premiere",
	2: "dark_prophecies",
	3: "children_of_the_dragon",
	4: "cycles",
}

// ResolvedPath is a successfully resolved image path. Identifier carries the
// raw client input for audit logging.
type ResolvedPath struct {
	Path       string
	Identifier string
}

// Resolver resolves identifiers against a fixed root directory. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver rooted at dir. The root is made absolute
// once at construction so every length and prefix comparison later works on a
// canonical base.
func NewResolver(dir string) (*Resolver, error) {
	if dir == "" {
		return nil, oops.Code("IMAGE_ROOT_INVALID").Errorf("image root directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, oops.Code("IMAGE_ROOT_INVALID").
			With("operation", "resolve image root").
			With("dir", dir).
			Wrap(err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute resource root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps an identifier to the full-size image path.
func (r *Resolver) Resolve(identifier string) (*ResolvedPath, error) {
	return r.resolve(identifier, false)
}

// ResolveSmall maps an identifier to the half-size image path.
func (r *Resolver) ResolveSmall(identifier string) (*ResolvedPath, error) {
	return r.resolve(identifier, true)
}

func (r *Resolver) resolve(identifier string, small bool) (*ResolvedPath, error) {
	setDir, err := setDirFor(identifier)
	if err != nil {
		return nil, err
	}
	if small {
		setDir += smallDirSuffix
	}

	dir := filepath.Join(r.root, setDir)

	// The candidate is dir + separator + identifier + suffix. Cleaning inside
	// filepath.Join collapses ".." segments and drops redundant separators, so
	// any divergence from the naive arithmetic length means the identifier
	// altered the directory structure.
	expectedLength := len(dir) + 1 + len(identifier) + len(imageSuffix)
	candidate := filepath.Join(dir, identifier+imageSuffix)
	if len(candidate) != expectedLength {
		return nil, oops.Code("IMAGE_MALFORMED_IDENTIFIER").
			With("identifier", identifier).
			Wrap(ErrMalformedIdentifier)
	}

	// Second check: the cleaned path must still sit literally under the root.
	if !strings.HasPrefix(candidate, r.root+string(filepath.Separator)) {
		return nil, oops.Code("IMAGE_MALFORMED_IDENTIFIER").
			With("identifier", identifier).
			Wrap(ErrMalformedIdentifier)
	}

	info, err := os.Stat(candidate)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, oops.Code("IMAGE_NOT_FOUND").
			With("identifier", identifier).
			Wrap(ErrNotFound)
	}
	if err != nil {
		// Fail closed: an unreadable path is never served.
		return nil, oops.Code("IMAGE_STAT_FAILED").
			With("operation", "stat image path").
			With("identifier", identifier).
			Wrap(err)
	}
	if info.IsDir() {
		return nil, oops.Code("IMAGE_NOT_FOUND").
			With("identifier", identifier).
			Wrap(ErrNotFound)
	}

	return &ResolvedPath{Path: candidate, Identifier: identifier}, nil
}

// setDirFor validates the identifier's trusted portion and returns the set
// directory. The set prefix must be exactly two digits followed by a dash,
// and the identifier may not carry its own path separators; the rest of the
// identifier is free-form (names legitimately contain punctuation).
func setDirFor(identifier string) (string, error) {
	malformed := func() error {
		return oops.Code("IMAGE_MALFORMED_IDENTIFIER").
			With("identifier", identifier).
			Wrap(ErrMalformedIdentifier)
	}

	if len(identifier) < 3 {
		return "", malformed()
	}
	if !isDigit(identifier[0]) || !isDigit(identifier[1]) || identifier[2] != '-' {
		return "", malformed()
	}
	if strings.ContainsAny(identifier, `/\`) || strings.ContainsRune(identifier, 0) {
		return "", malformed()
	}

	setNum := int(identifier[0]-'0')*10 + int(identifier[1]-'0')
	dir, ok := setDirs[setNum]
	if !ok {
		return "", malformed()
	}
	return dir, nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

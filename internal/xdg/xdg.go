// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

// Package xdg provides XDG Base Directory paths for Cardkeep.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "cardkeep"

// ConfigDir returns the XDG config directory for cardkeep.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns the config file path used when --config is not
// given. The file does not have to exist; loading falls back to defaults.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

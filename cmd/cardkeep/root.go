// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/cardkeep/cardkeep/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// configPath resolves the config file location: the --config flag when given,
// otherwise the XDG default (which may not exist; loading then falls back to
// built-in defaults).
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return xdg.DefaultConfigFile()
}

// NewRootCmd creates the root command for the Cardkeep CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cardkeep",
		Short: "Cardkeep - card catalog REST backend",
		Long: `Cardkeep serves a card catalog over REST, gated by opaque
session tokens, with safe filesystem resolution of card images.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newCreateUserCmd())

	return cmd
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cardkeep/cardkeep/internal/auth"
	authpg "github.com/cardkeep/cardkeep/internal/auth/postgres"
	"github.com/cardkeep/cardkeep/internal/config"
	"github.com/cardkeep/cardkeep/internal/store"
)

// newCreateUserCmd creates the create-user subcommand. There is no
// self-service registration endpoint; accounts are provisioned here.
func newCreateUserCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "create-user <username>",
		Short: "Create an API user",
		Long: `Create an API user that can authenticate against the server.
The password is read from --password or the CARDKEEP_PASSWORD environment
variable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("CARDKEEP_PASSWORD")
			}
			if password == "" {
				return oops.Code("CONFIG_INVALID").
					Errorf("password is required (--password or CARDKEEP_PASSWORD)")
			}
			return runCreateUser(cmd, args[0], password)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password for the new user")
	cmd.Flags().String("database.url", config.Default().Database.URL, "PostgreSQL connection URL")

	return cmd
}

func runCreateUser(cmd *cobra.Command, username, password string) error {
	cfg, err := config.Load(configPath(), cmd.Flags())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	svc, err := auth.NewService(
		authpg.NewUserRepository(st.Pool()),
		authpg.NewTokenRepository(st.Pool()),
		auth.NewArgon2idHasher(),
		auth.NewIssuer(auth.TokenLifetime),
	)
	if err != nil {
		return err
	}

	user, err := svc.Register(ctx, username, password)
	if err != nil {
		return err
	}

	cmd.Printf("Created user %s (%s)\n", user.Username, user.ID)
	return nil
}

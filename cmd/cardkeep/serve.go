// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cardkeep/cardkeep/internal/auth"
	authpg "github.com/cardkeep/cardkeep/internal/auth/postgres"
	"github.com/cardkeep/cardkeep/internal/catalog"
	"github.com/cardkeep/cardkeep/internal/config"
	"github.com/cardkeep/cardkeep/internal/httpapi"
	"github.com/cardkeep/cardkeep/internal/images"
	"github.com/cardkeep/cardkeep/internal/logging"
	"github.com/cardkeep/cardkeep/internal/observability"
	"github.com/cardkeep/cardkeep/internal/store"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the serve subcommand. Flag names mirror the config
// file keys so the posflag provider can overlay them directly.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the Cardkeep API server, serving the card catalog and card
images behind session-token authentication.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath(), cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd)
		},
	}

	defaults := config.Default()
	cmd.Flags().String("http.addr", defaults.HTTP.Addr, "API listen address")
	cmd.Flags().String("metrics.addr", defaults.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database.url", defaults.Database.URL, "PostgreSQL connection URL")
	cmd.Flags().String("images.dir", defaults.Images.Dir, "card image root directory")
	cmd.Flags().String("log.format", defaults.Log.Format, "log format (json or text)")
	cmd.Flags().String("log.level", defaults.Log.Level, "log level (debug, info, warn, error)")

	return cmd
}

// runServe wires the stores, services and servers together and blocks until
// a shutdown signal arrives.
func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	logging.SetDefault("cardkeep", version, cfg.Log.Format, cfg.Log.Level)

	slog.Info("starting cardkeep",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"images_dir", cfg.Images.Dir,
		"log_format", cfg.Log.Format,
	)

	st, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	slog.Info("database ready")

	resolver, err := images.NewResolver(cfg.Images.Dir)
	if err != nil {
		return err
	}

	authSvc, err := auth.NewService(
		authpg.NewUserRepository(st.Pool()),
		authpg.NewTokenRepository(st.Pool()),
		auth.NewArgon2idHasher(),
		auth.NewIssuer(auth.TokenLifetime),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Observability server first so readiness reflects API startup.
	var obsServer *observability.Server
	var apiStarted atomic.Bool
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, apiStarted.Load)
		if _, err := obsServer.Start(); err != nil {
			return err
		}
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	var metrics *observability.Metrics
	if obsServer != nil {
		metrics = obsServer.Metrics()
	} else {
		// Counters still run when the metrics listener is disabled; they are
		// simply never scraped.
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	apiServer, err := httpapi.NewServer(
		httpapi.Config{
			Addr:        cfg.HTTP.Addr,
			LoginLimit:  cfg.Login.RateLimit,
			LoginWindow: cfg.Login.RateWindow,
		},
		authSvc,
		catalog.NewPostgresRepository(st.Pool()),
		resolver,
		metrics,
		slog.Default(),
	)
	if err != nil {
		return err
	}

	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopObservability(obsServer)
		return err
	}
	apiStarted.Store(true)

	cmd.Println("Cardkeep server started")
	slog.Info("cardkeep ready", "addr", apiServer.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err, ok := <-apiErrCh:
		if ok && err != nil {
			slog.Error("api server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}
	stopObservability(obsServer)

	slog.Info("shutdown complete")
	return nil
}

func stopObservability(obsServer *observability.Server) {
	if obsServer == nil {
		return
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := obsServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

// Package httpapi serves the card catalog REST API. Every route except
// /authenticate sits behind the request gate.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
	"github.com/samber/oops"

	"github.com/cardkeep/cardkeep/internal/auth"
	"github.com/cardkeep/cardkeep/internal/catalog"
	"github.com/cardkeep/cardkeep/internal/images"
	"github.com/cardkeep/cardkeep/internal/observability"
)

// Authenticator is the slice of *auth.Service the API consumes.
type Authenticator interface {
	TokenValidator
	Authenticate(ctx context.Context, username, password string) (*auth.Token, string, error)
}

// Config carries the API listener settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// LoginLimit and LoginWindow bound authentication attempts per client IP.
	LoginLimit  int
	LoginWindow time.Duration
}

// Server is the API HTTP server.
type Server struct {
	addr    string
	auth    Authenticator
	catalog catalog.Repository
	images  *images.Resolver
	metrics *observability.Metrics
	logger  *slog.Logger

	router     *httprouter.Router
	httpServer *http.Server
	listener   net.Listener
	running    atomic.Bool
}

// NewServer creates the API server. All dependencies are required except
// logger, which defaults to slog.Default().
func NewServer(cfg Config, authSvc Authenticator, repo catalog.Repository, resolver *images.Resolver, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if authSvc == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if repo == nil {
		return nil, oops.Errorf("catalog repository is required")
	}
	if resolver == nil {
		return nil, oops.Errorf("image resolver is required")
	}
	if metrics == nil {
		return nil, oops.Errorf("metrics is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LoginLimit < 1 {
		cfg.LoginLimit = 10
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = time.Minute
	}

	s := &Server{
		addr:    cfg.Addr,
		auth:    authSvc,
		catalog: repo,
		images:  resolver,
		metrics: metrics,
		logger:  logger,
	}

	gate, err := NewGate(authSvc, metrics, logger)
	if err != nil {
		return nil, err
	}
	s.router = s.routes(gate, cfg.LoginLimit, cfg.LoginWindow)

	return s, nil
}

func (s *Server) routes(gate *Gate, loginLimit int, loginWindow time.Duration) *httprouter.Router {
	router := httprouter.New()

	gated := func(method, route string, handle httprouter.Handle) {
		router.Handle(method, route, s.instrument(route, gate.Protect(handle)))
	}

	// One limiter instance for the single public route, keyed by client IP.
	limited := httprate.Limit(loginLimit, loginWindow, httprate.WithKeyFuncs(httprate.KeyByIP))
	router.Handle(http.MethodPost, "/authenticate",
		s.instrument("/authenticate", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
			limited(http.HandlerFunc(s.handleAuthenticate)).ServeHTTP(w, r)
		}))

	gated(http.MethodGet, "/", s.handleRoot)
	gated(http.MethodGet, "/cards", s.handleListCards)
	gated(http.MethodGet, "/cards/id/:cardId", s.handleGetCard)
	gated(http.MethodPost, "/cards/id", s.handleGetCardBatch)
	gated(http.MethodGet, "/cards/id/:cardId/image", s.handleCardImage)
	gated(http.MethodGet, "/cards/id/:cardId/image/small", s.handleCardImageSmall)
	gated(http.MethodGet, "/cards/sets/:setNum", s.handleGetSet)
	gated(http.MethodGet, "/cards/sets/:setNum/:numInSet", s.handleGetCardInSet)

	return router
}

// Handler exposes the routed handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving API requests. It returns an error channel that
// receives any serve error; the channel is closed on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- oops.With("addr", s.addr).Wrap(err)
		}
	}()

	return errCh, nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return oops.Wrap(err)
		}
	}
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// instrument records a request count by route pattern and status class.
func (s *Server) instrument(route string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r, ps)
		s.metrics.RequestsTotal.WithLabelValues(route, statusClass(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}

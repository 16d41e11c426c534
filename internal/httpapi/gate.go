// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/samber/oops"

	"github.com/cardkeep/cardkeep/internal/auth"
	"github.com/cardkeep/cardkeep/internal/observability"
	"github.com/cardkeep/cardkeep/pkg/errutil"
)

// HeaderAuthKey is the request header carrying the opaque session secret.
const HeaderAuthKey = "Api-Auth-Key"

// TokenValidator resolves an opaque session secret to a live token.
// Implemented by *auth.Service.
type TokenValidator interface {
	ValidateSecret(ctx context.Context, secret string) (*auth.Token, error)
}

// Gate admits or rejects requests based on the Api-Auth-Key header. It has
// exactly two outcomes per request: admit and invoke the wrapped handler, or
// reject with an empty 401. Every rejection looks identical to the client;
// internal faults during the check also reject (fail closed) and reach the
// operator through the log only.
type Gate struct {
	validator TokenValidator
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewGate creates a request gate over the given validator.
func NewGate(validator TokenValidator, metrics *observability.Metrics, logger *slog.Logger) (*Gate, error) {
	if validator == nil {
		return nil, oops.Errorf("validator is required")
	}
	if metrics == nil {
		return nil, oops.Errorf("metrics is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Gate{
		validator: validator,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Protect wraps a handler so it only runs for requests carrying exactly one
// valid session secret. The wrapped handler never starts on rejection.
func (g *Gate) Protect(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		secrets := r.Header.Values(HeaderAuthKey)
		if len(secrets) != 1 {
			g.reject(w)
			return
		}

		if _, err := g.validator.ValidateSecret(r.Context(), secrets[0]); err != nil {
			if isInternalAuthError(err) {
				errutil.LogError(g.logger, "gate: secret validation failed", err)
			}
			g.reject(w)
			return
		}

		g.metrics.GateDecisionsTotal.WithLabelValues("admitted").Inc()
		next(w, r, ps)
	}
}

func (g *Gate) reject(w http.ResponseWriter) {
	g.metrics.GateDecisionsTotal.WithLabelValues("rejected").Inc()
	w.WriteHeader(http.StatusUnauthorized)
}

// isInternalAuthError distinguishes storage faults from ordinary
// unknown-secret and expired-token rejections. Both map to the same 401; only
// the former is worth an operator's attention.
func isInternalAuthError(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return true
	}
	code := oopsErr.Code()
	return code != "TOKEN_NOT_FOUND" && code != "TOKEN_EXPIRED"
}

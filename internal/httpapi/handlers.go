// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cardkeep Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/samber/oops"

	"github.com/cardkeep/cardkeep/internal/catalog"
	"github.com/cardkeep/cardkeep/internal/images"
	"github.com/cardkeep/cardkeep/pkg/errutil"
)

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// authenticateResponse exposes the opaque secret and its validity window.
// The token's internal id never leaves the service.
type authenticateResponse struct {
	Token   string    `json:"token"`
	Issued  time.Time `json:"issued"`
	Expires time.Time `json:"expires"`
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	token, secret, err := s.auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		outcome := "rejected"
		if oopsErr, ok := oops.AsOops(err); ok {
			switch oopsErr.Code() {
			case "AUTH_ACCOUNT_LOCKED":
				outcome = "locked"
			case "AUTH_RETRY_DELAYED":
				outcome = "delayed"
			}
		}
		s.metrics.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
		// Every failure is the same empty 401; no reason leaks.
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	s.writeJSON(w, http.StatusOK, authenticateResponse{
		Token:   secret,
		Issued:  token.IssuedAt,
		Expires: token.ExpiresAt,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	_, _ = w.Write([]byte("Welcome to the Cardkeep card catalog API"))
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	entries, err := s.catalog.List(r.Context())
	if err != nil {
		s.internalError(w, "list cards", err)
		return
	}
	if entries == nil {
		entries = []*catalog.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	entry, err := s.catalog.GetByName(r.Context(), ps.ByName("cardId"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.internalError(w, "get card", err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

type cardBatchRequest struct {
	CardIDs []string `json:"cardIds"`
}

// handleGetCardBatch returns the entries matching the requested names.
// Unknown names are silently dropped rather than failing the batch.
func (s *Server) handleGetCardBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req cardBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CardIDs == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	entries, err := s.catalog.GetByNames(r.Context(), req.CardIDs)
	if err != nil {
		s.internalError(w, "get card batch", err)
		return
	}
	if entries == nil {
		entries = []*catalog.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCardImage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.serveCardImage(w, r, ps.ByName("cardId"), false)
}

func (s *Server) handleCardImageSmall(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.serveCardImage(w, r, ps.ByName("cardId"), true)
}

func (s *Server) serveCardImage(w http.ResponseWriter, r *http.Request, identifier string, small bool) {
	var resolved *images.ResolvedPath
	var err error
	if small {
		resolved, err = s.images.ResolveSmall(identifier)
	} else {
		resolved, err = s.images.Resolve(identifier)
	}

	if err != nil {
		switch {
		case errors.Is(err, images.ErrMalformedIdentifier):
			s.metrics.ImageRequestsTotal.WithLabelValues("malformed").Inc()
			w.WriteHeader(http.StatusBadRequest)
		case errors.Is(err, images.ErrNotFound):
			s.metrics.ImageRequestsTotal.WithLabelValues("not_found").Inc()
			w.WriteHeader(http.StatusNotFound)
		default:
			s.metrics.ImageRequestsTotal.WithLabelValues("error").Inc()
			s.internalError(w, "resolve card image", err)
		}
		return
	}

	s.metrics.ImageRequestsTotal.WithLabelValues("served").Inc()
	http.ServeFile(w, r, resolved.Path)
}

type setResponse struct {
	SetNum int    `json:"setNum"`
	Name   string `json:"name"`

	// Cards is omitted entirely when the client asks for set info only; an
	// empty set still serializes as an empty array.
	Cards *[]*catalog.Entry `json:"cards,omitempty"`
}

func (s *Server) handleGetSet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	setNum, err := strconv.Atoi(ps.ByName("setNum"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !catalog.ValidSet(setNum) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	resp := setResponse{SetNum: setNum, Name: catalog.SetName(setNum)}

	// The card list dominates the payload; excludeCards=true returns the set
	// header alone.
	excludeCards := strings.EqualFold(r.URL.Query().Get("excludeCards"), "true")
	if !excludeCards {
		entries, err := s.catalog.ListBySet(r.Context(), setNum)
		if err != nil {
			s.internalError(w, "list set cards", err)
			return
		}
		if entries == nil {
			entries = []*catalog.Entry{}
		}
		resp.Cards = &entries
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCardInSet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	setNum, err := strconv.Atoi(ps.ByName("setNum"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	numInSet, err := strconv.Atoi(ps.ByName("numInSet"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	entry, err := s.catalog.GetBySetPosition(r.Context(), setNum, numInSet)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.internalError(w, "get card in set", err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errutil.LogError(s.logger, "write response failed", err)
	}
}

// internalError logs the cause and returns an empty 500. Store faults never
// reach the client in detail.
func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	errutil.LogError(s.logger, op+" failed", err)
	w.WriteHeader(http.StatusInternalServerError)
}

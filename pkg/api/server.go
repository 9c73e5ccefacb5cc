// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the workspaces server over HTTP. The routing layer is
// deliberately thin: handlers validate input, call the core, and translate
// the error taxonomy to status codes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/workspacesio/workspaces/pkg/apierr"
	"github.com/workspacesio/workspaces/pkg/clientcache"
	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/issuer"
	"github.com/workspacesio/workspaces/pkg/logger"
	"github.com/workspacesio/workspaces/pkg/registry"
)

// Server handles the workspaces HTTP API.
type Server struct {
	store    db.Store
	issuer   *issuer.Issuer
	registry *registry.Registry
	clients  *clientcache.Cache
	limiter  *issueLimiter
	mux      *http.ServeMux
}

// Config holds server tunables.
type Config struct {
	// IssueRPS caps token issuance per user. Zero disables the limit.
	IssueRPS float64
	// IssueBurstMultiplier allows temporary bursts above IssueRPS,
	// e.g. 2 allows 2x the rate limit before throttling kicks in.
	IssueBurstMultiplier int
}

// NewServer creates the API server and registers its routes.
func NewServer(store db.Store, iss *issuer.Issuer, reg *registry.Registry, clients *clientcache.Cache, cfg Config) *Server {
	s := &Server{
		store:    store,
		issuer:   iss,
		registry: reg,
		clients:  clients,
		limiter:  newIssueLimiter(cfg.IssueRPS, cfg.IssueBurstMultiplier),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Registration is open; everything else requires an API key.
	s.mux.HandleFunc("POST /api/user", s.handleCreateUser)

	s.mux.Handle("POST /api/node", s.requireAuth(s.handleCreateNode))
	s.mux.Handle("POST /api/node/root", s.requireAuth(s.handleCreateRoot))
	s.mux.Handle("GET /api/workspace", s.requireAuth(s.handleListWorkspaces))
	s.mux.Handle("POST /api/workspace", s.requireAuth(s.handleCreateWorkspace))
	s.mux.Handle("DELETE /api/workspace/{id}", s.requireAuth(s.handleDeleteWorkspace))
	s.mux.Handle("POST /api/workspace/share", s.requireAuth(s.handleCreateShare))
	s.mux.Handle("POST /api/token", s.requireAuth(s.rateLimited(s.handleIssueToken)))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// errorBody is the JSON failure envelope.
type errorBody struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
	// MaxTTLSeconds reports the allowed ceiling on InvalidTTL failures.
	MaxTTLSeconds int64 `json:"max_ttl_seconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps core failures to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := apierr.AsError(err); ok {
		body := errorBody{Kind: e.Kind.String(), Detail: e.Message}
		if e.Kind == apierr.KindInvalidTTL {
			body.MaxTTLSeconds = int64(e.MaxTTL.Seconds())
		}
		if e.Kind == apierr.KindUpstream {
			logger.Ctx(r.Context()).Error().Err(err).Msg("upstream issuance failure")
			// Upstream bodies are surfaced verbatim for diagnosis.
			body.Detail = e.Error()
		}
		writeJSON(w, e.Kind.HTTPStatus(), map[string]errorBody{"error": body})
		return
	}

	switch {
	case errors.Is(err, db.ErrUserNotFound),
		errors.Is(err, db.ErrNodeNotFound),
		errors.Is(err, db.ErrRootNotFound),
		errors.Is(err, db.ErrWorkspaceNotFound),
		errors.Is(err, db.ErrApiKeyNotFound):
		writeJSON(w, http.StatusNotFound, map[string]errorBody{"error": {Kind: "NotFound", Detail: err.Error()}})
	case errors.Is(err, db.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, map[string]errorBody{"error": {Kind: "Conflict", Detail: err.Error()}})
	default:
		logger.Ctx(r.Context()).Error().Err(err).Msg("internal error")
		writeJSON(w, http.StatusInternalServerError, map[string]errorBody{"error": {Kind: "Internal", Detail: "internal error"}})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func badRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: "BadRequest", Detail: detail}})
}

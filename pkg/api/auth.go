// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/workspacesio/workspaces/pkg/types"
)

type userKey struct{}

// currentUser returns the authenticated user attached by requireAuth.
func currentUser(ctx context.Context) *types.User {
	u, _ := ctx.Value(userKey{}).(*types.User)
	return u
}

// requireAuth authenticates "Authorization: Bearer {key_id}:{secret}"
// against the stored bcrypt hash and attaches the user to the context.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "Unauthorized", Detail: "missing bearer token"}})
			return
		}
		keyID, secret, ok := strings.Cut(token, ":")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "Unauthorized", Detail: "malformed api key"}})
			return
		}

		key, err := s.store.GetApiKey(r.Context(), keyID)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "Unauthorized", Detail: "unknown api key"}})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)) != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "Unauthorized", Detail: "invalid api key"}})
			return
		}

		user, err := s.store.GetUser(r.Context(), key.UserID)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "Unauthorized", Detail: "user not found"}})
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

// newApiKeySecret generates a URL-safe random secret for an API key.
func newApiKeySecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

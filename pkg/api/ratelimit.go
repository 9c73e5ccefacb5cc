// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// issueLimiter throttles token issuance per user with a token bucket.
// A nil limiter disables throttling.
type issueLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	perUser map[uuid.UUID]*rate.Limiter
}

func newIssueLimiter(rps float64, burstMultiplier int) *issueLimiter {
	if rps <= 0 {
		return nil
	}
	if burstMultiplier < 1 {
		burstMultiplier = 1
	}
	burst := int(rps) * burstMultiplier
	if burst < 1 {
		burst = 1
	}
	return &issueLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		perUser: make(map[uuid.UUID]*rate.Limiter),
	}
}

func (l *issueLimiter) allow(userID uuid.UUID) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.perUser[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.perUser[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// rateLimited rejects requests once the caller's token bucket is drained.
// It must run after requireAuth so the user is on the context.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r.Context())
		if !s.limiter.allow(user.ID) {
			writeJSON(w, http.StatusTooManyRequests, map[string]errorBody{"error": {Kind: "SlowDown", Detail: "token issuance rate limit exceeded"}})
			return
		}
		next(w, r)
	}
}

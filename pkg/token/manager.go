// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

// Package token tracks issued credentials, their workspace/root
// associations, and their expiry. Find supports caller-side reuse: it is a
// best-effort optimization, never a correctness requirement, since issuing a
// redundant credential is safe, just wasteful.
package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/logger"
	"github.com/workspacesio/workspaces/pkg/types"
)

// DefaultMargin is the safety margin a token must retain before expiry to be
// considered reusable.
const DefaultMargin = 60 * time.Second

// Manager persists issued tokens and answers reuse lookups.
type Manager struct {
	store  db.Store
	rdb    *redis.Client
	margin time.Duration
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithRedis adds an exact-match fast path in front of the database scan.
// Lookups fall back to the database on any Redis failure.
func WithRedis(rdb *redis.Client) Option {
	return func(m *Manager) { m.rdb = rdb }
}

// WithMargin overrides the reuse safety margin.
func WithMargin(margin time.Duration) Option {
	return func(m *Manager) { m.margin = margin }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager over the given store.
func New(store db.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		margin: DefaultMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// targetsKey derives a stable Redis key for an exact target set.
func targetsKey(ownerID, nodeID uuid.UUID, workspaceIDs, rootIDs []uuid.UUID) string {
	ids := make([]string, 0, len(workspaceIDs)+len(rootIDs))
	for _, id := range workspaceIDs {
		ids = append(ids, "w:"+id.String())
	}
	for _, id := range rootIDs {
		ids = append(ids, "r:"+id.String())
	}
	sort.Strings(ids)
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
	}
	return fmt.Sprintf("s3token:%s:%s:%s", ownerID, nodeID, hex.EncodeToString(h.Sum(nil)))
}

// Find returns a still-valid previously issued credential for the requester
// on the node whose associated target set covers every requested workspace
// and root, or nil when the caller must issue anew.
func (m *Manager) Find(ctx context.Context, ownerID, nodeID uuid.UUID, workspaceIDs, rootIDs []uuid.UUID) (*types.S3Token, error) {
	now := m.now()

	if m.rdb != nil {
		if t := m.findCached(ctx, ownerID, nodeID, workspaceIDs, rootIDs, now); t != nil {
			return t, nil
		}
	}

	tokens, err := m.store.ListTokens(ctx, &db.ListTokensParams{
		OwnerID:    ownerID,
		NodeID:     &nodeID,
		ValidAfter: now.Add(m.margin),
	})
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	for i := range tokens {
		t := &tokens[i]
		if covers(t.WorkspaceIDs, workspaceIDs) && covers(t.RootIDs, rootIDs) {
			return t, nil
		}
	}
	return nil, nil
}

// Save persists the credential and primes the reuse cache. A Redis failure
// only degrades reuse, so it is logged and swallowed.
func (m *Manager) Save(ctx context.Context, token *types.S3Token) error {
	if err := m.store.CreateToken(ctx, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	if m.rdb != nil {
		ttl := token.Expiration.Sub(m.now()) - m.margin
		if ttl > 0 {
			key := targetsKey(token.OwnerID, token.StorageNodeID, token.WorkspaceIDs, token.RootIDs)
			payload, err := json.Marshal(token)
			if err == nil {
				err = m.rdb.Set(ctx, key, payload, ttl).Err()
			}
			if err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("token reuse cache write failed")
			}
		}
	}
	return nil
}

// findCached checks the Redis exact-match path.
func (m *Manager) findCached(ctx context.Context, ownerID, nodeID uuid.UUID, workspaceIDs, rootIDs []uuid.UUID, now time.Time) *types.S3Token {
	key := targetsKey(ownerID, nodeID, workspaceIDs, rootIDs)
	payload, err := m.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("token reuse cache read failed")
		}
		return nil
	}
	var t types.S3Token
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil
	}
	if !t.ValidFor(now, m.margin) {
		return nil
	}
	return &t
}

// covers reports whether every wanted id is present in have.
func covers(have, want []uuid.UUID) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[uuid.UUID]bool, len(have))
	for _, id := range have {
		set[id] = true
	}
	for _, id := range want {
		if !set[id] {
			return false
		}
	}
	return true
}

// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workspacesio/workspaces/pkg/db/memory"
	"github.com/workspacesio/workspaces/pkg/types"
)

var managerNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return managerNow }

func newToken(owner, node uuid.UUID, expiresIn time.Duration, wsIDs, rootIDs []uuid.UUID) *types.S3Token {
	return &types.S3Token{
		ID:              uuid.New(),
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
		SessionToken:    "session",
		Expiration:      managerNow.Add(expiresIn),
		Policy:          `{"Version":"2012-10-17"}`,
		OwnerID:         owner,
		StorageNodeID:   node,
		WorkspaceIDs:    wsIDs,
		RootIDs:         rootIDs,
		Created:         managerNow,
	}
}

func TestManager_FindSupersetMatch(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	m := New(store, WithClock(fixedClock))

	owner := uuid.New()
	node := uuid.New()
	ws1 := uuid.New()
	ws2 := uuid.New()

	saved := newToken(owner, node, time.Hour, []uuid.UUID{ws1, ws2}, nil)
	require.NoError(t, m.Save(ctx, saved))

	t.Run("exact set", func(t *testing.T) {
		got, err := m.Find(ctx, owner, node, []uuid.UUID{ws1, ws2}, nil)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, saved.ID, got.ID)
	})

	t.Run("subset of associations", func(t *testing.T) {
		got, err := m.Find(ctx, owner, node, []uuid.UUID{ws2}, nil)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, saved.ID, got.ID)
	})

	t.Run("unassociated workspace misses", func(t *testing.T) {
		got, err := m.Find(ctx, owner, node, []uuid.UUID{uuid.New()}, nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("other owner misses", func(t *testing.T) {
		got, err := m.Find(ctx, uuid.New(), node, []uuid.UUID{ws1}, nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("other node misses", func(t *testing.T) {
		got, err := m.Find(ctx, owner, uuid.New(), []uuid.UUID{ws1}, nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestManager_FindHonorsMargin(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	m := New(store, WithClock(fixedClock))

	owner := uuid.New()
	node := uuid.New()
	ws := uuid.New()

	// Expires 30s from now, inside the 60s safety margin.
	nearExpiry := newToken(owner, node, 30*time.Second, []uuid.UUID{ws}, nil)
	require.NoError(t, m.Save(ctx, nearExpiry))

	got, err := m.Find(ctx, owner, node, []uuid.UUID{ws}, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	// A fresh token on the same targets is found.
	fresh := newToken(owner, node, time.Hour, []uuid.UUID{ws}, nil)
	require.NoError(t, m.Save(ctx, fresh))

	got, err = m.Find(ctx, owner, node, []uuid.UUID{ws}, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fresh.ID, got.ID)
}

func TestManager_RootAssociations(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	m := New(store, WithClock(fixedClock))

	owner := uuid.New()
	node := uuid.New()
	root := uuid.New()

	saved := newToken(owner, node, time.Hour, nil, []uuid.UUID{root})
	require.NoError(t, m.Save(ctx, saved))

	got, err := m.Find(ctx, owner, node, nil, []uuid.UUID{root})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved.ID, got.ID)

	got, err = m.Find(ctx, owner, node, nil, []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestManager_RedisFastPath(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := memory.New()
	m := New(store, WithClock(fixedClock), WithRedis(rdb))

	owner := uuid.New()
	node := uuid.New()
	ws := uuid.New()

	saved := newToken(owner, node, time.Hour, []uuid.UUID{ws}, nil)
	require.NoError(t, m.Save(ctx, saved))

	// The exact target set is answered from the cache.
	key := targetsKey(owner, node, []uuid.UUID{ws}, nil)
	assert.True(t, mr.Exists(key))

	got, err := m.Find(ctx, owner, node, []uuid.UUID{ws}, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved.ID, got.ID)
}

func TestManager_RedisDownFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := memory.New()
	m := New(store, WithClock(fixedClock), WithRedis(rdb))

	owner := uuid.New()
	node := uuid.New()
	ws := uuid.New()

	saved := newToken(owner, node, time.Hour, []uuid.UUID{ws}, nil)
	require.NoError(t, m.Save(ctx, saved))

	mr.Close()

	got, err := m.Find(ctx, owner, node, []uuid.UUID{ws}, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved.ID, got.ID)
}

func TestTargetsKey(t *testing.T) {
	owner := uuid.New()
	node := uuid.New()
	a := uuid.New()
	b := uuid.New()

	t.Run("order independent", func(t *testing.T) {
		assert.Equal(t,
			targetsKey(owner, node, []uuid.UUID{a, b}, nil),
			targetsKey(owner, node, []uuid.UUID{b, a}, nil))
	})

	t.Run("workspace and root ids do not collide", func(t *testing.T) {
		assert.NotEqual(t,
			targetsKey(owner, node, []uuid.UUID{a}, nil),
			targetsKey(owner, node, nil, []uuid.UUID{a}))
	})
}

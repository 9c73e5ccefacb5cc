// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides an in-memory implementation of the db.Store
// interface, used by tests and local single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/types"
)

// Memory implements db.Store with mutex-guarded maps. Returned records are
// copies; callers never share memory with the store.
type Memory struct {
	mu sync.RWMutex

	users      map[uuid.UUID]types.User
	apiKeys    map[string]types.ApiKey
	nodes      map[uuid.UUID]types.StorageNode
	roots      map[uuid.UUID]types.WorkspaceRoot
	workspaces map[uuid.UUID]types.Workspace
	shares     map[uuid.UUID]types.Share
	tokens     map[uuid.UUID]types.S3Token
}

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{
		users:      make(map[uuid.UUID]types.User),
		apiKeys:    make(map[string]types.ApiKey),
		nodes:      make(map[uuid.UUID]types.StorageNode),
		roots:      make(map[uuid.UUID]types.WorkspaceRoot),
		workspaces: make(map[uuid.UUID]types.Workspace),
		shares:     make(map[uuid.UUID]types.Share),
		tokens:     make(map[uuid.UUID]types.S3Token),
	}
}

func (m *Memory) CreateUser(ctx context.Context, user *types.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email || u.Sub == user.Sub {
			return db.ErrAlreadyExists
		}
	}
	m.users[user.ID] = *user
	return nil
}

func (m *Memory) GetUser(ctx context.Context, id uuid.UUID) (*types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, db.ErrUserNotFound
	}
	return &u, nil
}

func (m *Memory) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, db.ErrUserNotFound
}

func (m *Memory) CreateApiKey(ctx context.Context, key *types.ApiKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apiKeys[key.KeyID]; ok {
		return db.ErrAlreadyExists
	}
	m.apiKeys[key.KeyID] = *key
	return nil
}

func (m *Memory) GetApiKey(ctx context.Context, keyID string) (*types.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.apiKeys[keyID]
	if !ok {
		return nil, db.ErrApiKeyNotFound
	}
	return &k, nil
}

func (m *Memory) CreateNode(ctx context.Context, node *types.StorageNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		if n.Name == node.Name {
			return db.ErrAlreadyExists
		}
	}
	m.nodes[node.ID] = *node
	return nil
}

func (m *Memory) GetNode(ctx context.Context, id uuid.UUID) (*types.StorageNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, db.ErrNodeNotFound
	}
	return &n, nil
}

func (m *Memory) GetNodeByName(ctx context.Context, name string) (*types.StorageNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.nodes {
		if n.Name == name {
			n := n
			return &n, nil
		}
	}
	return nil, db.ErrNodeNotFound
}

func (m *Memory) CreateRoot(ctx context.Context, root *types.WorkspaceRoot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roots {
		if r.Bucket == root.Bucket && r.BasePath == root.BasePath && r.NodeID == root.NodeID {
			return db.ErrAlreadyExists
		}
	}
	m.roots[root.ID] = *root
	return nil
}

func (m *Memory) GetRoot(ctx context.Context, id uuid.UUID) (*types.WorkspaceRoot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roots[id]
	if !ok {
		return nil, db.ErrRootNotFound
	}
	return &r, nil
}

func (m *Memory) ListRootsByNode(ctx context.Context, nodeID uuid.UUID) ([]types.WorkspaceRoot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var roots []types.WorkspaceRoot
	for _, r := range m.roots {
		if r.NodeID == nodeID {
			roots = append(roots, r)
		}
	}
	return roots, nil
}

func (m *Memory) CreateWorkspace(ctx context.Context, ws *types.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workspaces {
		if w.Name == ws.Name && w.OwnerID == ws.OwnerID {
			return db.ErrAlreadyExists
		}
	}
	m.workspaces[ws.ID] = *ws
	return nil
}

func (m *Memory) GetWorkspace(ctx context.Context, id uuid.UUID) (*types.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workspaces[id]
	if !ok {
		return nil, db.ErrWorkspaceNotFound
	}
	return &w, nil
}

func (m *Memory) GetWorkspaceByOwnerAndName(ctx context.Context, ownerID uuid.UUID, name string) (*types.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.workspaces {
		if w.OwnerID == ownerID && w.Name == name {
			w := w
			return &w, nil
		}
	}
	return nil, db.ErrWorkspaceNotFound
}

func (m *Memory) ListWorkspaces(ctx context.Context, params *db.ListWorkspacesParams) ([]types.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sharedTo := make(map[uuid.UUID]bool)
	if params != nil && params.ShareeID != nil {
		for _, s := range m.shares {
			if s.ShareeID == *params.ShareeID {
				sharedTo[s.WorkspaceID] = true
			}
		}
	}

	var out []types.Workspace
	for _, w := range m.workspaces {
		if params != nil {
			if params.Name != "" && w.Name != params.Name {
				continue
			}
			if params.OwnerID != nil && w.OwnerID != *params.OwnerID && !sharedTo[w.ID] {
				continue
			}
		}
		out = append(out, w)
	}
	return out, nil
}

func (m *Memory) DeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workspaces[id]; !ok {
		return db.ErrWorkspaceNotFound
	}
	delete(m.workspaces, id)
	for sid, s := range m.shares {
		if s.WorkspaceID == id {
			delete(m.shares, sid)
		}
	}
	return nil
}

func (m *Memory) CreateShare(ctx context.Context, share *types.Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shares {
		if s.WorkspaceID == share.WorkspaceID && s.CreatorID == share.CreatorID && s.ShareeID == share.ShareeID {
			return db.ErrAlreadyExists
		}
	}
	m.shares[share.ID] = *share
	return nil
}

func (m *Memory) ListSharesForSharee(ctx context.Context, shareeID uuid.UUID) ([]types.Share, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var shares []types.Share
	for _, s := range m.shares {
		if s.ShareeID == shareeID {
			shares = append(shares, s)
		}
	}
	return shares, nil
}

func (m *Memory) ListSharesForWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]types.Share, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var shares []types.Share
	for _, s := range m.shares {
		if s.WorkspaceID == workspaceID {
			shares = append(shares, s)
		}
	}
	return shares, nil
}

func (m *Memory) CreateToken(ctx context.Context, token *types.S3Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := *token
	t.WorkspaceIDs = append([]uuid.UUID(nil), token.WorkspaceIDs...)
	t.RootIDs = append([]uuid.UUID(nil), token.RootIDs...)
	m.tokens[token.ID] = t
	return nil
}

func (m *Memory) ListTokens(ctx context.Context, params *db.ListTokensParams) ([]types.S3Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.S3Token
	for _, t := range m.tokens {
		if t.OwnerID != params.OwnerID {
			continue
		}
		if params.NodeID != nil && t.StorageNodeID != *params.NodeID {
			continue
		}
		if !params.ValidAfter.IsZero() && !t.Expiration.After(params.ValidAfter) {
			continue
		}
		t := t
		t.WorkspaceIDs = append([]uuid.UUID(nil), t.WorkspaceIDs...)
		t.RootIDs = append([]uuid.UUID(nil), t.RootIDs...)
		out = append(out, t)
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}

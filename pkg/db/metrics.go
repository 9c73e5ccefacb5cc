// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/workspacesio/workspaces/pkg/types"
)

// Metrics for database operations
var (
	dbQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workspaces_db_query_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation", "status"},
	)

	dbQueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspaces_db_queries_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)
)

func init() {
	prometheus.MustRegister(dbQueryDuration, dbQueryTotal)
}

// recordMetric records timing and status for an operation
func recordMetric(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	dbQueryDuration.WithLabelValues(operation, status).Observe(duration)
	dbQueryTotal.WithLabelValues(operation, status).Inc()
}

// MetricsStore wraps a Store implementation and adds metrics instrumentation
type MetricsStore struct {
	store Store
}

// NewMetricsStore creates a new metrics-instrumented Store wrapper
func NewMetricsStore(store Store) *MetricsStore {
	return &MetricsStore{store: store}
}

// Unwrap returns the underlying Store implementation
func (m *MetricsStore) Unwrap() Store {
	return m.store
}

func (m *MetricsStore) CreateUser(ctx context.Context, user *types.User) error {
	start := time.Now()
	err := m.store.CreateUser(ctx, user)
	recordMetric("create_user", start, err)
	return err
}

func (m *MetricsStore) GetUser(ctx context.Context, id uuid.UUID) (*types.User, error) {
	start := time.Now()
	user, err := m.store.GetUser(ctx, id)
	recordMetric("get_user", start, err)
	return user, err
}

func (m *MetricsStore) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	start := time.Now()
	user, err := m.store.GetUserByUsername(ctx, username)
	recordMetric("get_user_by_username", start, err)
	return user, err
}

func (m *MetricsStore) CreateApiKey(ctx context.Context, key *types.ApiKey) error {
	start := time.Now()
	err := m.store.CreateApiKey(ctx, key)
	recordMetric("create_api_key", start, err)
	return err
}

func (m *MetricsStore) GetApiKey(ctx context.Context, keyID string) (*types.ApiKey, error) {
	start := time.Now()
	key, err := m.store.GetApiKey(ctx, keyID)
	recordMetric("get_api_key", start, err)
	return key, err
}

func (m *MetricsStore) CreateNode(ctx context.Context, node *types.StorageNode) error {
	start := time.Now()
	err := m.store.CreateNode(ctx, node)
	recordMetric("create_node", start, err)
	return err
}

func (m *MetricsStore) GetNode(ctx context.Context, id uuid.UUID) (*types.StorageNode, error) {
	start := time.Now()
	node, err := m.store.GetNode(ctx, id)
	recordMetric("get_node", start, err)
	return node, err
}

func (m *MetricsStore) GetNodeByName(ctx context.Context, name string) (*types.StorageNode, error) {
	start := time.Now()
	node, err := m.store.GetNodeByName(ctx, name)
	recordMetric("get_node_by_name", start, err)
	return node, err
}

func (m *MetricsStore) CreateRoot(ctx context.Context, root *types.WorkspaceRoot) error {
	start := time.Now()
	err := m.store.CreateRoot(ctx, root)
	recordMetric("create_root", start, err)
	return err
}

func (m *MetricsStore) GetRoot(ctx context.Context, id uuid.UUID) (*types.WorkspaceRoot, error) {
	start := time.Now()
	root, err := m.store.GetRoot(ctx, id)
	recordMetric("get_root", start, err)
	return root, err
}

func (m *MetricsStore) ListRootsByNode(ctx context.Context, nodeID uuid.UUID) ([]types.WorkspaceRoot, error) {
	start := time.Now()
	roots, err := m.store.ListRootsByNode(ctx, nodeID)
	recordMetric("list_roots_by_node", start, err)
	return roots, err
}

func (m *MetricsStore) CreateWorkspace(ctx context.Context, ws *types.Workspace) error {
	start := time.Now()
	err := m.store.CreateWorkspace(ctx, ws)
	recordMetric("create_workspace", start, err)
	return err
}

func (m *MetricsStore) GetWorkspace(ctx context.Context, id uuid.UUID) (*types.Workspace, error) {
	start := time.Now()
	ws, err := m.store.GetWorkspace(ctx, id)
	recordMetric("get_workspace", start, err)
	return ws, err
}

func (m *MetricsStore) GetWorkspaceByOwnerAndName(ctx context.Context, ownerID uuid.UUID, name string) (*types.Workspace, error) {
	start := time.Now()
	ws, err := m.store.GetWorkspaceByOwnerAndName(ctx, ownerID, name)
	recordMetric("get_workspace_by_owner_and_name", start, err)
	return ws, err
}

func (m *MetricsStore) ListWorkspaces(ctx context.Context, params *ListWorkspacesParams) ([]types.Workspace, error) {
	start := time.Now()
	res, err := m.store.ListWorkspaces(ctx, params)
	recordMetric("list_workspaces", start, err)
	return res, err
}

func (m *MetricsStore) DeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := m.store.DeleteWorkspace(ctx, id)
	recordMetric("delete_workspace", start, err)
	return err
}

func (m *MetricsStore) CreateShare(ctx context.Context, share *types.Share) error {
	start := time.Now()
	err := m.store.CreateShare(ctx, share)
	recordMetric("create_share", start, err)
	return err
}

func (m *MetricsStore) ListSharesForSharee(ctx context.Context, shareeID uuid.UUID) ([]types.Share, error) {
	start := time.Now()
	shares, err := m.store.ListSharesForSharee(ctx, shareeID)
	recordMetric("list_shares_for_sharee", start, err)
	return shares, err
}

func (m *MetricsStore) ListSharesForWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]types.Share, error) {
	start := time.Now()
	shares, err := m.store.ListSharesForWorkspace(ctx, workspaceID)
	recordMetric("list_shares_for_workspace", start, err)
	return shares, err
}

func (m *MetricsStore) CreateToken(ctx context.Context, token *types.S3Token) error {
	start := time.Now()
	err := m.store.CreateToken(ctx, token)
	recordMetric("create_token", start, err)
	return err
}

func (m *MetricsStore) ListTokens(ctx context.Context, params *ListTokensParams) ([]types.S3Token, error) {
	start := time.Now()
	tokens, err := m.store.ListTokens(ctx, params)
	recordMetric("list_tokens", start, err)
	return tokens, err
}

func (m *MetricsStore) Close() error {
	return m.store.Close()
}

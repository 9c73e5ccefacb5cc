// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/types"
)

const nodeColumns = "id, name, api_url, sts_api_url, creator_id, access_key_id, secret_access_key, region_name, assume_role_arn, created"

func (p *Postgres) CreateNode(ctx context.Context, node *types.StorageNode) error {
	_, err := p.sqldb.ExecContext(ctx, `
		INSERT INTO storage_nodes
			(id, name, api_url, sts_api_url, creator_id, access_key_id,
			 secret_access_key, region_name, assume_role_arn, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		node.ID, node.Name, node.APIURL, node.STSAPIURL, node.CreatorID,
		node.AccessKeyID, node.SecretAccessKey, node.RegionName,
		node.AssumeRoleARN, node.Created,
	)
	if err := mapError(err, nil); err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	return nil
}

func scanNode(row *sql.Row) (*types.StorageNode, error) {
	var n types.StorageNode
	err := row.Scan(&n.ID, &n.Name, &n.APIURL, &n.STSAPIURL, &n.CreatorID,
		&n.AccessKeyID, &n.SecretAccessKey, &n.RegionName, &n.AssumeRoleARN,
		&n.Created)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (p *Postgres) GetNode(ctx context.Context, id uuid.UUID) (*types.StorageNode, error) {
	row := p.sqldb.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM storage_nodes WHERE id = $1`, id)
	n, err := scanNode(row)
	if err != nil {
		return nil, mapError(err, db.ErrNodeNotFound)
	}
	return n, nil
}

func (p *Postgres) GetNodeByName(ctx context.Context, name string) (*types.StorageNode, error) {
	row := p.sqldb.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM storage_nodes WHERE name = $1`, name)
	n, err := scanNode(row)
	if err != nil {
		return nil, mapError(err, db.ErrNodeNotFound)
	}
	return n, nil
}

func (p *Postgres) CreateRoot(ctx context.Context, root *types.WorkspaceRoot) error {
	_, err := p.sqldb.ExecContext(ctx, `
		INSERT INTO workspace_roots (id, node_id, root_type, bucket, base_path, created)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		root.ID, root.NodeID, root.RootType, root.Bucket, root.BasePath, root.Created,
	)
	if err := mapError(err, nil); err != nil {
		return fmt.Errorf("create root: %w", err)
	}
	return nil
}

func (p *Postgres) GetRoot(ctx context.Context, id uuid.UUID) (*types.WorkspaceRoot, error) {
	row := p.sqldb.QueryRowContext(ctx, `
		SELECT id, node_id, root_type, bucket, base_path, created
		FROM workspace_roots WHERE id = $1`, id)
	var r types.WorkspaceRoot
	err := row.Scan(&r.ID, &r.NodeID, &r.RootType, &r.Bucket, &r.BasePath, &r.Created)
	if err != nil {
		return nil, mapError(err, db.ErrRootNotFound)
	}
	return &r, nil
}

func (p *Postgres) ListRootsByNode(ctx context.Context, nodeID uuid.UUID) ([]types.WorkspaceRoot, error) {
	rows, err := p.sqldb.QueryContext(ctx, `
		SELECT id, node_id, root_type, bucket, base_path, created
		FROM workspace_roots WHERE node_id = $1 ORDER BY created`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("list roots: %w", err)
	}
	defer rows.Close()

	var roots []types.WorkspaceRoot
	for rows.Next() {
		var r types.WorkspaceRoot
		if err := rows.Scan(&r.ID, &r.NodeID, &r.RootType, &r.Bucket, &r.BasePath, &r.Created); err != nil {
			return nil, fmt.Errorf("scan root: %w", err)
		}
		roots = append(roots, r)
	}
	return roots, rows.Err()
}

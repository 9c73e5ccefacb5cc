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

const workspaceColumns = "id, name, owner_id, root_id, base_path, created"

func (p *Postgres) CreateWorkspace(ctx context.Context, ws *types.Workspace) error {
	_, err := p.sqldb.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, owner_id, root_id, base_path, created)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ws.ID, ws.Name, ws.OwnerID, ws.RootID, ws.BasePath, ws.Created,
	)
	if err := mapError(err, nil); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	return nil
}

func (p *Postgres) GetWorkspace(ctx context.Context, id uuid.UUID) (*types.Workspace, error) {
	row := p.sqldb.QueryRowContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id)
	var w types.Workspace
	err := row.Scan(&w.ID, &w.Name, &w.OwnerID, &w.RootID, &w.BasePath, &w.Created)
	if err != nil {
		return nil, mapError(err, db.ErrWorkspaceNotFound)
	}
	return &w, nil
}

func (p *Postgres) GetWorkspaceByOwnerAndName(ctx context.Context, ownerID uuid.UUID, name string) (*types.Workspace, error) {
	row := p.sqldb.QueryRowContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE owner_id = $1 AND name = $2`,
		ownerID, name)
	var w types.Workspace
	err := row.Scan(&w.ID, &w.Name, &w.OwnerID, &w.RootID, &w.BasePath, &w.Created)
	if err != nil {
		return nil, mapError(err, db.ErrWorkspaceNotFound)
	}
	return &w, nil
}

func (p *Postgres) ListWorkspaces(ctx context.Context, params *db.ListWorkspacesParams) ([]types.Workspace, error) {
	query := `SELECT DISTINCT w.id, w.name, w.owner_id, w.root_id, w.base_path, w.created
		FROM workspaces w
		LEFT JOIN shares s ON s.workspace_id = w.id
		WHERE 1=1`
	var args []any

	if params != nil {
		if params.Name != "" {
			args = append(args, params.Name)
			query += fmt.Sprintf(" AND w.name = $%d", len(args))
		}
		if params.OwnerID != nil && params.ShareeID != nil {
			args = append(args, *params.OwnerID, *params.ShareeID)
			query += fmt.Sprintf(" AND (w.owner_id = $%d OR s.sharee_id = $%d)", len(args)-1, len(args))
		} else if params.OwnerID != nil {
			args = append(args, *params.OwnerID)
			query += fmt.Sprintf(" AND w.owner_id = $%d", len(args))
		} else if params.ShareeID != nil {
			args = append(args, *params.ShareeID)
			query += fmt.Sprintf(" AND s.sharee_id = $%d", len(args))
		}
	}
	query += " ORDER BY w.created"

	rows, err := p.sqldb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []types.Workspace
	for rows.Next() {
		var w types.Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.OwnerID, &w.RootID, &w.BasePath, &w.Created); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	result, err := p.sqldb.ExecContext(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return db.ErrWorkspaceNotFound
	}
	return nil
}

func (p *Postgres) CreateShare(ctx context.Context, share *types.Share) error {
	var expiration sql.NullTime
	if share.Expiration != nil {
		expiration = sql.NullTime{Time: *share.Expiration, Valid: true}
	}
	_, err := p.sqldb.ExecContext(ctx, `
		INSERT INTO shares (id, workspace_id, creator_id, sharee_id, permission, expiration, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		share.ID, share.WorkspaceID, share.CreatorID, share.ShareeID,
		share.Permission, expiration, share.Created,
	)
	if err := mapError(err, nil); err != nil {
		return fmt.Errorf("create share: %w", err)
	}
	return nil
}

func (p *Postgres) ListSharesForSharee(ctx context.Context, shareeID uuid.UUID) ([]types.Share, error) {
	return p.listShares(ctx, "sharee_id", shareeID)
}

func (p *Postgres) ListSharesForWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]types.Share, error) {
	return p.listShares(ctx, "workspace_id", workspaceID)
}

func (p *Postgres) listShares(ctx context.Context, column string, id uuid.UUID) ([]types.Share, error) {
	rows, err := p.sqldb.QueryContext(ctx, `
		SELECT id, workspace_id, creator_id, sharee_id, permission, expiration, created
		FROM shares WHERE `+column+` = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	var out []types.Share
	for rows.Next() {
		var s types.Share
		var expiration sql.NullTime
		if err := rows.Scan(&s.ID, &s.WorkspaceID, &s.CreatorID, &s.ShareeID,
			&s.Permission, &expiration, &s.Created); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		if expiration.Valid {
			t := expiration.Time
			s.Expiration = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

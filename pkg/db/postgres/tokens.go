// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/types"
)

// CreateToken inserts the token and its workspace/root associations in one
// transaction.
func (p *Postgres) CreateToken(ctx context.Context, token *types.S3Token) error {
	tx, err := p.sqldb.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO s3_tokens
			(id, access_key_id, secret_access_key, session_token, expiration,
			 policy, owner_id, storage_node_id, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		token.ID, token.AccessKeyID, token.SecretAccessKey, token.SessionToken,
		token.Expiration, token.Policy, token.OwnerID, token.StorageNodeID,
		token.Created,
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}

	for _, wsID := range token.WorkspaceIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workspace_s3token (workspace_id, s3token_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, wsID, token.ID); err != nil {
			return fmt.Errorf("insert token workspace association: %w", err)
		}
	}
	for _, rootID := range token.RootIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO root_s3token (root_id, s3token_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, rootID, token.ID); err != nil {
			return fmt.Errorf("insert token root association: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) ListTokens(ctx context.Context, params *db.ListTokensParams) ([]types.S3Token, error) {
	query := `SELECT id, access_key_id, secret_access_key, session_token,
		expiration, policy, owner_id, storage_node_id, created
		FROM s3_tokens WHERE owner_id = $1`
	args := []any{params.OwnerID}

	if params.NodeID != nil {
		args = append(args, *params.NodeID)
		query += fmt.Sprintf(" AND storage_node_id = $%d", len(args))
	}
	if !params.ValidAfter.IsZero() {
		args = append(args, params.ValidAfter)
		query += fmt.Sprintf(" AND expiration > $%d", len(args))
	}

	rows, err := p.sqldb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []types.S3Token
	for rows.Next() {
		var t types.S3Token
		if err := rows.Scan(&t.ID, &t.AccessKeyID, &t.SecretAccessKey,
			&t.SessionToken, &t.Expiration, &t.Policy, &t.OwnerID,
			&t.StorageNodeID, &t.Created); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := p.loadAssociations(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Postgres) loadAssociations(ctx context.Context, token *types.S3Token) error {
	rows, err := p.sqldb.QueryContext(ctx,
		`SELECT workspace_id FROM workspace_s3token WHERE s3token_id = $1`, token.ID)
	if err != nil {
		return fmt.Errorf("load workspace associations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return err
		}
		token.WorkspaceIDs = append(token.WorkspaceIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	rootRows, err := p.sqldb.QueryContext(ctx,
		`SELECT root_id FROM root_s3token WHERE s3token_id = $1`, token.ID)
	if err != nil {
		return fmt.Errorf("load root associations: %w", err)
	}
	defer rootRows.Close()
	for rootRows.Next() {
		var id uuid.UUID
		if err := rootRows.Scan(&id); err != nil {
			return err
		}
		token.RootIDs = append(token.RootIDs, id)
	}
	return rootRows.Err()
}

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

const userColumns = "id, sub, username, email, created"

func (p *Postgres) CreateUser(ctx context.Context, user *types.User) error {
	_, err := p.sqldb.ExecContext(ctx, `
		INSERT INTO users (id, sub, username, email, created)
		VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Sub, user.Username, user.Email, user.Created,
	)
	if err := mapError(err, nil); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (p *Postgres) GetUser(ctx context.Context, id uuid.UUID) (*types.User, error) {
	row := p.sqldb.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	var u types.User
	err := row.Scan(&u.ID, &u.Sub, &u.Username, &u.Email, &u.Created)
	if err != nil {
		return nil, mapError(err, db.ErrUserNotFound)
	}
	return &u, nil
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	row := p.sqldb.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	var u types.User
	err := row.Scan(&u.ID, &u.Sub, &u.Username, &u.Email, &u.Created)
	if err != nil {
		return nil, mapError(err, db.ErrUserNotFound)
	}
	return &u, nil
}

func (p *Postgres) CreateApiKey(ctx context.Context, key *types.ApiKey) error {
	_, err := p.sqldb.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_id, secret_hash, user_id, created)
		VALUES ($1, $2, $3, $4, $5)`,
		key.ID, key.KeyID, key.SecretHash, key.UserID, key.Created,
	)
	if err := mapError(err, nil); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (p *Postgres) GetApiKey(ctx context.Context, keyID string) (*types.ApiKey, error) {
	row := p.sqldb.QueryRowContext(ctx, `
		SELECT id, key_id, secret_hash, user_id, created
		FROM api_keys WHERE key_id = $1`, keyID)
	var k types.ApiKey
	err := row.Scan(&k.ID, &k.KeyID, &k.SecretHash, &k.UserID, &k.Created)
	if err != nil {
		return nil, mapError(err, db.ErrApiKeyNotFound)
	}
	return &k, nil
}

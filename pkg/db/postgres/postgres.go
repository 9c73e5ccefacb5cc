// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

// Package postgres provides a PostgreSQL implementation of the db.Store
// interface.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/workspacesio/workspaces/pkg/db"
)

// Postgres implements db.Store using PostgreSQL as the backing store
type Postgres struct {
	sqldb  *sql.DB
	config db.Config
}

// New opens a PostgreSQL-backed store with the given configuration.
func New(cfg db.Config) (*Postgres, error) {
	sqldb, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	sqldb.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)

	return &Postgres{sqldb: sqldb, config: cfg}, nil
}

// DB exposes the underlying connection pool.
func (p *Postgres) DB() *sql.DB {
	return p.sqldb
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.sqldb.Close()
}

// mapError converts driver-level errors to the db package sentinels.
func mapError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return db.ErrAlreadyExists
	}
	return err
}

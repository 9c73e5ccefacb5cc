// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, 1, migrations[0].version)
	assert.Equal(t, "initial", migrations[0].name)
	assert.Contains(t, migrations[0].sql, "CREATE TABLE")

	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].version, migrations[i-1].version)
	}
}

func TestMigrationsCoverSchema(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)

	var all strings.Builder
	for _, m := range migrations {
		all.WriteString(m.sql)
	}
	schema := all.String()

	for _, table := range []string{
		"users", "api_keys", "storage_nodes", "workspace_roots",
		"workspaces", "shares", "s3_tokens", "workspace_s3token", "root_s3token",
	} {
		assert.Contains(t, schema, table)
	}
}

func TestSplitSQLStatements(t *testing.T) {
	stmts := splitSQLStatements("CREATE TABLE a (id INT);\nCREATE INDEX i ON a (id);\n")
	var nonEmpty []string
	for _, s := range stmts {
		if strings.TrimSpace(s) != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	assert.Len(t, nonEmpty, 2)
}

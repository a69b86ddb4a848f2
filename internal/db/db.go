// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package db opens the user database and creates its schema.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect
	_ "github.com/jackc/pgx/v5/stdlib"                  // driver
	_ "modernc.org/sqlite"                              // driver
)

var schemas = map[string]string{
	"sqlite3": `CREATE TABLE IF NOT EXISTS "users" (
		"id"           INTEGER PRIMARY KEY AUTOINCREMENT,
		"username"     TEXT NOT NULL UNIQUE,
		"password"     TEXT NOT NULL DEFAULT '',
		"groups"       TEXT NOT NULL DEFAULT '[]',
		"permissions"  TEXT NOT NULL DEFAULT '[]',
		"is_staff"     BOOLEAN NOT NULL DEFAULT 0,
		"is_active"    BOOLEAN NOT NULL DEFAULT 1,
		"is_superuser" BOOLEAN NOT NULL DEFAULT 0
	)`,
	"postgres": `CREATE TABLE IF NOT EXISTS "users" (
		"id"           SERIAL PRIMARY KEY,
		"username"     TEXT NOT NULL UNIQUE,
		"password"     TEXT NOT NULL DEFAULT '',
		"groups"       JSONB NOT NULL DEFAULT '[]',
		"permissions"  JSONB NOT NULL DEFAULT '[]',
		"is_staff"     BOOLEAN NOT NULL DEFAULT false,
		"is_active"    BOOLEAN NOT NULL DEFAULT true,
		"is_superuser" BOOLEAN NOT NULL DEFAULT false
	)`,
}

// Open opens a database from a DSN of the form "sqlite3:<path>" or
// "postgres://...".
func Open(dsn string) (*goqu.Database, error) {
	var dialect, driver, source string

	switch {
	case strings.HasPrefix(dsn, "sqlite3:"):
		dialect, driver, source = "sqlite3", "sqlite", strings.TrimPrefix(dsn, "sqlite3:")
	case strings.HasPrefix(dsn, "postgres:"), strings.HasPrefix(dsn, "postgresql:"):
		dialect, driver, source = "postgres", "pgx", dsn
	default:
		return nil, fmt.Errorf("unsupported database: %q", dsn)
	}

	sqlDB, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if dialect == "sqlite3" {
		// A single connection keeps in-memory databases alive and
		// serializes writes.
		sqlDB.SetMaxOpenConns(1)
	}

	return goqu.New(dialect, sqlDB), nil
}

// Init creates the database schema when it does not exist.
func Init(ctx context.Context, db *goqu.Database) error {
	schema, ok := schemas[db.Dialect()]
	if !ok {
		return fmt.Errorf("no schema for dialect %s", db.Dialect())
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database connection.
func Close(db *goqu.Database) error {
	if c, ok := db.Db.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

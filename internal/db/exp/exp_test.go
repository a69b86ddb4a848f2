// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package exp_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	dbexp "codeberg.org/readeck/authzbridge/internal/db/exp"
)

func openDB(t *testing.T) *goqu.Database {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() }) // nolint:errcheck

	_, err = sqlDB.Exec(`CREATE TABLE "items" ("name" TEXT, "tags" TEXT)`)
	require.NoError(t, err)
	_, err = sqlDB.Exec(`INSERT INTO "items" VALUES
		('a', '["red", "blue"]'),
		('b', '["Blue"]'),
		('c', '[]'),
		('d', 'not json'),
		('e', '{"red": 1}'),
		('f', '["green", "red"]')`)
	require.NoError(t, err)

	return goqu.New("sqlite3", sqlDB)
}

func TestJSONListFilter(t *testing.T) {
	db := openDB(t)
	tags := goqu.T("items").Col("tags")

	tests := []struct {
		name        string
		expressions []exp.BooleanExpression
		expected    []string
	}{
		{"none", nil, []string{"a", "b", "c", "d", "e", "f"}},
		{"eq", []exp.BooleanExpression{tags.Eq("red")}, []string{"a", "f"}},
		{"neq", []exp.BooleanExpression{tags.Neq("red")}, []string{"b", "c", "d", "e"}},
		{"and", []exp.BooleanExpression{tags.Eq("red"), tags.Neq("green")}, []string{"a"}},
		{"like", []exp.BooleanExpression{tags.Like("bl%")}, []string{"a", "b"}},
		{"not like", []exp.BooleanExpression{tags.NotLike("%e%")}, []string{"c", "d", "e"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			for _, prepared := range []bool{false, true} {
				ds := dbexp.JSONListFilter(
					db.From("items").Select("name").Order(goqu.C("name").Asc()).Prepared(prepared),
					test.expressions...,
				)
				res := []string{}
				require.NoError(t, ds.ScanValsContext(context.Background(), &res))
				require.Equal(t, test.expected, res)
			}
		})
	}
}

func TestJSONStringsDataset(t *testing.T) {
	db := openDB(t)

	ds := dbexp.JSONStringsDataset(db.From("items").Select(goqu.C("tags")), "tag")
	res := []string{}
	require.NoError(t, ds.ScanValsContext(context.Background(), &res))
	require.Equal(t, []string{"Blue", "blue", "green", "red"}, res)

	require.Panics(t, func() {
		dbexp.JSONStringsDataset(db.From("items").Select("name", "tags"), "tag")
	})
	require.Panics(t, func() {
		dbexp.JSONStringsDataset(db.From("items", "other").Select("tags"), "tag")
	})
}

func TestPostgresSQL(t *testing.T) {
	pg := goqu.Dialect("postgres")
	groups := goqu.T("users").Col("groups")

	q, _, err := dbexp.JSONListFilter(
		pg.From("users").Select("username").Prepared(true),
		groups.Eq("staff"), groups.NotLike("adm%"),
	).ToSQL()
	require.NoError(t, err)
	require.Contains(t, q, `EXISTS (SELECT "value" FROM jsonb_array_elements_text(`)
	require.Contains(t, q, `CASE jsonb_typeof("users"."groups") WHEN 'array' THEN "users"."groups" ELSE '[]' END`)
	require.Contains(t, q, `NOT EXISTS (SELECT "value" FROM jsonb_array_elements_text(`)
	require.Contains(t, q, `"value" = $1`)
	require.Contains(t, q, `"value" ILIKE $2`)

	q, _, err = dbexp.JSONStringsDataset(pg.From("users").Select(goqu.C("groups")), "name").ToSQL()
	require.NoError(t, err)
	require.Contains(t, q, `SELECT DISTINCT "name" FROM "users", jsonb_array_elements_text(`)
	require.Contains(t, q, `ORDER BY "name" ASC`)
}

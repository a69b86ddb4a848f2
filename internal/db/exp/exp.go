// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package exp provides query expressions on JSON list columns.
//
// List columns are JSON arrays of strings, stored as jsonb with
// PostgreSQL and as text with SQLite. Values that are not an array
// are read as an empty list.
package exp

import (
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// jsonArray returns col when it holds a JSON array and an empty
// array otherwise.
func jsonArray(dialect string, col any) exp.CaseExpression {
	if dialect == "postgres" {
		return goqu.Case().Value(goqu.Func("jsonb_typeof", col)).
			When(goqu.L("'array'"), col).
			Else(goqu.L("'[]'"))
	}

	valid := goqu.Case().Value(goqu.Func("json_valid", col)).
		When(goqu.L("true"), col).
		Else(goqu.L("'[]'"))
	return goqu.Case().Value(goqu.Func("json_type", valid)).
		When(goqu.L("'array'"), valid).
		Else(goqu.L("'[]'"))
}

// elements returns the table function listing the elements of the
// JSON list in col.
func elements(dialect string, col any) exp.SQLFunctionExpression {
	if dialect == "postgres" {
		return goqu.Func("jsonb_array_elements_text", jsonArray(dialect, col))
	}
	return goqu.Func("json_each", jsonArray(dialect, col))
}

// JSONStringsDataset returns a dataset with the sorted distinct values
// of a list column, in a column called name.
//
// The input dataset must have exactly one From() clause and exactly one
// Select() clause, which are the table and the list column.
func JSONStringsDataset(ds *goqu.SelectDataset, name string) *goqu.SelectDataset {
	f := ds.GetClauses().From().Columns()
	c := ds.GetClauses().Select().Columns()

	if len(f) != 1 {
		panic(`"From" clause must contain exactly one element`)
	}
	if len(c) != 1 {
		panic(`"Select" clause must contain exactly one element`)
	}

	dialect := ds.Dialect().Dialect()
	if dialect == "postgres" {
		return ds.Select(goqu.C(name)).
			From(f[0], elements(dialect, c[0]).As(name)).
			Distinct().
			Order(goqu.C(name).Asc())
	}

	value := goqu.T("list_values").Col("value")
	return ds.Select(value.As(name)).
		From(f[0], elements(dialect, c[0]).As("list_values")).
		Where(value.IsNotNull()).
		Distinct().
		Order(goqu.C(name).Asc())
}

// JSONListFilter adds conditions on list columns to a dataset. Each
// expression compares a list column with a value and is true when
// the list contains (Eq, Like) or does not contain (Neq, NotLike)
// a matching element. Like comparisons ignore case.
//
//	JSONListFilter(ds, goqu.T("users").Col("groups").Eq("staff"), goqu.T("users").Col("groups").Neq("admin"))
func JSONListFilter(ds *goqu.SelectDataset, expressions ...exp.BooleanExpression) *goqu.SelectDataset {
	if len(expressions) == 0 {
		return ds
	}

	dialect := ds.Dialect().Dialect()
	like, alias := "like", "list_values"
	if dialect == "postgres" {
		// Aliasing the set returning function names its column.
		like, alias = "ilike", "value"
	}

	res := goqu.And()
	for _, e := range expressions {
		cmp, op := "eq", "EXISTS"
		switch e.Op() {
		case exp.LikeOp:
			cmp = like
		case exp.NotLikeOp:
			cmp, op = like, "NOT EXISTS"
		case exp.NeqOp:
			op = "NOT EXISTS"
		}

		sub := goqu.Dialect(dialect).
			Select(goqu.C("value")).
			From(elements(dialect, e.LHS()).As(alias)).
			Where(goqu.Ex{"value": goqu.Op{cmp: e.RHS()}})

		res = res.Append(goqu.L("? ?", goqu.L(op), sub))
	}

	return ds.Where(res)
}

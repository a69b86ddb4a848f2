// SPDX-FileCopyrightText: Copyright (c) 2020 Artyom Pervukhin
//
// SPDX-License-Identifier: MIT

package csvstruct_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"codeberg.org/readeck/authzbridge/pkg/csvstruct"
)

type upper string

func (u *upper) UnmarshalText(text []byte) error {
	*u = upper(strings.ToUpper(string(text)))
	return nil
}

type row struct {
	Name    string  `csv:"name,username" case:"ignore"`
	Age     int8    `csv:"age"`
	Count   uint    `csv:"count"`
	Score   float64 `csv:"score"`
	Active  bool    `csv:"active"`
	Code    upper   `csv:"code"`
	Ignored string  `csv:"-"`
	private string  //nolint:unused
}

func TestScanner(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		scan, err := csvstruct.NewScanner([]string{"code", "USERNAME", "age", "count", "score", "active", "Ignored"}, new(row))
		require.NoError(t, err)

		var dst row
		require.NoError(t, scan([]string{"ab", "alice", "42", "0x10", "1.5", "true", "x"}, &dst))
		require.Equal(t, row{Name: "alice", Age: 42, Count: 16, Score: 1.5, Active: true, Code: "AB"}, dst)
	})

	t.Run("partial", func(t *testing.T) {
		scan, err := csvstruct.NewScanner([]string{"other", "name"}, new(row))
		require.NoError(t, err)

		dst := row{Age: 3}
		require.NoError(t, scan([]string{"x", "bob"}, &dst))
		require.Equal(t, row{Name: "bob", Age: 3}, dst)
	})

	t.Run("errors", func(t *testing.T) {
		scan, err := csvstruct.NewScanner([]string{"name", "age"}, new(row))
		require.NoError(t, err)

		var dst row
		require.ErrorContains(t, scan([]string{"bob", "300"}, &dst), "value out of range")
		require.EqualError(t, scan([]string{"bob"}, &dst), "missing column 2")
		require.Panics(t, func() { _ = scan([]string{"bob", "1"}, &struct{}{}) })
	})

	t.Run("no match", func(t *testing.T) {
		_, err := csvstruct.NewScanner([]string{"foo"}, new(row))
		require.EqualError(t, err, "no matches found between header and csv-tagged struct fields")
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := csvstruct.NewScanner([]string{"list"}, &struct {
			List []string `csv:"list"`
		}{})
		require.EqualError(t, err, `field "List" has unsupported type`)
		require.Panics(t, func() { _, _ = csvstruct.NewScanner([]string{"a"}, row{}) })
	})
}

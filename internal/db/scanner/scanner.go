// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package scanner provides tools for scanning goqu results.
package scanner

import (
	"context"
	"iter"

	"github.com/doug-martin/goqu/v9"
)

// Iterator is the [iter.Seq2] returned by [Iter] and [IterTransform].
type Iterator[T any] iter.Seq2[*T, error]

// Iter returns an [iter.Seq2] that performs a [*goqu.SelectDataset] query
// and yields a pointer to T and an error after scanning each row into T.
func Iter[T any](ctx context.Context, ds *goqu.SelectDataset) Iterator[T] {
	return func(yield func(*T, error) bool) {
		s, err := ds.Executor().ScannerContext(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer s.Close() //nolint:errcheck

		for s.Next() {
			r := new(T)
			if err = s.ScanStruct(r); err != nil {
				yield(nil, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err = s.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// IterTransform returns an [iter.Seq2] that runs [Iter] and yields
// each item after running a transformation function on it.
func IterTransform[SRC, RES any](ctx context.Context, ds *goqu.SelectDataset, fn func(*SRC) *RES) Iterator[RES] {
	return func(yield func(*RES, error) bool) {
		for src, err := range Iter[SRC](ctx, ds) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(fn(src), nil) {
				return
			}
		}
	}
}

// Collect runs an [Iterator] until its end or its first error.
func Collect[T any](it Iterator[T]) ([]*T, error) {
	res := []*T{}
	for x, err := range it {
		if err != nil {
			return nil, err
		}
		res = append(res, x)
	}
	return res, nil
}

// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package ctxr_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"codeberg.org/readeck/authzbridge/pkg/ctxr"
)

type (
	nameKey  struct{}
	countKey struct{}
)

func TestWithChecker(t *testing.T) {
	withName, checkName := ctxr.WithChecker[string](nameKey{})
	_, checkCount := ctxr.WithChecker[int](countKey{})

	ctx := context.Background()
	_, ok := checkName(ctx)
	require.False(t, ok)

	ctx = withName(ctx, "alice")
	v, ok := checkName(ctx)
	require.True(t, ok)
	require.Equal(t, "alice", v)

	_, ok = checkCount(ctx)
	require.False(t, ok)

	// A value of another type under the same key is not returned.
	_, checkWrong := ctxr.WithChecker[int](nameKey{})
	_, ok = checkWrong(ctx)
	require.False(t, ok)
}

func TestGetter(t *testing.T) {
	getCount := ctxr.Getter[int](countKey{})
	ctx := ctxr.Setter[int](countKey{})(context.Background(), 3)

	require.Equal(t, 3, getCount(ctx))
	require.PanicsWithValue(t, "ctxr: no ctxr_test.countKey value in context", func() {
		getCount(context.Background())
	})
}

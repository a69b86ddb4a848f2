// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package credentials_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"codeberg.org/readeck/authzbridge/internal/credentials"
)

func TestSet(t *testing.T) {
	assert := require.New(t)

	s := credentials.NewSet("b", "a", "b", "c")
	assert.Equal(3, s.Len())
	assert.True(s.Has("a"))
	assert.False(s.Has("d"))
	assert.Equal([]string{"a", "b", "c"}, s.Sorted())
	assert.True(s.Equal(credentials.NewSet("c", "b", "a")))
	assert.False(s.Equal(credentials.NewSet("a")))

	assert.Equal([]string{}, credentials.NewSet().Sorted())
	assert.Equal([]string{}, credentials.Set(nil).Sorted())
}

func TestSetup(t *testing.T) {
	assert := require.New(t)

	_, ok := credentials.FromContext(context.Background())
	assert.False(ok)

	ctx, c := credentials.Setup(context.Background(), "foo", []string{"admin"}, nil)
	assert.Equal("foo", c.Identity)
	assert.False(c.Anonymous())
	assert.Equal([]string{"admin"}, c.Groups.Sorted())
	assert.Equal(0, c.Permissions.Len())

	got, ok := credentials.FromContext(ctx)
	assert.True(ok)
	assert.Same(c, got)
	assert.Same(c, credentials.Get(ctx))
}

func TestGetAnonymous(t *testing.T) {
	assert := require.New(t)

	c := credentials.Get(context.Background())
	assert.True(c.Anonymous())
	assert.Equal(0, c.Groups.Len())
	assert.Equal(0, c.Permissions.Len())
}

func TestMarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		c        *credentials.Credentials
		expected string
	}{
		{
			"anonymous",
			&credentials.Credentials{},
			`{"identity":null,"groups":[],"permissions":[]}`,
		},
		{
			"user",
			&credentials.Credentials{
				Identity:    "foo",
				Groups:      credentials.NewSet("staff", "admin"),
				Permissions: credentials.NewSet("app2.read"),
			},
			`{"identity":"foo","groups":["admin","staff"],"permissions":["app2.read"]}`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b, err := json.Marshal(test.c)
			require.NoError(t, err)
			require.JSONEq(t, test.expected, string(b))
		})
	}
}

// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package authz_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"codeberg.org/readeck/authzbridge/internal/auth"
	"codeberg.org/readeck/authzbridge/internal/authz"
	"codeberg.org/readeck/authzbridge/internal/credentials"
)

type fakeUser struct {
	name        string
	groups      []string
	permissions []string
	staff       bool
	active      bool
	superuser   bool
}

func (u *fakeUser) Identity() string      { return u.name }
func (u *fakeUser) Groups() []string      { return u.groups }
func (u *fakeUser) Permissions() []string { return u.permissions }
func (u *fakeUser) IsStaff() bool         { return u.staff }
func (u *fakeUser) IsActive() bool        { return u.active }
func (u *fakeUser) IsSuperuser() bool     { return u.superuser }

func TestProject(t *testing.T) {
	tests := []struct {
		name        string
		user        auth.Principal
		identity    string
		groups      []string
		permissions []string
	}{
		{
			"foo",
			&fakeUser{
				name:        "foo",
				groups:      []string{"admin", "staff"},
				permissions: []string{"app2.read"},
			},
			"foo",
			[]string{"admin", "staff"},
			[]string{"app2.read"},
		},
		{
			"duplicates",
			&fakeUser{
				name:        "bar",
				groups:      []string{"staff", "admin", "staff"},
				permissions: []string{"b", "a", "b"},
			},
			"bar",
			[]string{"admin", "staff"},
			[]string{"a", "b"},
		},
		{
			"no groups",
			&fakeUser{name: "baz"},
			"baz",
			[]string{},
			[]string{},
		},
		{"anonymous", auth.Anonymous{}, "", []string{}, []string{}},
		{"nil", nil, "", []string{}, []string{}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := require.New(t)

			// Existing credentials are replaced.
			ctx, _ := credentials.Setup(context.Background(), "old", []string{"old"}, []string{"old.perm"})
			ctx = authz.Project(ctx, test.user)

			c, ok := credentials.FromContext(ctx)
			assert.True(ok)
			assert.Equal(test.identity, c.Identity)
			assert.Equal(test.groups, c.Groups.Sorted())
			assert.Equal(test.permissions, c.Permissions.Sorted())
			assert.Equal(test.identity == "", c.Anonymous())
		})
	}
}

func TestProjector(t *testing.T) {
	user := &fakeUser{
		name:        "foo",
		groups:      []string{"admin", "staff"},
		permissions: []string{"app2.read"},
	}

	var got *credentials.Credentials
	h := authz.Projector(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = credentials.FromContext(r.Context())
	}))

	t.Run("user", func(t *testing.T) {
		got = nil
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(auth.WithUser(r.Context(), user))
		h.ServeHTTP(httptest.NewRecorder(), r)

		require.NotNil(t, got)
		require.Equal(t, "foo", got.Identity)
		require.True(t, got.Groups.Equal(credentials.NewSet("admin", "staff")))
		require.True(t, got.Permissions.Equal(credentials.NewSet("app2.read")))
	})

	t.Run("no user", func(t *testing.T) {
		got = nil
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotNil(t, got)
		require.True(t, got.Anonymous())
		require.Equal(t, 0, got.Groups.Len())
		require.Equal(t, 0, got.Permissions.Len())
	})

	t.Run("after auth.Init", func(t *testing.T) {
		got = nil
		chain := auth.Init()(h)
		chain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotNil(t, got)
		require.True(t, got.Anonymous())
	})
}

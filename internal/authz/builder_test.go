// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package authz_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"codeberg.org/readeck/authzbridge/internal/acls"
	"codeberg.org/readeck/authzbridge/internal/authz"
)

type logRecorder struct {
	bytes.Buffer
}

func (l *logRecorder) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(l, &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func (l *logRecorder) Lines() []string {
	return strings.Split(strings.TrimSpace(l.String()), "\n")
}

func app2Control() (*acls.ACL, error) {
	return acls.New("/app2").Deny("/secret", "This is a secret"), nil
}

func TestBuild(t *testing.T) {
	errBroken := errors.New("broken declaration")

	catalog := authz.Catalog{
		"app2":  app2Control,
		"app3":  func() (*acls.ACL, error) { return acls.New("/app3"), nil },
		"empty": func() (*acls.ACL, error) { return nil, nil },
		"none":  func() (*acls.ACL, error) { return nil, authz.ErrNoDeclaration },
		"bad":   func() (*acls.ACL, error) { return nil, errBroken },
		"dup":   func() (*acls.ACL, error) { return acls.New("/app2"), nil },
		"nilfn": nil,
	}

	tests := []struct {
		apps        []string
		expectedLog string
		expected    []string
	}{
		{
			[]string{"app1", "app2"},
			`level=INFO msg="The following applications are secured: app2"`,
			[]string{"/app2"},
		},
		{
			[]string{"app3", "app1", "app2"},
			`level=INFO msg="The following applications are secured: app3, app2"`,
			[]string{"/app3", "/app2"},
		},
		{
			[]string{"app1", "empty", "none", "nilfn"},
			`level=WARN msg="No application is secured"`,
			[]string{},
		},
		{
			nil,
			`level=WARN msg="No application is secured"`,
			[]string{},
		},
	}

	for _, test := range tests {
		t.Run(strings.Join(test.apps, ","), func(t *testing.T) {
			assert := require.New(t)
			rec := new(logRecorder)

			b := &authz.Builder{Provider: catalog, Logger: rec.Logger()}
			c, err := b.Build(test.apps)
			assert.NoError(err)
			assert.Equal([]string{test.expectedLog}, rec.Lines())

			scopes := []string{}
			for _, a := range c.ACLs() {
				scopes = append(scopes, a.Scope())
			}
			assert.Equal(test.expected, scopes)
		})
	}

	t.Run("provider error", func(t *testing.T) {
		rec := new(logRecorder)
		b := &authz.Builder{Provider: catalog, Logger: rec.Logger()}
		_, err := b.Build([]string{"app2", "bad"})
		require.ErrorIs(t, err, errBroken)
		require.EqualError(t, err, "application bad: broken declaration")
		require.Empty(t, rec.String())
	})

	t.Run("duplicate scope", func(t *testing.T) {
		b := &authz.Builder{Provider: catalog, Logger: new(logRecorder).Logger()}
		_, err := b.Build([]string{"app2", "dup"})
		require.ErrorIs(t, err, acls.ErrDuplicateScope)
	})
}

func TestBuildSharedRegistry(t *testing.T) {
	assert := require.New(t)

	shared := acls.NewCollection()
	assert.NoError(shared.Add(acls.New("/other")))

	b := &authz.Builder{
		Registry: shared,
		Provider: authz.Catalog{"app2": app2Control},
		Logger:   new(logRecorder).Logger(),
	}
	c, err := b.Build([]string{"app1", "app2"})
	assert.NoError(err)
	assert.Same(shared, c)
	assert.Equal(2, c.Len())

	t.Run("failed build", func(t *testing.T) {
		b := &authz.Builder{
			Registry: shared,
			Provider: authz.Catalog{
				"app3":   func() (*acls.ACL, error) { return acls.New("/app3"), nil },
				"broken": func() (*acls.ACL, error) { return acls.New("/broken").Deny("/:", ""), nil },
				"dup":    func() (*acls.ACL, error) { return acls.New("/other"), nil },
			},
			Logger: new(logRecorder).Logger(),
		}

		_, err := b.Build([]string{"app3", "broken"})
		require.ErrorContains(t, err, `application broken: /broken: invalid pattern "/:"`)

		_, err = b.Build([]string{"app3", "dup"})
		require.ErrorIs(t, err, acls.ErrDuplicateScope)

		require.Equal(t, 2, shared.Len())
		_, ok := shared.Get("/app3")
		require.False(t, ok)
	})

	shared.Freeze()
	b.Provider = authz.Catalog{"app3": func() (*acls.ACL, error) { return acls.New("/app3"), nil }}
	_, err = b.Build([]string{"app3"})
	assert.ErrorIs(err, acls.ErrFrozen)
}

func TestSecuredScenario(t *testing.T) {
	assert := require.New(t)
	rec := new(logRecorder)

	b := &authz.Builder{
		Provider: authz.DirProvider{Root: "testdata", Predicates: authz.NamedPredicates()},
		Logger:   rec.Logger(),
	}
	c, err := b.Build([]string{"app1", "app2"})
	assert.NoError(err)
	assert.Equal([]string{`level=INFO msg="The following applications are secured: app2"`}, rec.Lines())

	assert.Equal(1, c.Len())
	acl, ok := c.Get("/app2")
	assert.True(ok)

	rules := acl.Rules()
	assert.Len(rules, 1)
	assert.Equal("/secret", rules[0].Pattern)
	assert.Equal(acls.Deny, rules[0].Effect)
	assert.Equal("This is a secret", rules[0].Message)
}

func TestDirProvider(t *testing.T) {
	p := authz.DirProvider{Root: "testdata", Predicates: authz.NamedPredicates()}

	t.Run("missing", func(t *testing.T) {
		_, err := p.Declaration("app1")
		require.ErrorIs(t, err, authz.ErrNoDeclaration)
	})

	t.Run("no control", func(t *testing.T) {
		acl, err := p.Declaration("app3")
		require.NoError(t, err)
		require.Nil(t, acl)
	})

	t.Run("named predicate", func(t *testing.T) {
		acl, err := p.Declaration("staff")
		require.NoError(t, err)
		require.Equal(t, "/staff", acl.Scope())
	})

	t.Run("broken", func(t *testing.T) {
		_, err := p.Declaration("broken")
		require.EqualError(t, err, `rule 1: unknown predicate "is_wizard"`)

		b := &authz.Builder{Provider: p, Logger: new(logRecorder).Logger()}
		_, err = b.Build([]string{"app2", "broken"})
		require.EqualError(t, err, `application broken: rule 1: unknown predicate "is_wizard"`)
	})

	t.Run("invalid name", func(t *testing.T) {
		for _, name := range []string{"", "..", "../app2", `a\b`} {
			_, err := p.Declaration(name)
			require.Error(t, err)
			require.NotErrorIs(t, err, authz.ErrNoDeclaration)
		}
	})
}

func TestProviders(t *testing.T) {
	p := authz.Providers{
		authz.Catalog{"app4": func() (*acls.ACL, error) { return acls.New("/app4"), nil }},
		authz.DirProvider{Root: "testdata"},
	}

	acl, err := p.Declaration("app4")
	require.NoError(t, err)
	require.Equal(t, "/app4", acl.Scope())

	acl, err = p.Declaration("app2")
	require.NoError(t, err)
	require.Equal(t, "/app2", acl.Scope())

	_, err = p.Declaration("app1")
	require.ErrorIs(t, err, authz.ErrNoDeclaration)
}

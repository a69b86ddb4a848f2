// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package acls_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"codeberg.org/readeck/authzbridge/internal/acls"
	"codeberg.org/readeck/authzbridge/internal/credentials"
	"codeberg.org/readeck/authzbridge/internal/predicates"
)

func TestDecode(t *testing.T) {
	named := acls.NamedPredicates{
		"never": predicates.Func(func(context.Context, *credentials.Credentials) error {
			return predicates.Deny("never met")
		}),
	}

	src := `
scope: /app2
rules:
  - deny: /secret
    message: This is a secret
  - allow: /reports
    require: {permission: app2.read}
  - allow: /staff
    require:
      authenticated: true
      group: staff
  - allow: /either
    require:
      any:
        - group: admin
        - permission: app2.write
  - allow: /never
    require: {predicate: never}
    message: Nope
  - allow: /public
`
	acl, err := acls.Decode(strings.NewReader(src), named)
	require.NoError(t, err)
	require.Equal(t, "/app2", acl.Scope())
	require.Len(t, acl.Rules(), 6)

	ctx, c := credentials.Setup(context.Background(), "foo", []string{"staff"}, []string{"app2.read"})

	tests := []struct {
		path     string
		expected string
	}{
		{"/app2/secret", "This is a secret"},
		{"/app2/reports", ""},
		{"/app2/staff", ""},
		{"/app2/either", "At least one of the following predicates must be met: " +
			`The current user must belong to the group "admin", The user must have the "app2.write" permission`},
		{"/app2/never", "Nope"},
		{"/app2/public", ""},
	}

	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			decided, err := acl.Decide(ctx, c, test.path)
			require.True(t, decided)
			if test.expected == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, test.expected)
		})
	}
}

func TestDecodeLiteralPatterns(t *testing.T) {
	src := `
scope: /app5
rules:
  - deny: /files/[draft
  - allow: /report.pdf
  - allow: /(v1)+/:id
`
	acl, err := acls.Decode(strings.NewReader(src), nil)
	require.NoError(t, err)

	c := acls.NewCollection(acls.DenyByDefault("closed"))
	require.NoError(t, c.Add(acl))
	ctx, _ := credentials.Setup(context.Background(), "", nil, nil)

	tests := []struct {
		path     string
		expected string
	}{
		{"/app5/other", "closed"},
		{"/app5/files/[draft", "Access denied"},
		{"/app5/files/[draft/x", "Access denied"},
		{"/app5/files/d", "closed"},
		{"/app5/report.pdf", ""},
		{"/app5/reportXpdf", "closed"},
		{"/app5/(v1)+/12", ""},
		{"/app5/v1v1/12", "closed"},
	}

	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			err := c.Authorize(ctx, test.path)
			if test.expected == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, test.expected)
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	for _, src := range []string{"", "# nothing here\n"} {
		acl, err := acls.Decode(strings.NewReader(src), nil)
		require.NoError(t, err)
		require.Nil(t, acl)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{"no scope", "rules: []", "declaration has no scope"},
		{
			"allow and deny",
			"scope: /a\nrules:\n  - allow: /x\n    deny: /x",
			"rule 1: allow and deny are exclusive",
		},
		{
			"deny requirement",
			"scope: /a\nrules:\n  - deny: /x\n    require: {group: admin}",
			"rule 1: a deny rule has no requirement",
		},
		{
			"no effect",
			"scope: /a\nrules:\n  - message: hello",
			"rule 1: allow or deny is required",
		},
		{
			"unknown predicate",
			"scope: /a\nrules:\n  - allow: /x\n  - allow: /y\n    require: {predicate: is_wizard}",
			`rule 2: unknown predicate "is_wizard"`,
		},
		{
			"bad parameter",
			"scope: /a\nrules:\n  - allow: /x\n  - deny: /files/:name.pdf",
			`rule 2: invalid pattern "/files/:name.pdf": bad parameter ":name.pdf"`,
		},
		{
			"empty requirement",
			"scope: /a\nrules:\n  - allow: /x\n    require: {}",
			"rule 1: empty requirement",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := acls.Decode(strings.NewReader(test.src), nil)
			require.EqualError(t, err, test.expected)
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		_, err := acls.Decode(strings.NewReader("scope: /a\ncontrol: yes"), nil)
		require.ErrorContains(t, err, "field control not found")
	})

	t.Run("syntax", func(t *testing.T) {
		_, err := acls.Decode(strings.NewReader("scope: [/a"), nil)
		require.Error(t, err)
	})
}

// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package acls

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"codeberg.org/readeck/authzbridge/internal/credentials"
	"codeberg.org/readeck/authzbridge/internal/predicates"
)

func TestRuleMatch(t *testing.T) {
	tests := []struct {
		pattern  string
		rel      string
		expected bool
	}{
		{"/", "/", true},
		{"/", "/anything/else", true},
		{"/secret", "/secret", true},
		{"/secret", "/secret/file", true},
		{"/secret", "/secrets", false},
		{"/secret", "/", false},
		{"/files/*", "/files/a/b", true},
		{"/files/*", "/other/a", false},
		{"/users/:id/edit", "/users/12/edit", true},
		{"/users/:id/edit", "/users/12/view", false},
		{"/report.pdf", "/report.pdf", true},
		{"/report.pdf", "/reportXpdf", false},
		{"/files/[draft]/*", "/files/[draft]/a", true},
		{"/files/[draft]/*", "/files/d/a", false},
		{"/a+b/:id", "/a+b/1", true},
		{"/a+b/:id", "/aab/1", false},
		{"/v1:beta/*", "/v1:beta/x", true},
		{"/v1:beta/*", "/v1x/x", false},
		{"/files/:", "/files/x", false},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("%s~%s", test.pattern, test.rel), func(t *testing.T) {
			r := Rule{Pattern: test.pattern}
			require.Equal(t, test.expected, r.Match(test.rel))
		})
	}
}

func TestACLContains(t *testing.T) {
	tests := []struct {
		scope       string
		path        string
		expectedRel string
		expectedOK  bool
	}{
		{"/app2", "/app2", "/", true},
		{"/app2", "/app2/", "/", true},
		{"/app2", "/app2/secret", "/secret", true},
		{"/app2", "/app21/secret", "", false},
		{"/app2", "/", "", false},
		{"app2/", "/app2/x/../secret", "/secret", true},
		{"/", "/app2/secret", "/app2/secret", true},
		{"", "/", "/", true},
	}

	for _, test := range tests {
		t.Run(test.scope+"~"+test.path, func(t *testing.T) {
			rel, ok := New(test.scope).Contains(test.path)
			require.Equal(t, test.expectedOK, ok)
			require.Equal(t, test.expectedRel, rel)
		})
	}
}

func TestACLDecide(t *testing.T) {
	acl := New("/app2").
		Deny("/secret", "This is a secret").
		Allow("/secret/public", nil, "").
		Allow("/reports", predicates.HasPermission("app2.read"), "").
		Allow("/admin", predicates.InGroup("admin"), "Admins only").
		Deny("/admin", "never used").
		Deny("/closed", "")

	user := &credentials.Credentials{
		Identity:    "foo",
		Groups:      credentials.NewSet("staff"),
		Permissions: credentials.NewSet("app2.read"),
	}
	anonymous := credentials.Get(context.Background())

	tests := []struct {
		path            string
		c               *credentials.Credentials
		expectedDecided bool
		expectedErr     string
	}{
		{"/app2/secret", user, true, "This is a secret"},
		{"/app2/secret/deep", user, true, "This is a secret"},
		{"/app2/secret/public", user, true, ""},
		{"/app2/reports", user, true, ""},
		{"/app2/reports", anonymous, true, `The user must have the "app2.read" permission`},
		{"/app2/admin", user, true, "Admins only"},
		{"/app2/closed", user, true, DefaultDenyMessage},
		{"/app2/other", user, false, ""},
		{"/app1/secret", user, false, ""},
	}

	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			assert := require.New(t)
			decided, err := acl.Decide(context.Background(), test.c, test.path)
			assert.Equal(test.expectedDecided, decided)
			if test.expectedErr == "" {
				assert.NoError(err)
				return
			}
			assert.EqualError(err, test.expectedErr)
			_, ok := predicates.AsNotAuthorized(err)
			assert.True(ok)
		})
	}
}

func TestACLRules(t *testing.T) {
	acl := New("/app2").Deny("secret/", "This is a secret")
	rules := acl.Rules()

	require.Len(t, rules, 1)
	require.Equal(t, "/secret", rules[0].Pattern)
	require.Equal(t, Deny, rules[0].Effect)
	require.Equal(t, "deny", rules[0].Effect.String())

	rules[0].Pattern = "/changed"
	require.Equal(t, "/secret", acl.Rules()[0].Pattern)
}

func TestACLErr(t *testing.T) {
	acl := New("/app5").
		Allow("/ok", nil, "").
		Deny("/files/:name.pdf", "").
		Deny("/:", "")

	require.EqualError(t, acl.Err(), `invalid pattern "/files/:name.pdf": bad parameter ":name.pdf"`)
	require.Len(t, acl.Rules(), 1)

	err := NewCollection().Add(acl)
	require.ErrorContains(t, err, "/app5: invalid pattern")
}

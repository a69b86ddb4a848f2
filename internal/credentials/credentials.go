// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package credentials holds the request scoped credentials that
// authorization predicates are evaluated against.
//
// A request gets its [Credentials] from [Setup], once, before any
// predicate runs. The credentials are owned by the request and must
// not be shared with another one.
package credentials

import (
	"context"
	"encoding/json"

	"codeberg.org/readeck/authzbridge/pkg/ctxr"
)

type ctxCredentialsKey struct{}

var withCredentials, checkCredentials = ctxr.WithChecker[*Credentials](ctxCredentialsKey{})

// Credentials describes the principal of the current request.
// An empty Identity is the anonymous user.
type Credentials struct {
	Identity    string
	Groups      Set
	Permissions Set
}

// Anonymous returns true when no identity is set.
func (c *Credentials) Anonymous() bool {
	return c.Identity == ""
}

// MarshalJSON renders the credentials with sorted groups and permissions.
func (c *Credentials) MarshalJSON() ([]byte, error) {
	var identity *string
	if c.Identity != "" {
		identity = &c.Identity
	}

	return json.Marshal(struct {
		Identity    *string  `json:"identity"`
		Groups      []string `json:"groups"`
		Permissions []string `json:"permissions"`
	}{identity, c.Groups.Sorted(), c.Permissions.Sorted()})
}

// Setup creates fresh credentials for identity and returns a context
// carrying them. Groups and permissions are seeded with the given values
// and may be overwritten afterward by the caller.
func Setup(ctx context.Context, identity string, groups, permissions []string) (context.Context, *Credentials) {
	c := &Credentials{
		Identity:    identity,
		Groups:      NewSet(groups...),
		Permissions: NewSet(permissions...),
	}
	return withCredentials(ctx, c), c
}

// FromContext returns the credentials stored in ctx.
func FromContext(ctx context.Context) (*Credentials, bool) {
	return checkCredentials(ctx)
}

// Get returns the credentials stored in ctx, or empty anonymous
// credentials when none were set up.
func Get(ctx context.Context) *Credentials {
	if c, ok := checkCredentials(ctx); ok && c != nil {
		return c
	}
	return &Credentials{Groups: Set{}, Permissions: Set{}}
}

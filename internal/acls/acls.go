// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package acls provides path scoped access control lists, the collection
// aggregating them and the group policy used to flatten permissions.
package acls

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"codeberg.org/readeck/authzbridge/internal/credentials"
	"codeberg.org/readeck/authzbridge/internal/predicates"
)

var (
	// ErrDuplicateScope is returned when an ACL scope is already registered.
	ErrDuplicateScope = errors.New("ACL scope already registered")
	// ErrFrozen is returned when adding an ACL to a frozen collection.
	ErrFrozen = errors.New("ACL collection is frozen")
	// ErrNilACL is returned when adding a nil ACL.
	ErrNilACL = errors.New("nil ACL")
)

// Option is a [Collection] option.
type Option func(*Collection)

// DenyByDefault makes the collection refuse access, with msg, to paths
// no ACL decides on.
func DenyByDefault(msg string) Option {
	return func(c *Collection) {
		c.denyByDefault = true
		c.defaultMessage = msg
	}
}

// Collection aggregates ACLs, one per scope.
//
// It's populated once, at startup, then frozen. A frozen collection is
// read only and safe for concurrent use. Adding ACLs concurrently is not.
type Collection struct {
	acls           []*ACL
	scopes         map[string]*ACL
	frozen         bool
	denyByDefault  bool
	defaultMessage string
}

// NewCollection returns an empty [Collection].
func NewCollection(options ...Option) *Collection {
	c := &Collection{
		scopes: map[string]*ACL{},
	}
	for _, f := range options {
		f(c)
	}
	return c
}

// Add registers an ACL. A scope can only be registered once.
func (c *Collection) Add(a *ACL) error {
	if c.frozen {
		return ErrFrozen
	}
	if a == nil {
		return ErrNilACL
	}
	if err := a.Err(); err != nil {
		return fmt.Errorf("%s: %w", a.Scope(), err)
	}
	if _, ok := c.scopes[a.Scope()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateScope, a.Scope())
	}

	c.acls = append(c.acls, a)
	c.scopes[a.Scope()] = a
	return nil
}

// Freeze makes the collection read only.
func (c *Collection) Freeze() {
	c.frozen = true
}

// Frozen returns true after [Collection.Freeze].
func (c *Collection) Frozen() bool {
	return c.frozen
}

// Len returns the number of ACLs.
func (c *Collection) Len() int {
	return len(c.acls)
}

// ACLs returns the registered ACLs in registration order.
func (c *Collection) ACLs() []*ACL {
	return slices.Clone(c.acls)
}

// Get returns the ACL registered for scope.
func (c *Collection) Get(scope string) (*ACL, bool) {
	a, ok := c.scopes[cleanPath(scope)]
	return a, ok
}

// Authorize checks access to p for the credentials of ctx.
// ACLs are tried from the most specific scope to the least specific
// one; the first one with a matching rule decides. It returns a
// [*predicates.NotAuthorizedError] when access is refused.
func (c *Collection) Authorize(ctx context.Context, p string) error {
	creds := credentials.Get(ctx)

	candidates := []*ACL{}
	for _, a := range c.acls {
		if _, ok := a.Contains(p); ok {
			candidates = append(candidates, a)
		}
	}
	slices.SortStableFunc(candidates, func(a, b *ACL) int {
		return cmp.Compare(len(b.Scope()), len(a.Scope()))
	})

	for _, a := range candidates {
		if ok, err := a.Decide(ctx, creds, p); ok {
			return err
		}
	}

	if c.denyByDefault {
		msg := c.defaultMessage
		if msg == "" {
			msg = DefaultDenyMessage
		}
		return predicates.Deny(msg)
	}
	return nil
}

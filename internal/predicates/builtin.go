// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package predicates

import (
	"context"
	"fmt"
	"strings"

	"codeberg.org/readeck/authzbridge/internal/credentials"
)

// NotAnonymous is met when the request has an identity.
func NotAnonymous() Predicate {
	return Func(func(_ context.Context, c *credentials.Credentials) error {
		if c.Anonymous() {
			return Deny("The current user must have been authenticated")
		}
		return nil
	})
}

// InGroup is met when the user belongs to the group.
func InGroup(group string) Predicate {
	return Func(func(_ context.Context, c *credentials.Credentials) error {
		if !c.Groups.Has(group) {
			return Deny(fmt.Sprintf(`The current user must belong to the group "%s"`, group))
		}
		return nil
	})
}

// HasPermission is met when the user was granted the permission.
func HasPermission(permission string) Predicate {
	return Func(func(_ context.Context, c *credentials.Credentials) error {
		if !c.Permissions.Has(permission) {
			return Deny(fmt.Sprintf(`The user must have the "%s" permission`, permission))
		}
		return nil
	})
}

// All is met when every predicate is met. It returns the first failure.
func All(predicates ...Predicate) Predicate {
	return Func(func(ctx context.Context, c *credentials.Credentials) error {
		for _, p := range predicates {
			if err := p.Evaluate(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// Any is met when at least one predicate is met. An empty list is never met.
func Any(predicates ...Predicate) Predicate {
	return Func(func(ctx context.Context, c *credentials.Credentials) error {
		failures := make([]string, 0, len(predicates))
		for _, p := range predicates {
			err := p.Evaluate(ctx, c)
			if err == nil {
				return nil
			}
			if _, ok := AsNotAuthorized(err); !ok {
				return err
			}
			failures = append(failures, err.Error())
		}

		return Deny("At least one of the following predicates must be met: " +
			strings.Join(failures, ", "))
	})
}

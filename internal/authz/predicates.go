// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package authz

import (
	"context"

	"codeberg.org/readeck/authzbridge/internal/acls"
	"codeberg.org/readeck/authzbridge/internal/auth"
	"codeberg.org/readeck/authzbridge/internal/credentials"
	"codeberg.org/readeck/authzbridge/internal/predicates"
)

// flagPredicate checks an account flag of the request's user.
// Users without flags never meet it.
func flagPredicate(flag func(auth.Flags) bool, msg string) predicates.Predicate {
	return predicates.Func(func(ctx context.Context, _ *credentials.Credentials) error {
		if f, ok := auth.GetUser(ctx).(auth.Flags); ok && flag(f) {
			return nil
		}
		return predicates.Deny(msg)
	})
}

// IsStaff is met when the current user belongs to the staff.
func IsStaff() predicates.Predicate {
	return flagPredicate(auth.Flags.IsStaff, "The current user must belong to the staff")
}

// IsActive is met when the current user's account is active.
func IsActive() predicates.Predicate {
	return flagPredicate(auth.Flags.IsActive, "The account for the current user must be active")
}

// IsSuperuser is met when the current user is a superuser.
func IsSuperuser() predicates.Predicate {
	return flagPredicate(auth.Flags.IsSuperuser, "The current user must be a superuser")
}

// NamedPredicates returns the predicates usable by name in ACL
// declaration files.
func NamedPredicates() acls.NamedPredicates {
	return acls.NamedPredicates{
		"is_staff":      IsStaff(),
		"is_active":     IsActive(),
		"is_superuser":  IsSuperuser(),
		"not_anonymous": predicates.NotAnonymous(),
	}
}

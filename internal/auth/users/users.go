// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package users provides the user model and its stores.
package users

import (
	"context"
	"errors"
	"slices"

	"github.com/hlandau/passlib"

	"codeberg.org/readeck/authzbridge/internal/acls"
	"codeberg.org/readeck/authzbridge/internal/auth"
	"codeberg.org/readeck/authzbridge/internal/db/types"
)

func init() {
	if err := passlib.UseDefaults(passlib.Defaults20180601); err != nil {
		panic(err)
	}
}

// User is a user account. It implements [auth.Principal] and [auth.Flags].
type User struct {
	ID         int           `db:"id" goqu:"skipinsert,skipupdate"`
	Username   string        `db:"username"`
	Password   string        `db:"password"`
	GroupNames types.Strings `db:"groups"`
	Grants     types.Strings `db:"permissions"`
	Staff      bool          `db:"is_staff"`
	Active     bool          `db:"is_active"`
	Superuser  bool          `db:"is_superuser"`

	permissions []string `db:"-"`
}

var (
	_ auth.Principal = (*User)(nil)
	_ auth.Flags     = (*User)(nil)
)

// Identity returns the username.
func (u *User) Identity() string {
	return u.Username
}

// Groups returns the user's group names.
func (u *User) Groups() []string {
	return slices.Clone(u.GroupNames)
}

// Permissions returns the user's direct permissions and the permissions
// of its groups, as resolved by the store's policy.
func (u *User) Permissions() []string {
	if u.permissions == nil {
		return u.resolve(nil)
	}
	return slices.Clone(u.permissions)
}

// IsStaff returns the staff flag.
func (u *User) IsStaff() bool { return u.Staff }

// IsActive returns the active flag.
func (u *User) IsActive() bool { return u.Active }

// IsSuperuser returns the superuser flag.
func (u *User) IsSuperuser() bool { return u.Superuser }

// HashPassword returns the hash of password with the current default
// scheme.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	return passlib.Hash(password)
}

// SetPassword hashes and stores a new password.
func (u *User) SetPassword(password string) error {
	h, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Password = h
	return nil
}

// CheckPassword returns true when password matches the user's hash.
// When the hash uses an outdated scheme, it's replaced in place.
func (u *User) CheckPassword(password string) bool {
	if u.Password == "" {
		return false
	}
	newHash, err := passlib.Verify(password, u.Password)
	if err != nil {
		return false
	}
	if newHash != "" {
		u.Password = newHash
	}
	return true
}

func (u *User) resolve(policy acls.Policy) []string {
	perms := slices.Clone([]string(u.Grants))
	if policy != nil {
		perms = append(perms, policy.GetPermissions(u.GroupNames...)...)
	}
	slices.Sort(perms)
	perms = slices.Compact(perms)
	if perms == nil {
		perms = []string{}
	}
	return perms
}

// withPolicy returns a copy of u with its effective permissions.
func (u *User) withPolicy(policy acls.Policy) *User {
	res := *u
	res.GroupNames = slices.Clone(u.GroupNames)
	res.Grants = slices.Clone(u.Grants)
	res.permissions = u.resolve(policy)
	return &res
}

type lookupFunc func(ctx context.Context, username string) (*User, error)

// authenticate checks a user's password with the given lookup function.
// Unknown users, inactive accounts and wrong passwords all return
// [auth.ErrInvalidCredentials].
func authenticate(ctx context.Context, lookup lookupFunc, username, password string) (*User, error) {
	u, err := lookup(ctx, username)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.Active || !u.CheckPassword(password) {
		return nil, auth.ErrInvalidCredentials
	}
	return u, nil
}

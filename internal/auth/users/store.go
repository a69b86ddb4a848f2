// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package users

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"codeberg.org/readeck/authzbridge/internal/acls"
	"codeberg.org/readeck/authzbridge/internal/auth"
)

// MemStore is an in memory, read only, user store.
type MemStore struct {
	users  map[string]*User
	policy acls.Policy
}

var _ auth.Authenticator = (*MemStore)(nil)

// NewMemStore returns a [MemStore] holding the given users. Group
// permissions are flattened with policy, which can be nil.
func NewMemStore(policy acls.Policy, users ...*User) (*MemStore, error) {
	s := &MemStore{
		users:  make(map[string]*User, len(users)),
		policy: policy,
	}
	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("user %d has no username", len(s.users)+1)
		}
		if _, ok := s.users[u.Username]; ok {
			return nil, fmt.Errorf("duplicate user %q", u.Username)
		}
		s.users[u.Username] = u.withPolicy(policy)
	}
	return s, nil
}

// Usernames returns the sorted list of usernames.
func (s *MemStore) Usernames() []string {
	res := make([]string, 0, len(s.users))
	for k := range s.users {
		res = append(res, k)
	}
	slices.Sort(res)
	return res
}

// List returns the users, ordered by username. When group is not
// empty, only its members are returned.
func (s *MemStore) List(group string) []*User {
	res := []*User{}
	for _, name := range s.Usernames() {
		u := s.users[name]
		if group != "" && !slices.Contains(u.GroupNames, group) {
			continue
		}
		res = append(res, u.withPolicy(s.policy))
	}
	return res
}

// GroupNames returns the sorted names of the groups that have at
// least one member.
func (s *MemStore) GroupNames() []string {
	res := []string{}
	for _, u := range s.users {
		res = append(res, u.GroupNames...)
	}
	slices.Sort(res)
	return slices.Compact(res)
}

func (s *MemStore) get(_ context.Context, username string) (*User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return u.withPolicy(s.policy), nil
}

// Lookup returns a copy of the user.
func (s *MemStore) Lookup(ctx context.Context, username string) (auth.Principal, error) {
	u, err := s.get(ctx, username)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks a username and password.
func (s *MemStore) Authenticate(ctx context.Context, username, password string) (auth.Principal, error) {
	u, err := authenticate(ctx, s.get, username, password)
	if err != nil {
		return nil, err
	}
	return u, nil
}

type fileUser struct {
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	Groups      []string `yaml:"groups"`
	Permissions []string `yaml:"permissions"`
	IsStaff     bool     `yaml:"is_staff"`
	IsActive    *bool    `yaml:"is_active"`
	IsSuperuser bool     `yaml:"is_superuser"`
}

// DecodeUsers reads a YAML user list:
//
//	users:
//	  - username: foo
//	    password: $s2$...
//	    groups: [admin, staff]
//	    permissions: [app2.read]
//	    is_staff: true
//
// Accounts are active unless "is_active" is false.
func DecodeUsers(r io.Reader) ([]*User, error) {
	var doc struct {
		Users []fileUser `yaml:"users"`
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, err
	}

	res := make([]*User, len(doc.Users))
	for i, x := range doc.Users {
		res[i] = &User{
			Username:   strings.TrimSpace(x.Username),
			Password:   x.Password,
			GroupNames: x.Groups,
			Grants:     x.Permissions,
			Staff:      x.IsStaff,
			Active:     x.IsActive == nil || *x.IsActive,
			Superuser:  x.IsSuperuser,
		}
	}
	return res, nil
}

// LoadFile returns a [MemStore] with the users of a YAML file, or of
// a CSV file when its extension is ".csv".
func LoadFile(name string, policy acls.Policy) (*MemStore, error) {
	fd, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer fd.Close() // nolint:errcheck

	decode := DecodeUsers
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		decode = DecodeCSV
	}

	users, err := decode(fd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return NewMemStore(policy, users...)
}

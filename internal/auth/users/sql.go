// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package users

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"

	"codeberg.org/readeck/authzbridge/internal/acls"
	"codeberg.org/readeck/authzbridge/internal/auth"
	"codeberg.org/readeck/authzbridge/internal/db/exp"
	"codeberg.org/readeck/authzbridge/internal/db/scanner"
)

// TableName is the user table.
const TableName = "users"

// SQLStore is a user store backed by a database.
type SQLStore struct {
	db     *goqu.Database
	policy acls.Policy
}

var _ auth.Authenticator = (*SQLStore)(nil)

// NewSQLStore returns a [SQLStore]. Group permissions are flattened
// with policy, which can be nil.
func NewSQLStore(db *goqu.Database, policy acls.Policy) *SQLStore {
	return &SQLStore{db: db, policy: policy}
}

// Query returns a prepared [goqu.SelectDataset] that can be extended later.
func (s *SQLStore) Query() *goqu.SelectDataset {
	return s.db.From(goqu.T(TableName)).Prepared(true)
}

// GetOne executes the a query and returns the first result.
// It returns [auth.ErrNotFound] when no user matches.
func (s *SQLStore) GetOne(ctx context.Context, expressions ...goqu.Expression) (*User, error) {
	var u User
	found, err := s.Query().Where(expressions...).Limit(1).ScanStructContext(ctx, &u)

	switch {
	case err != nil:
		return nil, err
	case !found:
		return nil, auth.ErrNotFound
	}

	return u.withPolicy(s.policy), nil
}

// List returns an iterator over all the users, ordered by username.
func (s *SQLStore) List(ctx context.Context) scanner.Iterator[User] {
	ds := s.Query().Order(goqu.C("username").Asc())
	return scanner.IterTransform(ctx, ds, func(u *User) *User {
		return u.withPolicy(s.policy)
	})
}

// ListGroup returns an iterator over the members of a group, ordered
// by username.
func (s *SQLStore) ListGroup(ctx context.Context, group string) scanner.Iterator[User] {
	ds := exp.JSONListFilter(
		s.Query().Order(goqu.C("username").Asc()),
		goqu.T(TableName).Col("groups").Eq(group),
	)
	return scanner.IterTransform(ctx, ds, func(u *User) *User {
		return u.withPolicy(s.policy)
	})
}

// GroupNames returns the sorted names of the groups that have at
// least one member.
func (s *SQLStore) GroupNames(ctx context.Context) ([]string, error) {
	ds := exp.JSONStringsDataset(
		s.Query().Select(goqu.C("groups")),
		"name",
	)

	res := []string{}
	if err := ds.ScanValsContext(ctx, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Create inserts a new user and sets its ID.
func (s *SQLStore) Create(ctx context.Context, u *User) error {
	if u.Username == "" {
		return errors.New("username is required")
	}

	ds := s.db.Insert(TableName).Prepared(true).Rows(u)

	if s.db.Dialect() == "postgres" {
		_, err := ds.Returning(goqu.C("id")).Executor().ScanValContext(ctx, &u.ID)
		return err
	}

	res, err := ds.Executor().ExecContext(ctx)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = int(id)
	return nil
}

// Update saves the user's values.
func (s *SQLStore) Update(ctx context.Context, u *User) error {
	_, err := s.db.Update(TableName).Prepared(true).
		Set(u).
		Where(goqu.C("id").Eq(u.ID)).
		Executor().ExecContext(ctx)
	return err
}

// Lookup returns the user with the given username.
func (s *SQLStore) Lookup(ctx context.Context, username string) (auth.Principal, error) {
	u, err := s.getByName(ctx, username)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks a username and password. When the password hash
// was upgraded during the check, it's saved.
func (s *SQLStore) Authenticate(ctx context.Context, username, password string) (auth.Principal, error) {
	var stored string
	lookup := func(ctx context.Context, name string) (*User, error) {
		u, err := s.getByName(ctx, name)
		if err == nil {
			stored = u.Password
		}
		return u, err
	}

	u, err := authenticate(ctx, lookup, username, password)
	if err != nil {
		return nil, err
	}
	if u.Password != stored {
		if err = s.Update(ctx, u); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (s *SQLStore) getByName(ctx context.Context, username string) (*User, error) {
	return s.GetOne(ctx, goqu.C("username").Eq(username))
}

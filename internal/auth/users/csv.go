// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package users

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"codeberg.org/readeck/authzbridge/pkg/csvstruct"
)

// csvList is a space separated list in a CSV cell.
type csvList []string

func (l *csvList) UnmarshalText(text []byte) error {
	*l = strings.Fields(string(text))
	return nil
}

type csvUser struct {
	Username    string  `csv:"username" case:"ignore"`
	Password    string  `csv:"password,password_hash" case:"ignore"`
	Groups      csvList `csv:"groups" case:"ignore"`
	Permissions csvList `csv:"permissions" case:"ignore"`
	IsStaff     bool    `csv:"is_staff,staff" case:"ignore"`
	IsActive    bool    `csv:"is_active,active" case:"ignore"`
	IsSuperuser bool    `csv:"is_superuser,superuser" case:"ignore"`
}

// DecodeCSV reads users from a CSV document with a header row. The
// "username" column is required. The "groups" and "permissions"
// columns are space separated lists and "password" holds a password
// hash. Accounts are active when there is no "is_active" column.
func DecodeCSV(r io.Reader) ([]*User, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []*User{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !containsFold(header, "username") {
		return nil, errors.New("missing username column")
	}

	scanner, err := csvstruct.NewScanner(header, new(csvUser))
	if err != nil {
		return nil, err
	}

	res := []*User{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		src := &csvUser{IsActive: true}
		if err = scanner(row, src); err != nil {
			return nil, fmt.Errorf("line %d: %w", len(res)+2, err)
		}

		res = append(res, &User{
			Username:   strings.TrimSpace(src.Username),
			Password:   src.Password,
			GroupNames: []string(src.Groups),
			Grants:     []string(src.Permissions),
			Staff:      src.IsStaff,
			Active:     src.IsActive,
			Superuser:  src.IsSuperuser,
		})
	}

	return res, nil
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(strings.TrimSpace(x), s) {
			return true
		}
	}
	return false
}

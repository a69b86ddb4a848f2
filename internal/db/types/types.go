// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package types provides database column types.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Strings is a list of strings stored as a JSON array.
type Strings []string

// Scan loads a JSON array into the list.
func (s *Strings) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*s = Strings{}
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("cannot scan %T into Strings", value)
	}

	res := Strings{}
	if err := json.Unmarshal(b, &res); err != nil {
		return err
	}
	*s = res
	return nil
}

// Value encodes the list as a JSON array.
func (s Strings) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

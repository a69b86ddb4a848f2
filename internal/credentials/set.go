// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package credentials

import (
	"maps"
	"slices"
)

// Set is an unordered set of names.
type Set map[string]struct{}

// NewSet returns a [Set] holding the given names. Duplicates collapse.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has returns true when name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Len returns the number of names in the set.
func (s Set) Len() int {
	return len(s)
}

// Sorted returns the set's names in lexical order.
func (s Set) Sorted() []string {
	res := slices.Sorted(maps.Keys(s))
	if res == nil {
		return []string{}
	}
	return res
}

// Equal returns true when both sets hold the same names.
func (s Set) Equal(o Set) bool {
	return maps.Equal(s, o)
}

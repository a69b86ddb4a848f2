// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package acls

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Group holds permissions and inherits the permissions of its parents.
type Group struct {
	Name        string
	Permissions map[string]struct{}
	Parents     map[string]*Group
}

func newGroup(name string) *Group {
	return &Group{
		Name:        name,
		Permissions: map[string]struct{}{},
		Parents:     map[string]*Group{},
	}
}

// HasPermission returns true when perm is present in the group's
// permission list or in one of its parents.
func (g *Group) HasPermission(perm string) bool {
	if _, ok := g.Permissions[perm]; ok {
		return true
	}
	for _, p := range g.Parents {
		if p.HasPermission(perm) {
			return true
		}
	}

	return false
}

// ListPermissions returns all the group's permissions, including the
// inherited ones.
func (g *Group) ListPermissions() []string {
	perms := []string{}
	for k := range g.Permissions {
		perms = append(perms, k)
	}

	for _, p := range g.Parents {
		perms = append(perms, p.ListPermissions()...)
	}

	slices.Sort(perms)
	perms = slices.Compact(perms)

	return perms
}

func (g *Group) inherits(name string, seen map[string]struct{}) bool {
	if _, ok := seen[g.Name]; ok {
		return false
	}
	seen[g.Name] = struct{}{}

	for n, p := range g.Parents {
		if n == name || p.inherits(name, seen) {
			return true
		}
	}
	return false
}

// Policy is a list of [Group]s. It flattens the permissions a user gets
// through group membership.
type Policy map[string]*Group

// HasPermission returns true when the group holds perm.
func (p Policy) HasPermission(group, perm string) bool {
	if g, ok := p[group]; ok {
		return g.HasPermission(perm)
	}
	return false
}

// GetPermissions returns the permissions of groups, including
// permissions inherited from their parent groups. Unknown groups
// are ignored.
func (p Policy) GetPermissions(groups ...string) []string {
	perms := []string{}
	for _, name := range groups {
		if g, ok := p[name]; ok {
			perms = append(perms, g.ListPermissions()...)
		}
	}

	slices.Sort(perms)
	perms = slices.Compact(perms)
	return perms
}

// ListGroups returns the groups with "parent" as a direct parent group.
func (p Policy) ListGroups(parent string) []string {
	res := []string{}
	for name, g := range p {
		if _, ok := g.Parents[parent]; ok {
			res = append(res, name)
		}
	}

	slices.Sort(res)
	return res
}

// InGroup returns true if permissions from src group are all in dest group.
func (p Policy) InGroup(src, dest string) bool {
	srcPermissions := p.GetPermissions(src)
	dstPermissions := p.GetPermissions(dest)

	dmap := map[string]struct{}{}
	for _, x := range dstPermissions {
		dmap[x] = struct{}{}
	}

	for _, x := range srcPermissions {
		if _, ok := dmap[x]; !ok {
			return false
		}
	}

	return len(srcPermissions) > 0
}

// DeletePermission removes a permission from every group.
func (p Policy) DeletePermission(perm string) {
	for _, g := range p {
		delete(g.Permissions, perm)
	}
}

// LoadPolicy loads a policy from an [io.Reader].
//
// Each non empty line, outside comments, is either:
//
//	p, <group>, <permission>
//	g, <group>, <parent group>
func LoadPolicy(r io.Reader) (Policy, error) {
	br := bufio.NewReader(r)
	permissions := [][2]string{}
	parents := [][2]string{}

	for {
		b, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		line := strings.TrimSpace(b)
		if line != "" && line[0] != '#' {
			fields := []string{}
			for f := range strings.SplitSeq(line, ",") {
				fields = append(fields, strings.TrimSpace(f))
			}

			if len(fields) != 3 || fields[1] == "" || fields[2] == "" {
				return nil, fmt.Errorf("invalid policy line: %s", line)
			}

			switch fields[0] {
			case "p":
				permissions = append(permissions, [2]string(fields[1:3]))
			case "g":
				parents = append(parents, [2]string(fields[1:3]))
			default:
				return nil, fmt.Errorf("invalid policy line: %s", line)
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	policy := Policy{}
	get := func(name string) *Group {
		if _, ok := policy[name]; !ok {
			policy[name] = newGroup(name)
		}
		return policy[name]
	}

	for _, x := range permissions {
		get(x[0]).Permissions[x[1]] = struct{}{}
	}

	for _, x := range parents {
		g, parent := get(x[0]), get(x[1])
		if x[0] == x[1] || parent.inherits(x[0], map[string]struct{}{}) {
			return nil, fmt.Errorf("group cycle: %s -> %s", x[0], x[1])
		}
		g.Parents[x[1]] = parent
	}

	return policy, nil
}

// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package acls

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"codeberg.org/readeck/authzbridge/internal/predicates"
)

// NamedPredicates maps the names usable in a declaration's
// "require.predicate" field to their [predicates.Predicate].
type NamedPredicates map[string]predicates.Predicate

type declaration struct {
	Scope string            `yaml:"scope"`
	Rules []ruleDeclaration `yaml:"rules"`
}

type ruleDeclaration struct {
	Allow   *string      `yaml:"allow"`
	Deny    *string      `yaml:"deny"`
	Message string       `yaml:"message"`
	Require *requirement `yaml:"require"`
}

type requirement struct {
	Permission    string        `yaml:"permission"`
	Group         string        `yaml:"group"`
	Authenticated bool          `yaml:"authenticated"`
	Predicate     string        `yaml:"predicate"`
	All           []requirement `yaml:"all"`
	Any           []requirement `yaml:"any"`
}

// Decode reads a YAML ACL declaration:
//
//	scope: /app2
//	rules:
//	  - deny: /secret
//	    message: This is a secret
//	  - allow: /reports
//	    require: {permission: app2.read}
//
// An empty document declares nothing; Decode then returns a nil ACL
// and no error.
func Decode(r io.Reader, named NamedPredicates) (*ACL, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	d := new(declaration)
	if err := dec.Decode(d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	if d.Scope == "" {
		return nil, errors.New("declaration has no scope")
	}

	acl := New(d.Scope)
	for i, rule := range d.Rules {
		switch {
		case rule.Allow != nil && rule.Deny != nil:
			return nil, fmt.Errorf("rule %d: allow and deny are exclusive", i+1)
		case rule.Deny != nil:
			if rule.Require != nil {
				return nil, fmt.Errorf("rule %d: a deny rule has no requirement", i+1)
			}
			acl.Deny(*rule.Deny, rule.Message)
		case rule.Allow != nil:
			var p predicates.Predicate
			if rule.Require != nil {
				var err error
				if p, err = rule.Require.predicate(named); err != nil {
					return nil, fmt.Errorf("rule %d: %w", i+1, err)
				}
			}
			acl.Allow(*rule.Allow, p, rule.Message)
		default:
			return nil, fmt.Errorf("rule %d: allow or deny is required", i+1)
		}
		if err := acl.Err(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
	}

	return acl, nil
}

func (r requirement) predicate(named NamedPredicates) (predicates.Predicate, error) {
	list := []predicates.Predicate{}

	if r.Authenticated {
		list = append(list, predicates.NotAnonymous())
	}
	if r.Group != "" {
		list = append(list, predicates.InGroup(r.Group))
	}
	if r.Permission != "" {
		list = append(list, predicates.HasPermission(r.Permission))
	}
	if r.Predicate != "" {
		p, ok := named[r.Predicate]
		if !ok {
			return nil, fmt.Errorf("unknown predicate %q", r.Predicate)
		}
		list = append(list, p)
	}
	if len(r.All) > 0 {
		sub, err := requirements(r.All, named)
		if err != nil {
			return nil, err
		}
		list = append(list, predicates.All(sub...))
	}
	if len(r.Any) > 0 {
		sub, err := requirements(r.Any, named)
		if err != nil {
			return nil, err
		}
		list = append(list, predicates.Any(sub...))
	}

	switch len(list) {
	case 0:
		return nil, errors.New("empty requirement")
	case 1:
		return list[0], nil
	}
	return predicates.All(list...), nil
}

func requirements(list []requirement, named NamedPredicates) ([]predicates.Predicate, error) {
	res := make([]predicates.Predicate, len(list))
	for i, r := range list {
		p, err := r.predicate(named)
		if err != nil {
			return nil, err
		}
		res[i] = p
	}
	return res, nil
}

// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package acls

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/casbin/casbin/v2/util"

	"codeberg.org/readeck/authzbridge/internal/credentials"
	"codeberg.org/readeck/authzbridge/internal/predicates"
)

// DefaultDenyMessage is the message of a deny rule declared without one.
const DefaultDenyMessage = "Access denied"

// Effect is the outcome of a matching [Rule].
type Effect int

const (
	// Allow grants access when the rule's predicate is met.
	Allow Effect = iota
	// Deny refuses access.
	Deny
)

func (e Effect) String() string {
	if e == Deny {
		return "deny"
	}
	return "allow"
}

var paramSegment = regexp.MustCompile(`^:[A-Za-z_][A-Za-z0-9_]*$`)

// matchKey returns pattern in the form expected by util.KeyMatch2.
// Only "*" segments and ":param" segments keep a special meaning,
// everything else is matched literally.
func matchKey(pattern string) (string, error) {
	segments := strings.Split(pattern, "/")
	for i, s := range segments {
		switch {
		case s == "*":
		case strings.HasPrefix(s, ":"):
			if !paramSegment.MatchString(s) {
				return "", fmt.Errorf("invalid pattern %q: bad parameter %q", pattern, s)
			}
		default:
			// KeyMatch2 reads any colon as the start of a parameter.
			segments[i] = strings.ReplaceAll(regexp.QuoteMeta(s), ":", `\x3a`)
		}
	}
	return strings.Join(segments, "/"), nil
}

// Rule is a single ACL entry. Its pattern is relative to the ACL scope.
type Rule struct {
	Pattern   string
	Effect    Effect
	Predicate predicates.Predicate
	Message   string

	key string
}

// Match returns true when the rule applies to rel, a path relative
// to the ACL scope. A pattern applies to itself, to every sub path and
// to paths matching it as a casbin KeyMatch2 pattern ("*", ":param").
func (r Rule) Match(rel string) bool {
	if r.Pattern == "/" || rel == r.Pattern || strings.HasPrefix(rel, r.Pattern+"/") {
		return true
	}

	key := r.key
	if key == "" {
		var err error
		if key, err = matchKey(r.Pattern); err != nil {
			return false
		}
	}
	return util.KeyMatch2(rel, key)
}

func (r Rule) evaluate(ctx context.Context, c *credentials.Credentials) error {
	if r.Effect == Deny {
		if r.Message == "" {
			return predicates.Deny(DefaultDenyMessage)
		}
		return predicates.Deny(r.Message)
	}

	if r.Predicate == nil {
		return nil
	}
	err := r.Predicate.Evaluate(ctx, c)
	if err == nil {
		return nil
	}
	if _, ok := predicates.AsNotAuthorized(err); ok && r.Message != "" {
		return predicates.Deny(r.Message)
	}
	return err
}

// ACL is an ordered list of rules under a scope path.
type ACL struct {
	scope string
	rules []Rule
	err   error
}

// New returns an empty [ACL] for the given scope.
func New(scope string) *ACL {
	return &ACL{scope: cleanPath(scope)}
}

// Scope returns the ACL's base path.
func (a *ACL) Scope() string {
	return a.scope
}

// Rules returns a copy of the ACL's rules, in declaration order.
func (a *ACL) Rules() []Rule {
	res := make([]Rule, len(a.rules))
	copy(res, a.rules)
	return res
}

// Err returns the error of the first rule added with an invalid
// pattern. Such a rule is not added and [Collection.Add] refuses the ACL.
func (a *ACL) Err() error {
	return a.err
}

func (a *ACL) add(r Rule) *ACL {
	r.Pattern = cleanPath(r.Pattern)
	key, err := matchKey(r.Pattern)
	if err != nil {
		if a.err == nil {
			a.err = err
		}
		return a
	}
	r.key = key
	a.rules = append(a.rules, r)
	return a
}

// Allow adds a rule granting access to pattern when p is met.
// A nil predicate always grants access. When msg is not empty, it
// replaces the message of an unmet predicate.
func (a *ACL) Allow(pattern string, p predicates.Predicate, msg string) *ACL {
	return a.add(Rule{Pattern: pattern, Effect: Allow, Predicate: p, Message: msg})
}

// Deny adds a rule refusing access to pattern with the given message.
func (a *ACL) Deny(pattern, msg string) *ACL {
	return a.add(Rule{Pattern: pattern, Effect: Deny, Message: msg})
}

// Contains returns the path relative to the ACL scope and true when
// p is under the scope.
func (a *ACL) Contains(p string) (string, bool) {
	p = cleanPath(p)
	switch {
	case a.scope == "/":
		return p, true
	case p == a.scope:
		return "/", true
	case strings.HasPrefix(p, a.scope+"/"):
		return p[len(a.scope):], true
	}
	return "", false
}

// Decide evaluates the ACL for p. It returns false when no rule
// applies, so another ACL or the collection's default can decide.
// The longest matching pattern wins, the first declared rule wins
// a tie.
func (a *ACL) Decide(ctx context.Context, c *credentials.Credentials, p string) (bool, error) {
	rel, ok := a.Contains(p)
	if !ok {
		return false, nil
	}

	var best *Rule
	for i := range a.rules {
		r := &a.rules[i]
		if !r.Match(rel) {
			continue
		}
		if best == nil || len(r.Pattern) > len(best.Pattern) {
			best = r
		}
	}

	if best == nil {
		return false, nil
	}
	return true, best.evaluate(ctx, c)
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

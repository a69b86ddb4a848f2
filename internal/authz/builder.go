// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package authz bridges the authentication layer with the ACL model.
//
// At startup, a [Builder] collects the ACL declared by each installed
// application into one [acls.Collection]. On every request, the
// [Projector] copies the authenticated user's identity, groups and
// permissions into the request credentials that predicates read.
package authz

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/readeck/authzbridge/internal/acls"
)

// ErrNoDeclaration is returned by a [Provider] when an application
// declares no authorization rules.
var ErrNoDeclaration = errors.New("no authorization declaration")

// Provider returns the ACL declared by an application.
//
// It returns [ErrNoDeclaration] when the application has no
// declaration, a nil ACL and no error when a declaration exists but
// holds no ACL, and any other error when the declaration is broken.
type Provider interface {
	Declaration(app string) (*acls.ACL, error)
}

// ProviderFunc returns the ACL of one application.
type ProviderFunc func() (*acls.ACL, error)

// Catalog is a [Provider] of code declared ACLs, keyed by application.
type Catalog map[string]ProviderFunc

// Declaration calls the application's function.
func (c Catalog) Declaration(app string) (*acls.ACL, error) {
	f, ok := c[app]
	if !ok || f == nil {
		return nil, ErrNoDeclaration
	}
	return f()
}

// DirProvider reads "<Root>/<app>.yaml" declarations.
type DirProvider struct {
	Root       string
	Predicates acls.NamedPredicates
}

// Declaration decodes the application's file.
func (p DirProvider) Declaration(app string) (*acls.ACL, error) {
	if app == "" || strings.ContainsAny(app, `/\`) || app == "." || app == ".." {
		return nil, fmt.Errorf("invalid application name %q", app)
	}

	fd, err := os.Open(filepath.Join(p.Root, app+".yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoDeclaration
	}
	if err != nil {
		return nil, err
	}
	defer fd.Close() // nolint:errcheck

	return acls.Decode(fd, p.Predicates)
}

// Providers tries each provider in order. The first one that does not
// return [ErrNoDeclaration] wins.
type Providers []Provider

// Declaration returns the first declaration found.
func (l Providers) Declaration(app string) (*acls.ACL, error) {
	for _, p := range l {
		acl, err := p.Declaration(app)
		if errors.Is(err, ErrNoDeclaration) {
			continue
		}
		return acl, err
	}
	return nil, ErrNoDeclaration
}

// Builder builds the ACL collection of installed applications.
type Builder struct {
	// Registry, when set, is reused and receives the ACLs in place of
	// a new collection. It's left untouched when the build fails.
	Registry *acls.Collection
	Provider Provider
	Logger   *slog.Logger
}

// Build registers the ACL of every application, in order, and returns
// the collection. Applications without a declaration are skipped. Any
// other provider error, or a rejected ACL, stops the build.
func (b *Builder) Build(apps []string) (*acls.Collection, error) {
	registry := b.Registry
	if registry == nil {
		registry = acls.NewCollection()
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	staged := acls.NewCollection()
	secured := []string{}
	for _, app := range apps {
		acl, err := b.Provider.Declaration(app)
		if errors.Is(err, ErrNoDeclaration) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("application %s: %w", app, err)
		}
		if acl == nil {
			continue
		}

		if err = staged.Add(acl); err == nil {
			err = canAdd(registry, acl)
		}
		if err != nil {
			return nil, fmt.Errorf("application %s: %w", app, err)
		}
		secured = append(secured, app)
	}

	for _, acl := range staged.ACLs() {
		if err := registry.Add(acl); err != nil {
			return nil, err
		}
	}

	if len(secured) > 0 {
		logger.Info("The following applications are secured: " + strings.Join(secured, ", "))
	} else {
		logger.Warn("No application is secured")
	}

	return registry, nil
}

// canAdd reports the error [acls.Collection.Add] would return for a
// valid ACL, without adding it.
func canAdd(c *acls.Collection, a *acls.ACL) error {
	if c.Frozen() {
		return acls.ErrFrozen
	}
	if _, ok := c.Get(a.Scope()); ok {
		return fmt.Errorf("%w: %s", acls.ErrDuplicateScope, a.Scope())
	}
	return nil
}

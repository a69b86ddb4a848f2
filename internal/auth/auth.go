// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package auth provides the request authentication layer.
//
// [Init] runs the first active [Provider] and stores the resulting
// [Principal] in the request context. Requests without an active
// provider carry the [Anonymous] principal.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/readeck/authzbridge/pkg/ctxr"
)

var (
	// ErrInvalidCredentials is returned on a failed authentication.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
)

// Principal is the authenticated user of a request.
// An empty identity is the anonymous user.
type Principal interface {
	Identity() string
	Groups() []string
	// Permissions returns all the permissions granted to the user,
	// including the ones inherited from its groups.
	Permissions() []string
}

// Flags are the optional account flags of a [Principal].
type Flags interface {
	IsStaff() bool
	IsActive() bool
	IsSuperuser() bool
}

// Authenticator finds users and checks their passwords.
type Authenticator interface {
	Lookup(ctx context.Context, username string) (Principal, error)
	Authenticate(ctx context.Context, username, password string) (Principal, error)
}

// Provider authenticates a request.
type Provider interface {
	// IsActive returns true when the provider can handle the request.
	IsActive(r *http.Request) bool
	// Authenticate returns the request's principal.
	Authenticate(r *http.Request) (Principal, error)
}

// Challenger is implemented by providers that send a
// WWW-Authenticate header on failure.
type Challenger interface {
	Challenge() string
}

// Anonymous is the principal of unauthenticated requests.
type Anonymous struct{}

// Identity returns an empty string.
func (Anonymous) Identity() string { return "" }

// Groups returns an empty list.
func (Anonymous) Groups() []string { return []string{} }

// Permissions returns an empty list.
func (Anonymous) Permissions() []string { return []string{} }

type (
	ctxUserKey     struct{}
	ctxProviderKey struct{}
)

var (
	withUser, checkUser         = ctxr.WithChecker[Principal](ctxUserKey{})
	withProvider, checkProvider = ctxr.WithChecker[Provider](ctxProviderKey{})
)

// WithUser returns a context carrying p.
func WithUser(ctx context.Context, p Principal) context.Context {
	return withUser(ctx, p)
}

// GetUser returns the principal stored in ctx, nil when there is none.
func GetUser(ctx context.Context) Principal {
	if p, ok := checkUser(ctx); ok {
		return p
	}
	return nil
}

// GetRequestUser returns the request's principal, nil when there is none.
func GetRequestUser(r *http.Request) Principal {
	return GetUser(r.Context())
}

// GetRequestProvider returns the provider that authenticated the request.
func GetRequestProvider(r *http.Request) Provider {
	if p, ok := checkProvider(r.Context()); ok {
		return p
	}
	return nil
}

// IsAuthenticated returns true when p is a known, non anonymous, user.
func IsAuthenticated(p Principal) bool {
	return p != nil && p.Identity() != ""
}

// Init returns a middleware that authenticates the request with the
// first active provider.
func Init(providers ...Provider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			for _, p := range providers {
				if !p.IsActive(r) {
					continue
				}

				user, err := p.Authenticate(r)
				if err != nil {
					slog.Warn("authentication failed", slog.Any("err", err))
					unauthorized(w, p)
					return
				}

				ctx = withProvider(ctx, p)
				ctx = withUser(ctx, user)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(ctx, Anonymous{})))
		})
	}
}

// Required is a middleware refusing anonymous requests.
func Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthenticated(GetRequestUser(r)) {
			unauthorized(w, GetRequestProvider(r))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, p Provider) {
	if c, ok := p.(Challenger); ok && c.Challenge() != "" {
		w.Header().Set("WWW-Authenticate", c.Challenge())
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(http.StatusText(http.StatusUnauthorized) + "\n")) // nolint:errcheck
}

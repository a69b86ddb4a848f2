// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package predicates provides boolean checks over request credentials.
//
// A [Predicate] either succeeds silently or returns a [*NotAuthorizedError]
// carrying a human readable message. Callers translate this error into an
// access denied response; it is an expected outcome, not a server error.
package predicates

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/readeck/authzbridge/internal/credentials"
)

// Predicate is an authorization check.
type Predicate interface {
	Evaluate(ctx context.Context, c *credentials.Credentials) error
}

// Func is a function implementing [Predicate].
type Func func(ctx context.Context, c *credentials.Credentials) error

// Evaluate calls f.
func (f Func) Evaluate(ctx context.Context, c *credentials.Credentials) error {
	return f(ctx, c)
}

// NotAuthorizedError is returned by an unmet predicate.
type NotAuthorizedError struct {
	Message string
}

// Deny returns a [*NotAuthorizedError] with the given message.
func Deny(msg string) error {
	return &NotAuthorizedError{Message: msg}
}

func (e *NotAuthorizedError) Error() string {
	return e.Message
}

// StatusCode implements the interface used by server.Err.
func (e *NotAuthorizedError) StatusCode() int {
	return http.StatusForbidden
}

// Log logs the denial as a warning.
func (e *NotAuthorizedError) Log(l *slog.Logger) {
	l.Warn("access denied", slog.String("reason", e.Message))
}

// AsNotAuthorized returns the [*NotAuthorizedError] wrapped in err, if any.
func AsNotAuthorized(err error) (*NotAuthorizedError, bool) {
	var e *NotAuthorizedError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Check evaluates p against the credentials of ctx. When ctx has no
// credentials, p is evaluated against the anonymous user.
func Check(ctx context.Context, p Predicate) error {
	return p.Evaluate(ctx, credentials.Get(ctx))
}

// IsMet returns true when p is met for the credentials of ctx.
func IsMet(ctx context.Context, p Predicate) bool {
	return Check(ctx, p) == nil
}

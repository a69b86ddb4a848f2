// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ctxr provides typed accessors to context values.
//
// Keys should be values of unexported struct types.
package ctxr

import (
	"context"
	"fmt"
)

type (
	// ContextSetter returns a new context carrying a value.
	ContextSetter[T any] func(context.Context, T) context.Context
	// ContextChecker returns a value from a context and true when the
	// value is present and of type T.
	ContextChecker[T any] func(context.Context) (T, bool)
	// ContextGetter returns a value from a context. It panics when the
	// value is missing.
	ContextGetter[T any] func(context.Context) T
)

// Setter returns a [ContextSetter] for key.
func Setter[T any](key any) ContextSetter[T] {
	return func(ctx context.Context, val T) context.Context {
		return context.WithValue(ctx, key, val)
	}
}

// Checker returns a [ContextChecker] for key.
func Checker[T any](key any) ContextChecker[T] {
	return func(ctx context.Context) (T, bool) {
		v, ok := ctx.Value(key).(T)
		return v, ok
	}
}

// Getter returns a [ContextGetter] for key.
func Getter[T any](key any) ContextGetter[T] {
	check := Checker[T](key)
	return func(ctx context.Context) T {
		v, ok := check(ctx)
		if !ok {
			panic(fmt.Sprintf("ctxr: no %T value in context", key))
		}
		return v
	}
}

// WithChecker returns a [ContextSetter] and a [ContextChecker] for key.
func WithChecker[T any](key any) (ContextSetter[T], ContextChecker[T]) {
	return Setter[T](key), Checker[T](key)
}

// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"codeberg.org/readeck/authzbridge/pkg/kvstore"
)

// CachedAuthenticator remembers successful password checks for a
// while, so that a user sending its credentials on every request,
// as with Basic authentication, only pays for a password hash
// verification once.
//
// A cached check skips the password verification but the user is
// always looked up again, and refused when its account is inactive.
// Cache keys are an HMAC of the credentials with a key that is local
// to the authenticator.
type CachedAuthenticator struct {
	Authenticator
	store kvstore.Store
	ttl   time.Duration
	key   []byte
}

// NewCachedAuthenticator returns a [CachedAuthenticator] keeping
// entries in store for ttl.
func NewCachedAuthenticator(a Authenticator, store kvstore.Store, ttl time.Duration) *CachedAuthenticator {
	key := make([]byte, 32)
	rand.Read(key) // nolint:errcheck
	return &CachedAuthenticator{
		Authenticator: a,
		store:         store,
		ttl:           ttl,
		key:           key,
	}
}

func (c *CachedAuthenticator) cacheKey(username, password string) string {
	h := hmac.New(sha256.New, c.key)
	h.Write([]byte(username)) // nolint:errcheck
	h.Write([]byte{0})        // nolint:errcheck
	h.Write([]byte(password)) // nolint:errcheck
	return "auth:" + hex.EncodeToString(h.Sum(nil))
}

// Authenticate implements [Authenticator].
func (c *CachedAuthenticator) Authenticate(ctx context.Context, username, password string) (Principal, error) {
	key := c.cacheKey(username, password)

	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("authentication cache", slog.Any("err", err))
	}
	if ok && v == username {
		p, err := c.Lookup(ctx, username)
		if err == nil {
			if f, isFlags := p.(Flags); !isFlags || f.IsActive() {
				return p, nil
			}
		}
		c.store.Del(ctx, key) // nolint:errcheck
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	p, err := c.Authenticator.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if err = c.store.Set(ctx, key, username, c.ttl); err != nil {
		slog.Warn("authentication cache", slog.Any("err", err))
	}
	return p, nil
}

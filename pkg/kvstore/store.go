// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package kvstore provides a very basic key/value store with expiration,
// in memory or backed by redis.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store is a very basic key/value store.
type Store interface {
	// Get returns the value of key and true, or false when the key
	// does not exist.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set inserts or replaces the value of key. A zero expiration
	// keeps the value forever.
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	// Del removes key.
	Del(ctx context.Context, key string) error
}

// RedisStore implements [Store] with redis.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore returns a [RedisStore] instance. The prefix is used for
// each key operation.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
	}
}

// OpenRedis connects to the redis server of a "redis://" URL.
func OpenRedis(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err = rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() // nolint:errcheck
		return nil, fmt.Errorf("redis: %w", err)
	}
	return NewRedisStore(rdb, prefix), nil
}

// key returns a key with the store's namespace prefix.
func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return res, true, nil
}

// Set implements [Store].
func (s *RedisStore) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	return s.rdb.Set(ctx, s.key(key), value, expiration).Err()
}

// Del implements [Store].
func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

type memEntry struct {
	value   string
	expires time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemStore is a [Store] using a simple in memory map. Expired entries
// are removed when read and by [MemStore.Purge].
type MemStore struct {
	sync.RWMutex
	data map[string]memEntry
	now  func() time.Time
}

// NewMemStore returns a MemStore instance.
func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]memEntry),
		now:  time.Now,
	}
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, key string) (string, bool, error) {
	s.RLock()
	e, ok := s.data[key]
	s.RUnlock()

	if ok && e.expired(s.now()) {
		s.Lock()
		if e, ok = s.data[key]; ok && e.expired(s.now()) {
			delete(s.data, key)
		}
		s.Unlock()
		return "", false, nil
	}
	return e.value, ok, nil
}

// Set implements [Store].
func (s *MemStore) Set(_ context.Context, key, value string, expiration time.Duration) error {
	e := memEntry{value: value}
	if expiration > 0 {
		e.expires = s.now().Add(expiration)
	}

	s.Lock()
	defer s.Unlock()
	s.data[key] = e
	return nil
}

// Del implements [Store].
func (s *MemStore) Del(_ context.Context, key string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.data, key)
	return nil
}

// Len returns the number of entries, including the expired ones
// that were not purged yet.
func (s *MemStore) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.data)
}

// Purge removes the expired entries.
func (s *MemStore) Purge() {
	s.Lock()
	defer s.Unlock()
	now := s.now()
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
		}
	}
}

package cache

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// LocalBackend is an in-process Backend for deployments without Redis. It
// holds at most size entries, each for the ttl given at construction; the
// per-call ttl of Set is ignored.
type LocalBackend struct {
	lru *expirable.LRU[string, string]
}

var _ Backend = (*LocalBackend)(nil)

func NewLocalBackend(size int, ttl time.Duration) *LocalBackend {
	return &LocalBackend{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Get returns redis.Nil for absent keys, like the Redis client.
func (l *LocalBackend) Get(_ context.Context, key string) (string, error) {
	v, ok := l.lru.Get(key)
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (l *LocalBackend) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	switch v := value.(type) {
	case string:
		l.lru.Add(key, v)
	case []byte:
		l.lru.Add(key, string(v))
	default:
		return fmt.Errorf("local cache: unsupported value type %T", value)
	}
	return nil
}

// FlushByPattern removes keys matching a glob pattern.
func (l *LocalBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	var deleted int64
	for _, key := range l.lru.Keys() {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return deleted, fmt.Errorf("local cache: bad pattern %q: %w", pattern, err)
		}
		if ok && l.lru.Remove(key) {
			deleted++
		}
	}
	return deleted, nil
}

func (l *LocalBackend) Len() int {
	return l.lru.Len()
}

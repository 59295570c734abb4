package snapshot

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/redis"
)

// KV is the subset of the redis client the store needs.
type KV interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetMany(ctx context.Context, values map[string][]byte) error
}

var _ KV = (*pkgredis.Client)(nil)

// RedisStore keeps artifacts under "<prefix><snapshot>:<artifact>" keys
// without expiry.
type RedisStore struct {
	kv       KV
	prefix   string
	snapshot string
}

func NewRedisStore(kv KV, prefix, snapshotName string) *RedisStore {
	return &RedisStore{kv: kv, prefix: prefix, snapshot: snapshotName}
}

func (r *RedisStore) Put(ctx context.Context, name string, data []byte) error {
	if err := r.kv.Set(ctx, r.key(name), data, 0); err != nil {
		return fmt.Errorf("storing artifact %q in redis: %w", name, err)
	}
	return nil
}

// PutAll writes all artifacts in one MULTI/EXEC transaction.
func (r *RedisStore) PutAll(ctx context.Context, artifacts map[string][]byte) error {
	values := make(map[string][]byte, len(artifacts))
	for name, data := range artifacts {
		values[r.key(name)] = data
	}
	if err := r.kv.SetMany(ctx, values); err != nil {
		return fmt.Errorf("storing snapshot %q in redis: %w", r.snapshot, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := r.kv.GetBytes(ctx, r.key(name))
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, fmt.Errorf("%s: %w", r.key(name), apperrors.ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("loading artifact %q from redis: %w", name, err)
	}
	return data, nil
}

func (r *RedisStore) key(name string) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, r.snapshot, name)
}

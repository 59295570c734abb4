package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(ctx, config.SnapshotConfig{Backend: config.BackendFS, Dir: dir}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, store.(*DirStore).Dir())

	store, err = Open(ctx, config.SnapshotConfig{Backend: config.BackendRedis, KeyPrefix: "bm25:", Name: "x"}, newFakeKV(), nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)

	_, err = Open(ctx, config.SnapshotConfig{Backend: config.BackendRedis}, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = Open(ctx, config.SnapshotConfig{Backend: config.BackendPostgres, Table: "bm25_artifacts"}, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = Open(ctx, config.SnapshotConfig{Backend: "s3"}, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

package snapshot

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/postgres"
)

// Open builds the store selected by cfg.Backend. kv is required for the
// redis backend and pg for the postgres backend, whose table is created
// if missing.
func Open(ctx context.Context, cfg config.SnapshotConfig, kv KV, pg *postgres.Client) (Store, error) {
	switch cfg.Backend {
	case config.BackendFS, "":
		return NewDirStore(cfg.Dir), nil
	case config.BackendRedis:
		if kv == nil {
			return nil, apperrors.Invalidf("snapshot backend %q needs redis enabled", cfg.Backend)
		}
		return NewRedisStore(kv, cfg.KeyPrefix, cfg.Name), nil
	case config.BackendPostgres:
		if pg == nil {
			return nil, apperrors.Invalidf("snapshot backend %q needs postgres enabled", cfg.Backend)
		}
		store, err := NewPostgresStore(pg, cfg.Table, cfg.Name)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("preparing snapshot table: %w", err)
		}
		return store, nil
	default:
		return nil, apperrors.Invalidf("unknown snapshot backend %q", cfg.Backend)
	}
}

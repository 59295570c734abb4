package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/postgres"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresStore keeps artifacts as bytea rows keyed by (snapshot, name).
type PostgresStore struct {
	client   *postgres.Client
	table    string
	snapshot string
}

func NewPostgresStore(client *postgres.Client, table, snapshotName string) (*PostgresStore, error) {
	if !identRe.MatchString(table) {
		return nil, apperrors.Invalidf("invalid artifact table name %q", table)
	}
	return &PostgresStore{client: client, table: table, snapshot: snapshotName}, nil
}

// EnsureSchema creates the artifact table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	snapshot   TEXT        NOT NULL,
	name       TEXT        NOT NULL,
	payload    BYTEA       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (snapshot, name)
)`, p.table)
	if _, err := p.client.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating table %s: %w", p.table, err)
	}
	return nil
}

func (p *PostgresStore) upsertQuery() string {
	return fmt.Sprintf(`INSERT INTO %s (snapshot, name, payload, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (snapshot, name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`, p.table)
}

func (p *PostgresStore) Put(ctx context.Context, name string, data []byte) error {
	if _, err := p.client.DB.ExecContext(ctx, p.upsertQuery(), p.snapshot, name, data); err != nil {
		return fmt.Errorf("storing artifact %q in postgres: %w", name, err)
	}
	return nil
}

// PutAll upserts every artifact inside one transaction.
func (p *PostgresStore) PutAll(ctx context.Context, artifacts map[string][]byte) error {
	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	query := p.upsertQuery()
	return p.client.InTx(ctx, func(tx *sql.Tx) error {
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, query, p.snapshot, name, artifacts[name]); err != nil {
				return fmt.Errorf("storing artifact %q in postgres: %w", name, err)
			}
		}
		return nil
	})
}

func (p *PostgresStore) Get(ctx context.Context, name string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE snapshot = $1 AND name = $2`, p.table)
	var data []byte
	err := p.client.DB.QueryRowContext(ctx, query, p.snapshot, name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", p.snapshot, name, apperrors.ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("loading artifact %q from postgres: %w", name, err)
	}
	return data, nil
}

package records

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/postgres"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresSource reads records from a table, ordered by id so positions
// are stable between rebuilds.
//
// The default layout is:
//
//	CREATE TABLE records (
//	    id   TEXT PRIMARY KEY,
//	    text TEXT NOT NULL
//	);
type PostgresSource struct {
	db     *postgres.Client
	query  string
	logger *slog.Logger
}

func NewPostgresSource(db *postgres.Client, cfg config.RecordsConfig) (*PostgresSource, error) {
	for _, ident := range []string{cfg.Table, cfg.IDColumn, cfg.TextColumn} {
		if !identRe.MatchString(ident) {
			return nil, apperrors.Invalidf("invalid records identifier %q", ident)
		}
	}
	return &PostgresSource{
		db: db,
		query: fmt.Sprintf(`SELECT %s::text, COALESCE(%s, '') FROM %s ORDER BY %s`,
			cfg.IDColumn, cfg.TextColumn, cfg.Table, cfg.IDColumn),
		logger: slog.Default().With("component", "records-postgres"),
	}, nil
}

func (p *PostgresSource) List(ctx context.Context) ([]Record, error) {
	rows, err := p.db.DB.QueryContext(ctx, p.query)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Text); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	p.logger.Debug("records listed", "count", len(recs))
	return recs, nil
}

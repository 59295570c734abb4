package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/redis"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	closers    []func() error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "indexer",
		Short: "Fit, inspect and query BM25 index snapshots",
		Long: `indexer builds BM25 snapshots from the record store or a corpus file
and writes them to the configured snapshot backend.

Examples:
  indexer fit --input corpus.txt
  indexer query "quick brown fox" --limit 5
  indexer inspect
  indexer request --reason "nightly import"`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			a.close()
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "configs/development.yaml", "path to config file")

	cmd.AddCommand(
		newFitCmd(a),
		newQueryCmd(a),
		newInspectCmd(a),
		newRequestCmd(a),
	)
	return cmd
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closing connection", "error", err)
		}
	}
	a.closers = nil
}

// postgres connects when the config enables it and returns nil otherwise.
func (a *app) postgres() (*postgres.Client, error) {
	if !a.cfg.Postgres.Enabled {
		return nil, nil
	}
	pg, err := postgres.New(a.cfg.Postgres)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pg.Close)
	return pg, nil
}

// store opens the configured snapshot backend.
func (a *app) store(ctx context.Context, pg *postgres.Client) (snapshot.Store, error) {
	var kv snapshot.KV
	if a.cfg.Snapshot.Backend == config.BackendRedis {
		redisClient, err := pkgredis.NewClient(a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisClient.Close)
		kv = redisClient
	}
	if a.cfg.Snapshot.Backend == config.BackendPostgres && pg == nil {
		return nil, fmt.Errorf("snapshot backend %q needs postgres.enabled", config.BackendPostgres)
	}
	return snapshot.Open(ctx, a.cfg.Snapshot, kv, pg)
}

func (a *app) engineOptions() (indexer.Options, error) {
	return indexer.OptionsFromConfig(a.cfg.BM25)
}

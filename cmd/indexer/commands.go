package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/records"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/resilience"
)

func newFitCmd(a *app) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit an index and write its snapshot",
		Long: `Fit reads every record, fits a BM25 index and writes the snapshot to the
configured backend. Records come from --input, one document per line with
ids "1", "2", ..., or from the postgres records table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pg, err := a.postgres()
			if err != nil {
				return err
			}
			var source records.Source
			switch {
			case input != "":
				source = records.NewFileSource(input)
			case pg != nil:
				pgSource, err := records.NewPostgresSource(pg, a.cfg.Records)
				if err != nil {
					return err
				}
				source = pgSource
			default:
				return errors.New("no corpus: pass --input or enable postgres")
			}
			store, err := a.store(ctx, pg)
			if err != nil {
				return err
			}
			opts, err := a.engineOptions()
			if err != nil {
				return err
			}

			exec := executor.New(executor.Options{Source: source, Store: store, Engine: opts})
			res, err := exec.Rebuild(ctx)
			if err != nil {
				return err
			}
			slog.Info("snapshot written",
				"backend", a.cfg.Snapshot.Backend,
				"snapshot", a.cfg.Snapshot.Name,
				"documents", res.Documents,
				"vocabulary", res.Vocabulary,
				"duration", res.Duration,
			)
			fmt.Fprintf(cmd.OutOrStdout(), "fitted %d documents, %d terms\n", res.Documents, res.Vocabulary)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "newline-delimited corpus file")
	return cmd
}

func newQueryCmd(a *app) *cobra.Command {
	var limit int
	var explain bool
	cmd := &cobra.Command{
		Use:   "query <query>",
		Short: "Rank the snapshot's records against a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")
			pg, err := a.postgres()
			if err != nil {
				return err
			}
			store, err := a.store(ctx, pg)
			if err != nil {
				return err
			}
			opts, err := a.engineOptions()
			if err != nil {
				return err
			}
			exec := executor.New(executor.Options{Store: store, Engine: opts})
			var ok bool
			err = resilience.WithTimeout(ctx, a.cfg.Snapshot.LoadTimeout, "snapshot-restore", func(ctx context.Context) error {
				var err error
				ok, err = exec.Restore(ctx)
				return err
			})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no snapshot: %w", apperrors.ErrNotFitted)
			}

			res, err := exec.Search(ctx, query, limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if !explain {
				return enc.Encode(res)
			}
			explanations := make([]*executor.Explanation, 0, len(res.Results))
			for _, hit := range res.Results {
				ex, err := exec.Explain(ctx, query, hit.Position)
				if err != nil {
					return err
				}
				explanations = append(explanations, ex)
			}
			return enc.Encode(explanations)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results, -1 for all")
	cmd.Flags().BoolVar(&explain, "explain", false, "break each score down by query term")
	return cmd
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the frame header of every snapshot artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pg, err := a.postgres()
			if err != nil {
				return err
			}
			store, err := a.store(ctx, pg)
			if err != nil {
				return err
			}

			names := append([]string{executor.ArtifactRecordIDs}, snapshot.Artifacts...)
			artifacts, err := snapshot.ReadAll(ctx, store, names)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ARTIFACT\tCODEC\tCOMPRESSION\tSTORED\tRAW")
			for _, name := range names {
				h, err := segment.ReadHeader(artifacts[name])
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", h.Name, h.Codec, h.Compression, h.PayloadLen, h.RawLen)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fingerprint %s\n", snapshot.Fingerprint(artifacts))
			return nil
		},
	}
}

func newRequestCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Ask running search services to rebuild from the record store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			producer := kafka.NewProducer(a.cfg.Kafka, a.cfg.Kafka.Topics.CorpusRebuild)
			defer producer.Close()

			req := indexer.RebuildRequest{
				RequestID:   uuid.New().String(),
				Reason:      reason,
				RequestedAt: time.Now().UTC(),
			}
			if err := producer.Publish(cmd.Context(), kafka.Event{Key: req.RequestID, Value: req}); err != nil {
				return err
			}
			slog.Info("rebuild request published",
				"request_id", req.RequestID,
				"topic", a.cfg.Kafka.Topics.CorpusRebuild,
			)
			fmt.Fprintln(cmd.OutOrStdout(), req.RequestID)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason attached to the request")
	return cmd
}

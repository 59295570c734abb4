// Package executor serves BM25 queries over the record store. It fits an
// index from the records, persists it as a snapshot, and maps ranked corpus
// positions back to record ids.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/records"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/tracing"
)

// ArtifactRecordIDs holds the record id of every corpus position.
const ArtifactRecordIDs = "record_ids"

// Hit is one ranked record.
type Hit struct {
	RecordID string  `json:"record_id"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

type SearchResult struct {
	Query      string `json:"query"`
	TotalDocs  int    `json:"total_docs"`
	Generation uint64 `json:"generation"`
	Results    []Hit  `json:"results"`
}

// Explanation breaks the score of one record down by query term.
type Explanation struct {
	Query    string                `json:"query"`
	RecordID string                `json:"record_id"`
	Position int                   `json:"position"`
	Score    float64               `json:"score"`
	Terms    []ranker.Contribution `json:"terms"`
}

// Stats describes the serving index.
type Stats struct {
	Fitted     bool      `json:"fitted"`
	Documents  int       `json:"documents"`
	Vocabulary int       `json:"vocabulary"`
	AvgDocLen  float64   `json:"avg_doc_len"`
	K1         float64   `json:"k1"`
	B          float64   `json:"b"`
	Generation uint64    `json:"generation"`
	Tokenizer  string    `json:"tokenizer,omitempty"`
	Source     string    `json:"source,omitempty"`
	FittedAt   time.Time `json:"fitted_at,omitzero"`
}

// RebuildResult summarises a completed rebuild.
type RebuildResult struct {
	Generation uint64        `json:"generation"`
	Documents  int           `json:"documents"`
	Vocabulary int           `json:"vocabulary"`
	Duration   time.Duration `json:"duration_ns"`
}

// Publisher sends index lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Invalidator drops cached query results.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Options struct {
	Source records.Source
	// Store receives a snapshot after every rebuild and serves Restore.
	// Nil disables persistence.
	Store       snapshot.Store
	Engine      indexer.Options
	Publisher   Publisher
	Invalidator Invalidator
	Metrics     *metrics.Metrics
	// Breaker guards snapshot writes and reads.
	Breaker *resilience.CircuitBreaker
	Retry   resilience.RetryConfig
}

// view is an engine together with the record ids of its corpus positions.
type view struct {
	engine     *indexer.Engine
	ids        []string
	generation uint64
	source     string
	fittedAt   time.Time

	// fingerprint of the persisted snapshot this view matches, if any.
	fingerprint string
}

// Executor is safe for concurrent use. Searches read the current view
// without locking; Rebuild and Restore are serialised and swap the view
// in one store.
type Executor struct {
	opts       Options
	current    atomic.Pointer[view]
	generation atomic.Uint64
	rebuildMu  sync.Mutex
	logger     *slog.Logger
}

func New(opts Options) *Executor {
	return &Executor{
		opts:   opts,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Rebuild lists all records, fits a fresh index, persists it and starts
// serving it. On failure the previous index keeps serving.
func (e *Executor) Rebuild(ctx context.Context) (*RebuildResult, error) {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	start := time.Now()
	ctx, span := tracing.Start(ctx, "index.rebuild")
	res, err := e.rebuild(ctx)
	span.End(err)
	span.Log(e.logger)
	if m := e.opts.Metrics; m != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		m.FitsTotal.WithLabelValues("rebuild", status).Inc()
		m.FitDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		e.logger.Error("index rebuild failed", "error", err, "duration", time.Since(start))
		return nil, err
	}
	return res, nil
}

func (e *Executor) rebuild(ctx context.Context) (*RebuildResult, error) {
	if e.opts.Source == nil {
		return nil, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "no record source configured")
	}
	start := time.Now()

	recs, err := e.list(ctx)
	if err != nil {
		return nil, err
	}

	_, fitSpan := tracing.Start(ctx, "fit")
	eng := indexer.New(e.opts.Engine)
	err = eng.Fit(records.Texts(recs))
	fitSpan.SetAttr("documents", len(recs))
	fitSpan.End(err)
	if err != nil {
		return nil, err
	}

	ids := records.IDs(recs)
	_, persistSpan := tracing.Start(ctx, "persist")
	fingerprint, err := e.persist(ctx, eng, ids)
	persistSpan.End(err)
	if err != nil {
		return nil, err
	}

	v := e.install(eng, ids, "rebuild", fingerprint)
	state, _ := eng.State()
	res := &RebuildResult{
		Generation: v.generation,
		Documents:  state.Len(),
		Vocabulary: state.VocabularySize(),
		Duration:   time.Since(start),
	}
	e.afterSwap(ctx, v, res.Duration)
	return res, nil
}

func (e *Executor) list(ctx context.Context) (recs []records.Record, err error) {
	ctx, span := tracing.Start(ctx, "list_records")
	defer func() { span.End(err) }()

	err = resilience.Retry(ctx, "list-records", e.opts.Retry, func() error {
		var listErr error
		recs, listErr = e.opts.Source.List(ctx)
		if errors.Is(listErr, apperrors.ErrInvalidInput) {
			return resilience.Permanent(listErr)
		}
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	if err := records.Validate(recs); err != nil {
		return nil, fmt.Errorf("validating records: %w", err)
	}
	span.SetAttr("records", len(recs))
	return recs, nil
}

// Restore installs the last persisted snapshot. It reports false when the
// store holds no snapshot.
func (e *Executor) Restore(ctx context.Context) (bool, error) {
	return e.restore(ctx, "restore", false)
}

// Reload is Restore for a running service: it installs the persisted
// snapshot only when it differs from the one already serving.
func (e *Executor) Reload(ctx context.Context) (bool, error) {
	return e.restore(ctx, "reload", true)
}

func (e *Executor) restore(ctx context.Context, op string, skipUnchanged bool) (bool, error) {
	if e.opts.Store == nil {
		return false, nil
	}
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	start := time.Now()
	snap, err := e.load(ctx)
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case snap == nil:
		status = "missing"
	case skipUnchanged && e.servingFingerprint() == snap.fingerprint:
		status = "unchanged"
	}
	if m := e.opts.Metrics; m != nil {
		m.FitsTotal.WithLabelValues(op, status).Inc()
	}
	switch status {
	case "error":
		return false, err
	case "missing":
		e.logger.Info("no index snapshot to restore")
		return false, nil
	case "unchanged":
		e.logger.Debug("persisted snapshot already serving", "fingerprint", snap.fingerprint)
		return false, nil
	}
	v := e.install(snap.engine, snap.ids, "snapshot", snap.fingerprint)
	e.afterSwap(ctx, v, time.Since(start))
	return true, nil
}

func (e *Executor) servingFingerprint() string {
	if v := e.current.Load(); v != nil {
		return v.fingerprint
	}
	return ""
}

// loadedSnapshot is a decoded snapshot not yet serving.
type loadedSnapshot struct {
	engine      *indexer.Engine
	ids         []string
	fingerprint string
}

// snapshotArtifacts lists everything persist writes.
var snapshotArtifacts = append(slices.Clone(snapshot.Artifacts), ArtifactRecordIDs)

// load reads every artifact in one pass so the fingerprint and the decoded
// state describe the same bytes. It returns nil when the store is empty.
func (e *Executor) load(ctx context.Context) (*loadedSnapshot, error) {
	var artifacts map[string][]byte
	err := e.guard(func() error {
		ok, err := snapshot.Exists(ctx, e.opts.Store)
		if err != nil || !ok {
			return err
		}
		artifacts, err = snapshot.ReadAll(ctx, e.opts.Store, snapshotArtifacts)
		return err
	})
	e.countSnapshot("load", err)
	if err != nil {
		return nil, fmt.Errorf("restoring snapshot: %w", err)
	}
	if artifacts == nil {
		return nil, nil
	}

	mem := snapshot.NewMemoryStore()
	if err := mem.PutAll(ctx, artifacts); err != nil {
		return nil, err
	}
	eng, err := snapshot.LoadEngine(ctx, mem, e.opts.Engine)
	if err != nil {
		return nil, fmt.Errorf("restoring snapshot: %w", err)
	}
	var ids []string
	if err := snapshot.GetArtifact(ctx, mem, ArtifactRecordIDs, &ids); err != nil {
		return nil, fmt.Errorf("restoring snapshot: %w", err)
	}
	if len(ids) != eng.Len() {
		return nil, apperrors.Corruptf("%d record ids for %d documents", len(ids), eng.Len())
	}
	return &loadedSnapshot{engine: eng, ids: ids, fingerprint: snapshot.Fingerprint(artifacts)}, nil
}

// persist writes the engine state and the record ids, and returns the
// fingerprint of what was written.
func (e *Executor) persist(ctx context.Context, eng *indexer.Engine, ids []string) (string, error) {
	if e.opts.Store == nil {
		return "", nil
	}
	state, err := eng.State()
	if err != nil {
		return "", err
	}
	artifacts, err := snapshot.Encode(state)
	if err != nil {
		return "", err
	}
	idsData, err := segment.Encode(ArtifactRecordIDs, segment.CodecJSON, ids)
	if err != nil {
		return "", err
	}
	artifacts[ArtifactRecordIDs] = idsData

	err = e.guard(func() error {
		return snapshot.Write(ctx, e.opts.Store, artifacts)
	})
	e.countSnapshot("save", err)
	if err != nil {
		return "", fmt.Errorf("persisting snapshot: %w", err)
	}
	return snapshot.Fingerprint(artifacts), nil
}

func (e *Executor) guard(fn func() error) error {
	if e.opts.Breaker == nil {
		return fn()
	}
	return e.opts.Breaker.Execute(fn)
}

func (e *Executor) countSnapshot(op string, err error) {
	if m := e.opts.Metrics; m != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		m.SnapshotOpsTotal.WithLabelValues(op, status).Inc()
	}
}

func (e *Executor) install(eng *indexer.Engine, ids []string, source, fingerprint string) *view {
	v := &view{
		engine:      eng,
		ids:         ids,
		generation:  e.generation.Add(1),
		source:      source,
		fittedAt:    time.Now().UTC(),
		fingerprint: fingerprint,
	}
	e.current.Store(v)
	return v
}

// afterSwap runs the side effects of a new view. Failures are logged; the
// new index is already serving.
func (e *Executor) afterSwap(ctx context.Context, v *view, took time.Duration) {
	state, _ := v.engine.State()
	if m := e.opts.Metrics; m != nil {
		m.CorpusDocuments.Set(float64(state.Len()))
		m.VocabularySize.Set(float64(state.VocabularySize()))
		m.IndexGeneration.Set(float64(v.generation))
	}
	if e.opts.Invalidator != nil {
		if err := e.opts.Invalidator.Invalidate(ctx); err != nil {
			e.logger.Warn("query cache invalidation failed", "error", err)
		}
	}
	if e.opts.Publisher != nil {
		event := indexer.FittedEvent{
			Generation: v.generation,
			Documents:  state.Len(),
			Vocabulary: state.VocabularySize(),
			AvgDocLen:  state.AvgDocLen,
			K1:         state.Params.K1,
			B:          state.Params.B,
			DurationMs: took.Milliseconds(),
			Source:     v.source,
			FittedAt:   v.fittedAt,
		}
		key := strconv.FormatUint(v.generation, 10)
		if err := e.opts.Publisher.Publish(ctx, kafka.Event{Key: key, Value: event}); err != nil {
			e.logger.Warn("publishing index fitted event failed", "generation", v.generation, "error", err)
		}
	}
	e.logger.Info("index serving",
		"generation", v.generation,
		"source", v.source,
		"documents", state.Len(),
		"vocabulary", state.VocabularySize(),
		"duration", took,
	)
}

// Generation of the serving index, zero before the first fit.
func (e *Executor) Generation() uint64 {
	if v := e.current.Load(); v != nil {
		return v.generation
	}
	return 0
}

func (e *Executor) loadView() (*view, error) {
	v := e.current.Load()
	if v == nil {
		return nil, apperrors.ErrNotFitted
	}
	return v, nil
}

// Search ranks every record against query and returns the best limit hits,
// or all records when limit is indexer.All.
func (e *Executor) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	v, err := e.loadView()
	if err != nil {
		e.countQuery("not_fitted")
		return nil, fmt.Errorf("searching: %w", err)
	}
	res, err := v.engine.Search(ctx, query, limit)
	if err != nil {
		e.countQuery("error")
		return nil, err
	}
	hits := make([]Hit, len(res.Positions))
	for i, pos := range res.Positions {
		hits[i] = Hit{
			RecordID: v.ids[pos],
			Position: pos,
			Score:    res.Scores[i],
			Text:     res.Documents[i],
		}
	}
	resultType := "hit"
	if len(hits) == 0 || hits[0].Score == 0 {
		resultType = "zero_result"
	}
	e.countQuery(resultType)
	return &SearchResult{
		Query:      query,
		TotalDocs:  v.engine.Len(),
		Generation: v.generation,
		Results:    hits,
	}, nil
}

func (e *Executor) countQuery(resultType string) {
	if m := e.opts.Metrics; m != nil {
		m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}

// Explain scores the record at position against query term by term.
func (e *Executor) Explain(ctx context.Context, query string, position int) (*Explanation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := e.loadView()
	if err != nil {
		return nil, fmt.Errorf("explaining: %w", err)
	}
	terms, err := v.engine.Explain(query, position)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, c := range terms {
		total += c.Score
	}
	return &Explanation{
		Query:    query,
		RecordID: v.ids[position],
		Position: position,
		Score:    total,
		Terms:    terms,
	}, nil
}

func (e *Executor) Stats() Stats {
	v := e.current.Load()
	if v == nil {
		p := e.opts.Engine.Params
		return Stats{K1: p.K1, B: p.B}
	}
	state, _ := v.engine.State()
	return Stats{
		Fitted:     true,
		Documents:  state.Len(),
		Vocabulary: state.VocabularySize(),
		AvgDocLen:  state.AvgDocLen,
		K1:         state.Params.K1,
		B:          state.Params.B,
		Generation: v.generation,
		Tokenizer:  state.Tokenizer.Version,
		Source:     v.source,
		FittedAt:   v.fittedAt,
	}
}

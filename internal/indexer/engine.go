package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/stats"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

// Options configure an unfitted Engine.
type Options struct {
	Params    index.Params
	Tokenizer *tokenizer.Tokenizer
	// Parallelism bounds the goroutines used to score one query. Zero means
	// GOMAXPROCS.
	Parallelism int
}

// SearchResult holds index-aligned scores, documents and corpus positions,
// best first.
type SearchResult struct {
	Scores    []float64 `json:"scores"`
	Documents []string  `json:"documents"`
	Positions []int     `json:"positions"`
}

// Engine is a BM25 index. It starts unfitted; Fit and Restore install a
// complete new state with a single atomic swap, so Score and Search may run
// concurrently with each other and never observe a half-built state.
type Engine struct {
	current     atomic.Pointer[fitted]
	params      index.Params
	tokenizer   *tokenizer.Tokenizer
	parallelism int
	generation  atomic.Uint64
	fitMu       sync.Mutex
	logger      *slog.Logger
}

// fitted pairs a state with the tokenizer its queries must go through.
type fitted struct {
	state *index.State
	tok   *tokenizer.Tokenizer
}

func New(opts Options) *Engine {
	tok := opts.Tokenizer
	if tok == nil {
		tok = tokenizer.Default()
	}
	par := opts.Parallelism
	if par <= 0 {
		par = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		params:      opts.Params,
		tokenizer:   tok,
		parallelism: par,
		logger:      slog.Default().With("component", "bm25-engine"),
	}
}

// Fit tokenizes documents, builds corpus statistics and replaces any
// previously fitted state. The documents slice is copied. Documents must be
// valid UTF-8 so that a persisted index loads back byte for byte.
func (e *Engine) Fit(documents []string) error {
	e.fitMu.Lock()
	defer e.fitMu.Unlock()

	start := time.Now()
	if len(documents) == 0 {
		return fmt.Errorf("fitting bm25 index: %w", apperrors.ErrEmptyCorpus)
	}
	for i, d := range documents {
		if !utf8.ValidString(d) {
			return apperrors.Invalidf("document %d is not valid UTF-8", i)
		}
	}
	docs := append([]string(nil), documents...)
	tokenized := e.tokenizer.TokenizeBatch(docs)
	st, err := stats.Build(tokenized)
	if err != nil {
		return fmt.Errorf("building corpus statistics: %w", err)
	}
	state := index.NewState(e.params, e.tokenizer.Config(), docs, st.TermCounts, st.IDF, st.AvgDocLen)
	e.install(state, e.tokenizer)
	e.logger.Info("bm25 index fitted",
		"documents", state.Len(),
		"vocabulary", state.VocabularySize(),
		"avg_doc_len", state.AvgDocLen,
		"duration", time.Since(start),
	)
	return nil
}

// Restore installs a previously persisted state. The engine adopts the
// state's parameters and tokenizer configuration.
func (e *Engine) Restore(state *index.State) error {
	if state == nil {
		return apperrors.Corruptf("nil state")
	}
	if err := state.Validate(); err != nil {
		return err
	}
	e.fitMu.Lock()
	defer e.fitMu.Unlock()
	e.params = state.Params
	e.tokenizer = tokenizer.New(state.Tokenizer)
	e.install(state, e.tokenizer)
	e.logger.Info("bm25 index restored",
		"documents", state.Len(),
		"vocabulary", state.VocabularySize(),
	)
	return nil
}

func (e *Engine) install(state *index.State, tok *tokenizer.Tokenizer) {
	e.current.Store(&fitted{state: state, tok: tok})
	e.generation.Add(1)
}

func (e *Engine) load() (*fitted, error) {
	f := e.current.Load()
	if f == nil {
		return nil, apperrors.ErrNotFitted
	}
	return f, nil
}

// State returns the fitted state, or ErrNotFitted.
func (e *Engine) State() (*index.State, error) {
	f, err := e.load()
	if err != nil {
		return nil, err
	}
	return f.state, nil
}

func (e *Engine) Fitted() bool {
	return e.current.Load() != nil
}

// Generation increments on every Fit and Restore.
func (e *Engine) Generation() uint64 {
	return e.generation.Load()
}

// Len is the corpus size, zero when unfitted.
func (e *Engine) Len() int {
	if f := e.current.Load(); f != nil {
		return f.state.Len()
	}
	return 0
}

func (e *Engine) Params() index.Params {
	if f := e.current.Load(); f != nil {
		return f.state.Params
	}
	e.fitMu.Lock()
	defer e.fitMu.Unlock()
	return e.params
}

// Document returns the original text at position i.
func (e *Engine) Document(i int) (string, error) {
	s, err := e.State()
	if err != nil {
		return "", err
	}
	if err := checkPosition(s, i); err != nil {
		return "", err
	}
	return s.Documents[i], nil
}

// Score computes the BM25 score of the document at position doc against query.
func (e *Engine) Score(query string, doc int) (float64, error) {
	f, err := e.load()
	if err != nil {
		return 0, fmt.Errorf("scoring: %w", err)
	}
	if err := checkPosition(f.state, doc); err != nil {
		return 0, err
	}
	return ranker.Score(f.state, f.compile(query), doc), nil
}

// Explain returns the per-term breakdown of Score.
func (e *Engine) Explain(query string, doc int) ([]ranker.Contribution, error) {
	f, err := e.load()
	if err != nil {
		return nil, fmt.Errorf("explaining: %w", err)
	}
	if err := checkPosition(f.state, doc); err != nil {
		return nil, err
	}
	return ranker.Explain(f.state, f.compile(query), doc), nil
}

// All passed as n to Search returns every document.
const All = ranker.All

// Search scores every document and returns the top n, or all documents
// when n is negative. Ties keep corpus order.
func (e *Engine) Search(ctx context.Context, query string, n int) (*SearchResult, error) {
	f, err := e.load()
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	s := f.state
	ranked, err := ranker.Rank(ctx, s, f.compile(query), n, e.parallelism)
	if err != nil {
		return nil, fmt.Errorf("ranking documents: %w", err)
	}
	res := &SearchResult{
		Scores:    make([]float64, len(ranked)),
		Documents: make([]string, len(ranked)),
		Positions: make([]int, len(ranked)),
	}
	for i, d := range ranked {
		res.Scores[i] = d.Score
		res.Documents[i] = s.Documents[d.Position]
		res.Positions[i] = d.Position
	}
	e.logger.Debug("bm25 search",
		"query", query,
		"corpus", s.Len(),
		"returned", len(ranked),
	)
	return res, nil
}

func (f *fitted) compile(query string) []ranker.QueryTerm {
	return ranker.Compile(f.tok.Tokenize(query))
}

func checkPosition(s *index.State, i int) error {
	if i < 0 || i >= s.Len() {
		return apperrors.Invalidf("document position %d out of range [0, %d)", i, s.Len())
	}
	return nil
}

// Package snapshot saves a fitted BM25 state as a set of framed artifacts
// and loads it back. Artifacts go to a Store: a directory, Redis or a
// Postgres table.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

// Artifact names.
const (
	ArtifactParams          = "params"
	ArtifactIDF             = "idf_table"
	ArtifactTermCounts      = "document_term_counts"
	ArtifactDocuments       = "documents"
	ArtifactTokenizerConfig = "tokenizer_config"
)

// Artifacts lists every artifact a complete snapshot contains.
var Artifacts = []string{
	ArtifactParams,
	ArtifactIDF,
	ArtifactTermCounts,
	ArtifactDocuments,
	ArtifactTokenizerConfig,
}

type paramsArtifact struct {
	K1        float64 `json:"k1"`
	B         float64 `json:"b"`
	AvgDocLen float64 `json:"avg_doc_len"`
}

// Encode frames every artifact of state.
func Encode(state *index.State) (map[string][]byte, error) {
	counts := make([]map[string]int, len(state.TermCounts))
	for i, tc := range state.TermCounts {
		counts[i] = tc
	}
	payloads := []struct {
		name  string
		codec segment.Codec
		value any
	}{
		{ArtifactParams, segment.CodecJSON, paramsArtifact{K1: state.Params.K1, B: state.Params.B, AvgDocLen: state.AvgDocLen}},
		{ArtifactIDF, segment.CodecJSON, state.IDF},
		{ArtifactTermCounts, segment.CodecJSON, counts},
		{ArtifactDocuments, segment.CodecJSON, state.Documents},
		{ArtifactTokenizerConfig, segment.CodecYAML, state.Tokenizer},
	}
	out := make(map[string][]byte, len(payloads))
	for _, p := range payloads {
		data, err := segment.Encode(p.name, p.codec, p.value)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", p.name, err)
		}
		out[p.name] = data
	}
	return out, nil
}

// Save writes every artifact of state to store. Stores implementing
// BatchStore receive all artifacts in one call.
func Save(ctx context.Context, store Store, state *index.State) error {
	start := time.Now()
	artifacts, err := Encode(state)
	if err != nil {
		return err
	}
	if err := Write(ctx, store, artifacts); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	slog.Info("bm25 snapshot saved",
		"documents", state.Len(),
		"vocabulary", state.VocabularySize(),
		"duration", time.Since(start),
	)
	return nil
}

// SaveEngine saves the engine's current state. It fails with ErrNotFitted
// for an unfitted engine.
func SaveEngine(ctx context.Context, store Store, e *indexer.Engine) error {
	state, err := e.State()
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return Save(ctx, store, state)
}

// Load reads and validates a complete state. A missing or malformed
// artifact yields ErrCorruptState; transport errors of the store are
// returned as they are.
func Load(ctx context.Context, store Store) (*index.State, error) {
	var params paramsArtifact
	if err := GetArtifact(ctx, store, ArtifactParams, &params); err != nil {
		return nil, err
	}
	var idf map[string]float64
	if err := GetArtifact(ctx, store, ArtifactIDF, &idf); err != nil {
		return nil, err
	}
	var rawCounts []map[string]int
	if err := GetArtifact(ctx, store, ArtifactTermCounts, &rawCounts); err != nil {
		return nil, err
	}
	var documents []string
	if err := GetArtifact(ctx, store, ArtifactDocuments, &documents); err != nil {
		return nil, err
	}
	var tokCfg tokenizer.Config
	if err := GetArtifact(ctx, store, ArtifactTokenizerConfig, &tokCfg); err != nil {
		return nil, err
	}

	if idf == nil {
		idf = map[string]float64{}
	}
	counts := make([]index.TermCounts, len(rawCounts))
	for i, m := range rawCounts {
		if m == nil {
			m = map[string]int{}
		}
		counts[i] = m
	}
	state := index.NewState(
		index.Params{K1: params.K1, B: params.B},
		tokCfg,
		documents,
		counts,
		idf,
		params.AvgDocLen,
	)
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return state, nil
}

// Exists reports whether store holds a snapshot. Only the params artifact
// is checked; Load detects partial snapshots.
func Exists(ctx context.Context, store Store) (bool, error) {
	_, err := store.Get(ctx, ArtifactParams)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperrors.ErrArtifactNotFound) {
		return false, nil
	}
	return false, err
}

// LoadEngine loads a state and restores it into a new engine.
func LoadEngine(ctx context.Context, store Store, opts indexer.Options) (*indexer.Engine, error) {
	state, err := Load(ctx, store)
	if err != nil {
		return nil, err
	}
	e := indexer.New(opts)
	if err := e.Restore(state); err != nil {
		return nil, err
	}
	return e, nil
}

// SaveDir saves the engine's state into dir.
func SaveDir(ctx context.Context, dir string, e *indexer.Engine) error {
	return SaveEngine(ctx, NewDirStore(dir), e)
}

// LoadDir loads an engine from dir.
func LoadDir(ctx context.Context, dir string, opts indexer.Options) (*indexer.Engine, error) {
	return LoadEngine(ctx, NewDirStore(dir), opts)
}

// Write stores already framed artifacts. Stores implementing BatchStore
// receive all of them in one call; others get one Put per artifact in name
// order.
func Write(ctx context.Context, store Store, artifacts map[string][]byte) error {
	if batch, ok := store.(BatchStore); ok {
		return batch.PutAll(ctx, artifacts)
	}
	for _, name := range slices.Sorted(maps.Keys(artifacts)) {
		if err := store.Put(ctx, name, artifacts[name]); err != nil {
			return err
		}
	}
	return nil
}

// ReadAll fetches the named artifacts without decoding them. A missing
// artifact yields ErrCorruptState.
func ReadAll(ctx context.Context, store Store, names []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := store.Get(ctx, name)
		if err != nil {
			if errors.Is(err, apperrors.ErrArtifactNotFound) {
				return nil, apperrors.Corruptf("missing artifact %q: %v", name, err)
			}
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// Fingerprint is a sha256 over the names and bytes of artifacts. Two
// snapshots with equal fingerprints decode to the same state.
func Fingerprint(artifacts map[string][]byte) string {
	h := sha256.New()
	for _, name := range slices.Sorted(maps.Keys(artifacts)) {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(artifacts[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PutArtifact encodes v as a JSON artifact and writes it under name.
func PutArtifact(ctx context.Context, store Store, name string, v any) error {
	data, err := segment.Encode(name, segment.CodecJSON, v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// GetArtifact reads and decodes the artifact name into v.
func GetArtifact(ctx context.Context, store Store, name string, v any) error {
	data, err := store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, apperrors.ErrArtifactNotFound) {
			return apperrors.Corruptf("missing artifact %q: %v", name, err)
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := segment.Decode(name, data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

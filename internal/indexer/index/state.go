// Package index holds the immutable fitted state of a BM25 index: ranking
// parameters, corpus statistics, the original documents and the tokenizer
// configuration that produced them.
package index

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

// TermCounts maps each term of one document to its occurrence count.
type TermCounts map[string]int

// Len is the tokenized length of the document.
func (tc TermCounts) Len() int {
	n := 0
	for _, c := range tc {
		n += c
	}
	return n
}

// Params are the BM25 tuning parameters.
type Params struct {
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`
}

// DefaultParams matches the values most callers tune from.
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

// State is never mutated once built. A re-fit produces a new State.
type State struct {
	Params     Params
	IDF        map[string]float64
	TermCounts []TermCounts
	DocLengths []int
	AvgDocLen  float64
	Documents  []string
	Tokenizer  tokenizer.Config
}

// NewState assembles a State and derives document lengths from the term
// counts.
func NewState(params Params, tok tokenizer.Config, documents []string, counts []TermCounts, idf map[string]float64, avgDocLen float64) *State {
	lengths := make([]int, len(counts))
	for i, tc := range counts {
		lengths[i] = tc.Len()
	}
	return &State{
		Params:     params,
		IDF:        idf,
		TermCounts: counts,
		DocLengths: lengths,
		AvgDocLen:  avgDocLen,
		Documents:  documents,
		Tokenizer:  tok,
	}
}

// Len is the number of documents in the corpus.
func (s *State) Len() int {
	return len(s.Documents)
}

// IDFOf returns the idf weight of term, or 0 for terms outside the corpus.
func (s *State) IDFOf(term string) float64 {
	return s.IDF[term]
}

func (s *State) VocabularySize() int {
	return len(s.IDF)
}

// Validate checks the internal consistency of a State, typically one that
// was just decoded from persisted artifacts.
func (s *State) Validate() error {
	if len(s.Documents) == 0 {
		return apperrors.Corruptf("state has no documents")
	}
	if len(s.TermCounts) != len(s.Documents) {
		return apperrors.Corruptf("%d term count tables for %d documents", len(s.TermCounts), len(s.Documents))
	}
	if len(s.DocLengths) != len(s.Documents) {
		return apperrors.Corruptf("%d document lengths for %d documents", len(s.DocLengths), len(s.Documents))
	}
	if s.Params.K1 < 0 || s.Params.B < 0 || s.Params.B > 1 || !finite(s.Params.K1) || !finite(s.Params.B) {
		return apperrors.Corruptf("invalid parameters k1=%v b=%v", s.Params.K1, s.Params.B)
	}
	if s.AvgDocLen < 0 || !finite(s.AvgDocLen) {
		return apperrors.Corruptf("invalid average document length %v", s.AvgDocLen)
	}
	for i, tc := range s.TermCounts {
		for term, c := range tc {
			if c <= 0 {
				return apperrors.Corruptf("document %d: non-positive count %d for term %q", i, c, term)
			}
			if _, ok := s.IDF[term]; !ok {
				return apperrors.Corruptf("document %d: term %q missing from idf table", i, term)
			}
		}
	}
	for term, w := range s.IDF {
		if !finite(w) {
			return apperrors.Corruptf("idf for term %q is not finite", term)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

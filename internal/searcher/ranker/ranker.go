package ranker

import (
	"cmp"
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/index"
)

// Corpora smaller than this are scored on the calling goroutine.
const parallelThreshold = 4096

type ScoredDoc struct {
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// QueryTerm is a distinct query term with the number of times it occurred
// in the tokenized query.
type QueryTerm struct {
	Term  string
	Count int
}

// Contribution is the share of one query term in a document score.
type Contribution struct {
	Term      string  `json:"term"`
	QueryFreq int     `json:"query_freq"`
	TermFreq  int     `json:"term_freq"`
	IDF       float64 `json:"idf"`
	Score     float64 `json:"score"`
}

// Compile collapses a tokenized query into distinct terms, keeping
// first-occurrence order. Repeated terms keep their multiplicity.
func Compile(terms []string) []QueryTerm {
	seen := make(map[string]int, len(terms))
	out := make([]QueryTerm, 0, len(terms))
	for _, term := range terms {
		if i, ok := seen[term]; ok {
			out[i].Count++
			continue
		}
		seen[term] = len(out)
		out = append(out, QueryTerm{Term: term, Count: 1})
	}
	return out
}

// Score computes the BM25 score of document doc for a compiled query.
func Score(s *index.State, query []QueryTerm, doc int) float64 {
	counts := s.TermCounts[doc]
	docLen := float64(s.DocLengths[doc])
	var score float64
	for _, qt := range query {
		tf := counts[qt.Term]
		if tf == 0 {
			continue
		}
		idf := s.IDFOf(qt.Term)
		score += float64(qt.Count) * idf * computeTFNorm(float64(tf), docLen, s.AvgDocLen, s.Params)
	}
	return score
}

// Explain breaks the score of doc down per query term.
func Explain(s *index.State, query []QueryTerm, doc int) []Contribution {
	counts := s.TermCounts[doc]
	docLen := float64(s.DocLengths[doc])
	out := make([]Contribution, 0, len(query))
	for _, qt := range query {
		tf := counts[qt.Term]
		idf := s.IDFOf(qt.Term)
		c := Contribution{Term: qt.Term, QueryFreq: qt.Count, TermFreq: tf, IDF: idf}
		if tf > 0 {
			c.Score = float64(qt.Count) * idf * computeTFNorm(float64(tf), docLen, s.AvgDocLen, s.Params)
		}
		out = append(out, c)
	}
	return out
}

// All as a limit ranks the whole corpus.
const All = -1

// Rank scores every document, orders them by descending score with ties in
// corpus order, and returns the first limit. A negative limit returns every
// document; zero returns none.
// Documents are scored across up to parallelism goroutines.
func Rank(ctx context.Context, s *index.State, query []QueryTerm, limit, parallelism int) ([]ScoredDoc, error) {
	n := s.Len()
	result := make([]ScoredDoc, n)
	if parallelism <= 1 || n < parallelThreshold {
		for i := 0; i < n; i++ {
			result[i] = ScoredDoc{Position: i, Score: Score(s, query, i)}
		}
	} else {
		chunk := (n + parallelism - 1) / parallelism
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallelism)
		for start := 0; start < n; start += chunk {
			end := min(start+chunk, n)
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				for i := start; i < end; i++ {
					result[i] = ScoredDoc{Position: i, Score: Score(s, query, i)}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	slices.SortStableFunc(result, func(a, b ScoredDoc) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if limit >= 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// computeTFNorm is the saturated term-frequency factor of BM25. With an
// average length of zero (every document empty) the length ratio is taken
// as zero.
func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64, p index.Params) float64 {
	var lengthRatio float64
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	denominator := termFreq + p.K1*(1-p.B+p.B*lengthRatio)
	return (termFreq * (p.K1 + 1)) / denominator
}

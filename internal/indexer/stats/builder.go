// Package stats turns a tokenized corpus into the statistics BM25 scoring
// needs: per-document term counts, smoothed idf weights and the average
// document length.
package stats

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

// Stats is the output of Build. All slices are index-aligned with the input.
type Stats struct {
	TermCounts []index.TermCounts
	DocLengths []int
	DocFreq    map[string]int
	IDF        map[string]float64
	AvgDocLen  float64
}

// Build computes corpus statistics. It fails with ErrEmptyCorpus when given
// no documents.
func Build(tokenized [][]string) (*Stats, error) {
	n := len(tokenized)
	if n == 0 {
		return nil, apperrors.ErrEmptyCorpus
	}
	s := &Stats{
		TermCounts: make([]index.TermCounts, n),
		DocLengths: make([]int, n),
		DocFreq:    make(map[string]int),
	}
	totalTokens := 0
	for i, terms := range tokenized {
		counts := make(index.TermCounts, len(terms))
		for _, term := range terms {
			counts[term]++
		}
		for term := range counts {
			s.DocFreq[term]++
		}
		s.TermCounts[i] = counts
		s.DocLengths[i] = len(terms)
		totalTokens += len(terms)
	}
	s.AvgDocLen = float64(totalTokens) / float64(n)
	s.IDF = make(map[string]float64, len(s.DocFreq))
	for term, df := range s.DocFreq {
		s.IDF[term] = IDF(n, df)
	}
	return s, nil
}

// IDF is the smoothed inverse document frequency
// ln((N - df + 0.5) / (df + 0.5) + 1), positive for every 0 < df <= N.
func IDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Lexical ranking scores each document against a query using term frequency,
        inverse document frequency and document length. Frequent words such as "the"
        and "of" are removed before counting, and punctuation and digits are stripped
        so that "Ranking," and "ranking" count as the same term. Documents that never
        mention a query term score exactly zero and sort after every match.`,
	"long": strings.Repeat(`Okapi BM25 saturates term frequency with the k1 parameter and
        normalises by document length with the b parameter. A term that appears in most
        documents earns a small idf weight while a rare term dominates the score. The
        fitted statistics are persisted as named artifacts and restored on start-up so a
        service can answer queries before the next rebuild completes. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	tok := tokenizer.Default()
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tok.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	tok := tokenizer.Default()
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tok.Tokenize(text)
		}
	})
}

// BenchmarkTokenizeNoStopwords isolates the normalisation steps from
// stopword removal.
func BenchmarkTokenizeNoStopwords(b *testing.B) {
	cfg := tokenizer.DefaultConfig()
	cfg.Stopwords = nil
	tok := tokenizer.New(cfg)
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = tok.Tokenize(text)
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	tok := tokenizer.Default()
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "lexical ranking engine scores documents "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tok.Tokenize(text)
			}
		})
	}
}

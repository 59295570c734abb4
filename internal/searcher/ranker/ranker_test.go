package ranker

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/stats"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/tokenizer"
)

func buildState(t testing.TB, params index.Params, tokenized [][]string) *index.State {
	t.Helper()
	s, err := stats.Build(tokenized)
	require.NoError(t, err)
	docs := make([]string, len(tokenized))
	for i := range docs {
		docs[i] = fmt.Sprintf("doc-%d", i)
	}
	return index.NewState(params, tokenizer.Config{}, docs, s.TermCounts, s.IDF, s.AvgDocLen)
}

func TestCompile(t *testing.T) {
	got := Compile([]string{"cat", "dog", "cat", "cat"})
	assert.Equal(t, []QueryTerm{{"cat", 3}, {"dog", 1}}, got)
	assert.Empty(t, Compile(nil))
}

func TestScore_MatchesFormula(t *testing.T) {
	p := index.Params{K1: 1.5, B: 0.75}
	s := buildState(t, p, [][]string{{"cat", "sat"}, {"dog", "ran", "fast"}, {"cats", "and", "dogs"}})

	idf := math.Log((3-1+0.5)/(1+0.5) + 1)
	avg := 8.0 / 3.0
	want := idf * (1 * (p.K1 + 1)) / (1 + p.K1*(1-p.B+p.B*2/avg))

	assert.InDelta(t, want, Score(s, Compile([]string{"cat"}), 0), 1e-12)
	assert.Equal(t, 0.0, Score(s, Compile([]string{"cat"}), 1))
	assert.Equal(t, 0.0, Score(s, Compile([]string{"cat"}), 2))
}

func TestScore_RepeatedQueryTermsAreLinear(t *testing.T) {
	s := buildState(t, index.DefaultParams(), [][]string{{"cat", "sat"}, {"dog"}})
	once := Score(s, Compile([]string{"cat"}), 0)
	thrice := Score(s, Compile([]string{"cat", "cat", "cat"}), 0)
	assert.InDelta(t, 3*once, thrice, 1e-12)
}

func TestScore_UnknownTermsContributeNothing(t *testing.T) {
	s := buildState(t, index.DefaultParams(), [][]string{{"cat", "sat"}, {"dog"}})
	assert.Equal(t, Score(s, Compile([]string{"cat"}), 0), Score(s, Compile([]string{"cat", "zebra"}), 0))
}

func TestScore_ZeroK1DoesNotDivideByZero(t *testing.T) {
	s := buildState(t, index.Params{K1: 0, B: 0.75}, [][]string{{"cat"}, {"dog"}})
	assert.Equal(t, 0.0, Score(s, Compile([]string{"cat"}), 1))
	assert.False(t, math.IsNaN(Score(s, Compile([]string{"cat"}), 0)))
}

func TestScore_MonotonicInTermFrequency(t *testing.T) {
	const docLen = 20
	p := index.DefaultParams()
	prev := 0.0
	for tf := 1; tf <= docLen; tf++ {
		// doc 0 keeps its length; only the share of "cat" grows
		doc := make([]string, 0, docLen)
		for i := 0; i < docLen; i++ {
			if i < tf {
				doc = append(doc, "cat")
			} else {
				doc = append(doc, "x")
			}
		}
		corpus := [][]string{doc, {"cat", "a", "b"}, {"q", "r"}}
		s := buildState(t, p, corpus)
		score := Score(s, Compile([]string{"cat"}), 0)
		require.GreaterOrEqual(t, score, prev, "tf=%d", tf)
		prev = score
	}
}

func TestScore_AllDocumentsEmpty(t *testing.T) {
	s := buildState(t, index.DefaultParams(), [][]string{{}, {}})
	assert.Equal(t, 0.0, s.AvgDocLen)
	assert.Equal(t, 0.0, Score(s, Compile([]string{"cat"}), 0))

	// a non-empty query term in an otherwise zero-average corpus uses 1-b
	p := index.Params{K1: 1.2, B: 0.75}
	got := computeTFNorm(1, 3, 0, p)
	assert.InDelta(t, (1*(p.K1+1))/(1+p.K1*(1-p.B)), got, 1e-12)
}

func TestExplain_SumsToScore(t *testing.T) {
	s := buildState(t, index.DefaultParams(), [][]string{{"cat", "sat", "cat"}, {"dog", "sat"}})
	q := Compile([]string{"cat", "sat", "sat", "zebra"})
	parts := Explain(s, q, 0)
	require.Len(t, parts, 3)

	var sum float64
	for _, c := range parts {
		sum += c.Score
	}
	assert.InDelta(t, Score(s, q, 0), sum, 1e-12)
	assert.Equal(t, 2, parts[0].TermFreq)
	assert.Equal(t, 2, parts[1].QueryFreq)
	assert.Equal(t, 0.0, parts[2].Score)
}

func TestRank_StableDescending(t *testing.T) {
	s := buildState(t, index.DefaultParams(), [][]string{
		{"dog"},
		{"cat"},
		{"cat", "cat"},
		{"cat"},
		{"bird"},
	})
	got, err := Rank(context.Background(), s, Compile([]string{"cat"}), All, 1)
	require.NoError(t, err)
	require.Len(t, got, 5)

	positions := make([]int, len(got))
	for i, d := range got {
		positions[i] = d.Position
	}
	// 1 and 3 tie and keep corpus order, zero scores keep corpus order
	assert.Equal(t, []int{2, 1, 3, 0, 4}, positions)
	assert.Equal(t, got[1].Score, got[2].Score)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRank_TopNIsPrefix(t *testing.T) {
	corpus := make([][]string, 50)
	for i := range corpus {
		corpus[i] = []string{"t" + fmt.Sprint(i%7), "cat"}
		if i%3 == 0 {
			corpus[i] = append(corpus[i], "cat")
		}
	}
	s := buildState(t, index.DefaultParams(), corpus)
	q := Compile([]string{"cat", "t3"})
	all, err := Rank(context.Background(), s, q, All, 1)
	require.NoError(t, err)
	for n := 0; n <= len(corpus); n++ {
		top, err := Rank(context.Background(), s, q, n, 1)
		require.NoError(t, err)
		require.Equal(t, all[:n], top)
	}
	assert.Len(t, all, len(corpus))
}

func TestRank_ParallelMatchesSequential(t *testing.T) {
	corpus := make([][]string, parallelThreshold*2+17)
	for i := range corpus {
		corpus[i] = []string{fmt.Sprintf("w%d", i%13), fmt.Sprintf("w%d", i%5), "common"}
	}
	s := buildState(t, index.DefaultParams(), corpus)
	q := Compile([]string{"w3", "common", "w4"})

	seq, err := Rank(context.Background(), s, q, All, 1)
	require.NoError(t, err)
	par, err := Rank(context.Background(), s, q, All, 8)
	require.NoError(t, err)
	assert.Equal(t, seq, par)
}

func TestRank_CancelledContext(t *testing.T) {
	corpus := make([][]string, parallelThreshold+1)
	for i := range corpus {
		corpus[i] = []string{"a"}
	}
	s := buildState(t, index.DefaultParams(), corpus)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Rank(ctx, s, Compile([]string{"a"}), All, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

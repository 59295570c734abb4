package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

func validState() *State {
	return NewState(
		DefaultParams(),
		tokenizer.Config{Stopwords: []string{"the"}},
		[]string{"the cat sat", "cat"},
		[]TermCounts{{"cat": 1, "sat": 1}, {"cat": 1}},
		map[string]float64{"cat": 0.18, "sat": 0.69},
		1.5,
	)
}

func TestTermCountsLen(t *testing.T) {
	assert.Equal(t, 5, TermCounts{"a": 2, "b": 3}.Len())
	assert.Equal(t, 0, TermCounts{}.Len())
}

func TestNewState_DerivesLengths(t *testing.T) {
	s := validState()
	assert.Equal(t, []int{2, 1}, s.DocLengths)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.VocabularySize())
	assert.Equal(t, 0.0, s.IDFOf("dog"))
	assert.NoError(t, s.Validate())
}

func TestValidate_Corruptions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*State)
	}{
		{"no documents", func(s *State) { s.Documents = nil }},
		{"misaligned counts", func(s *State) { s.TermCounts = s.TermCounts[:1] }},
		{"misaligned lengths", func(s *State) { s.DocLengths = nil }},
		{"bad b", func(s *State) { s.Params.B = 2 }},
		{"nan avg", func(s *State) { s.AvgDocLen = math.NaN() }},
		{"zero count", func(s *State) { s.TermCounts[0]["cat"] = 0 }},
		{"term without idf", func(s *State) { s.TermCounts[1]["dog"] = 1 }},
		{"inf idf", func(s *State) { s.IDF["cat"] = math.Inf(1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validState()
			tc.mutate(s)
			assert.ErrorIs(t, s.Validate(), apperrors.ErrCorruptState)
		})
	}
}

package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

func TestOptionsFromConfig_Defaults(t *testing.T) {
	opts, err := OptionsFromConfig(config.BM25Config{K1: 1.2, B: 0.5, Parallelism: 2})
	require.NoError(t, err)
	assert.Equal(t, index.Params{K1: 1.2, B: 0.5}, opts.Params)
	assert.Equal(t, 2, opts.Parallelism)
	assert.Equal(t, tokenizer.EnglishVersion, opts.Tokenizer.Config().Version)
	assert.False(t, opts.Tokenizer.Config().DropEmptyTokens)
}

func TestOptionsFromConfig_StopwordsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.txt")
	require.NoError(t, os.WriteFile(path, []byte("# custom\nfoo\nBar\n"), 0o644))

	opts, err := OptionsFromConfig(config.BM25Config{K1: 1.5, B: 0.75, StopwordsFile: path, DropEmptyTokens: true})
	require.NoError(t, err)
	cfg := opts.Tokenizer.Config()
	assert.Equal(t, []string{"foo", "bar"}, cfg.Stopwords)
	assert.True(t, cfg.DropEmptyTokens)
	assert.Equal(t, []string{"baz"}, opts.Tokenizer.Tokenize("foo BAR baz"))

	_, err = OptionsFromConfig(config.BM25Config{StopwordsFile: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

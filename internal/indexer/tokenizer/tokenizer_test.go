package tokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

func TestTokenize_Pipeline(t *testing.T) {
	tok := New(Config{Stopwords: []string{"the"}})

	cases := []struct {
		in   string
		want []string
	}{
		{"the cat sat", []string{"cat", "sat"}},
		{"The Dog ran FAST!", []string{"dog", "ran", "fast"}},
		{"cats, and dogs.", []string{"cats", "and", "dogs"}},
		{"route66 is 2fast", []string{"route", "is", "fast"}},
		{"  spaced   out\twords\n", []string{"spaced", "out", "words"}},
		{"e-mail", []string{"email"}},
		{"café Über", []string{"café", "über"}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, tok.Tokenize(tc.in))
		})
	}
}

func TestTokenize_StopwordsCaseInsensitive(t *testing.T) {
	tok := New(Config{Stopwords: []string{"THE", "And"}})
	assert.Equal(t, []string{"cats", "dogs"}, tok.Tokenize("The cats AND the dogs"))
}

func TestTokenize_StopwordsUseFullCaseFolding(t *testing.T) {
	tok := New(Config{Stopwords: []string{"Straße", "ΣΊΣΥΦΟΣ"}})
	assert.Equal(t, []string{"strasse", "σίσυφοσ"}, tok.Config().Stopwords)
	assert.Equal(t, []string{"weg"}, tok.Tokenize("STRASSE straße weg σίσυφος"))

	ascii := New(Config{Stopwords: []string{"strasse"}})
	assert.Equal(t, []string{"ss", "weg"}, ascii.Tokenize("Straße ss weg"))
}

func TestTokenize_EmptyResultKeepsEmptyTerm(t *testing.T) {
	tok := New(Config{Stopwords: []string{"the"}})
	assert.Equal(t, []string{""}, tok.Tokenize("123 the !!!"))
	assert.Equal(t, []string{""}, tok.Tokenize(""))

	dropping := New(Config{Stopwords: []string{"the"}, DropEmptyTokens: true})
	assert.Empty(t, dropping.Tokenize("123 the !!!"))
}

func TestTokenizeBatch_PreservesOrder(t *testing.T) {
	tok := Default()
	got := tok.TokenizeBatch([]string{"the cat sat", "dogs ran", "and"})
	require.Len(t, got, 3)
	assert.Equal(t, []string{"cat", "sat"}, got[0])
	assert.Equal(t, []string{"dogs", "ran"}, got[1])
	assert.Equal(t, []string{""}, got[2])
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, EnglishVersion, cfg.Version)
	assert.Len(t, cfg.Stopwords, 179)
	assert.Contains(t, cfg.Stopwords, "the")
}

func TestConfig_IsCopy(t *testing.T) {
	tok := New(Config{Stopwords: []string{"a", "A", " b "}})
	cfg := tok.Config()
	assert.Equal(t, []string{"a", "b"}, cfg.Stopwords)

	cfg.Stopwords[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, tok.Config().Stopwords)
}

func TestLoadStopwords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stop.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nthe\n\nand\n"), 0o644))

	words, err := LoadStopwords(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "and"}, words)

	cfg, err := ConfigFromFile(path, true)
	require.NoError(t, err)
	assert.Equal(t, "file:"+path, cfg.Version)
	assert.True(t, cfg.DropEmptyTokens)

	_, err = LoadStopwords(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n# nothing\n"), 0o644))
	_, err = LoadStopwords(empty)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

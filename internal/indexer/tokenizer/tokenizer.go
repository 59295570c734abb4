// Package tokenizer provides text tokenisation for the ranking engine.
// It strips ASCII punctuation and digits, lower-cases input, removes
// stop-words and splits the remainder on single spaces. Stop-words match
// under full Unicode case folding, so "STRASSE" matches a "straße" entry.
package tokenizer

import (
	"bufio"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"

	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

// EnglishVersion labels the embedded stop-word list.
const EnglishVersion = "nltk-english"

//go:embed stopwords_en.txt
var englishStopwords string

const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Config is everything needed to reproduce a tokenization. It is persisted
// alongside a fitted index.
type Config struct {
	Version         string   `yaml:"version" json:"version"`
	Stopwords       []string `yaml:"stopwords" json:"stopwords"`
	DropEmptyTokens bool     `yaml:"dropEmptyTokens" json:"drop_empty_tokens"`
}

// DefaultConfig returns the English stop-word configuration.
func DefaultConfig() Config {
	return Config{
		Version:   EnglishVersion,
		Stopwords: EnglishStopwords(),
	}
}

// Tokenizer is immutable after construction and safe for concurrent use.
type Tokenizer struct {
	cfg       Config
	stopWords map[string]struct{}
}

func New(cfg Config) *Tokenizer {
	stop := make(map[string]struct{}, len(cfg.Stopwords))
	words := make([]string, 0, len(cfg.Stopwords))
	fold := cases.Fold()
	for _, w := range cfg.Stopwords {
		folded := fold.String(strings.TrimSpace(w))
		if folded == "" {
			continue
		}
		if _, dup := stop[folded]; dup {
			continue
		}
		stop[folded] = struct{}{}
		words = append(words, folded)
	}
	cfg.Stopwords = words
	return &Tokenizer{cfg: cfg, stopWords: stop}
}

// Default returns a Tokenizer using the embedded English stop-words.
func Default() *Tokenizer {
	return New(DefaultConfig())
}

// Config returns a copy of the tokenizer configuration.
func (t *Tokenizer) Config() Config {
	cfg := t.cfg
	cfg.Stopwords = append([]string(nil), t.cfg.Stopwords...)
	return cfg
}

// Tokenize normalises a single text into its terms.
//
// Runs of whitespace collapse during stop-word removal, so the only empty
// term the pipeline yields is the lone "" of a text with nothing left in it.
// DropEmptyTokens removes that term as well.
func (t *Tokenizer) Tokenize(text string) []string {
	text = removePunctuationAndDigits(text)
	text = strings.ToLower(text)
	text = t.removeStopWords(text)
	parts := strings.Split(text, " ")
	terms := make([]string, 0, len(parts))
	for _, part := range parts {
		term := strings.TrimSpace(part)
		if term == "" && t.cfg.DropEmptyTokens {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// TokenizeBatch applies Tokenize to every text, preserving order.
func (t *Tokenizer) TokenizeBatch(texts []string) [][]string {
	out := make([][]string, len(texts))
	for i, text := range texts {
		out[i] = t.Tokenize(text)
	}
	return out
}

func (t *Tokenizer) removeStopWords(text string) string {
	words := strings.Fields(text)
	kept := words[:0]
	// A Caser is stateful; one per call keeps Tokenize safe for concurrent use.
	fold := cases.Fold()
	for _, w := range words {
		if _, isStop := t.stopWords[fold.String(w)]; isStop {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func removePunctuationAndDigits(text string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return -1
		}
		if r < 0x80 && strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, text)
}

// EnglishStopwords returns a fresh copy of the embedded English list.
func EnglishStopwords() []string {
	return parseStopwords(englishStopwords)
}

// LoadStopwords reads a newline-delimited stop-word file. Blank lines and
// lines starting with '#' are skipped.
func LoadStopwords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Invalidf("reading stopwords file %s: %v", path, err)
	}
	words := parseStopwords(string(data))
	if len(words) == 0 {
		return nil, apperrors.Invalidf("stopwords file %s is empty", path)
	}
	return words, nil
}

func parseStopwords(data string) []string {
	var words []string
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words
}

// ConfigFromFile builds a Config from a stop-word file, labelling the
// version with the file path.
func ConfigFromFile(path string, dropEmpty bool) (Config, error) {
	words, err := LoadStopwords(path)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Version:         fmt.Sprintf("file:%s", path),
		Stopwords:       words,
		DropEmptyTokens: dropEmpty,
	}, nil
}

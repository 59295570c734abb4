package indexer

import (
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/config"
)

// OptionsFromConfig builds engine options from the bm25 config section.
// Without a stop-word file the embedded English list is used.
func OptionsFromConfig(cfg config.BM25Config) (Options, error) {
	tokCfg := tokenizer.DefaultConfig()
	tokCfg.DropEmptyTokens = cfg.DropEmptyTokens
	if cfg.StopwordsFile != "" {
		var err error
		tokCfg, err = tokenizer.ConfigFromFile(cfg.StopwordsFile, cfg.DropEmptyTokens)
		if err != nil {
			return Options{}, err
		}
	}
	return Options{
		Params:      index.Params{K1: cfg.K1, B: cfg.B},
		Tokenizer:   tokenizer.New(tokCfg),
		Parallelism: cfg.Parallelism,
	}, nil
}

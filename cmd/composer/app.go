package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/japaniel/composer/pkg/db"
	"github.com/japaniel/composer/pkg/dictionary"
	"github.com/japaniel/composer/pkg/grammar"
	"github.com/japaniel/composer/pkg/poet"
	"github.com/japaniel/composer/pkg/userdict"
)

func (a *app) openDB() (*sql.DB, error) {
	conn, err := db.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return conn, nil
}

// loadLexicon reads the lexicon from the database, falling back to the
// dictionary file when nothing has been imported yet.
func (a *app) loadLexicon(ctx context.Context, conn *sql.DB) (*dictionary.Lexicon, error) {
	dc := a.cfg.Dictionary
	opts := []dictionary.LexiconOption{dictionary.WithMaxWordLength(dc.MaxWordLength)}
	if dc.KanaFallback {
		opts = append(opts, dictionary.WithKanaFallback(dc.FallbackWeight))
	}
	lx := dictionary.NewLexicon(opts...)

	n, err := lx.LoadFromDB(conn)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		a.logger.Debug().Int("entries", n).Msg("lexicon loaded from database")
		return lx, nil
	}

	entries, err := a.loadDictionary(ctx, dc.Path)
	if err != nil {
		a.logger.Warn().Err(err).Msg("no lexicon available, composing with kana only")
		return lx, nil
	}
	offered := lx.AddJMdict(entries)
	a.logger.Info().Int("candidates", offered).Msg("lexicon loaded from dictionary file")
	return lx, nil
}

func (a *app) loadDictionary(ctx context.Context, path string) ([]dictionary.JMdictEntry, error) {
	if a.cfg.Dictionary.AutoDownload {
		if err := dictionary.EnsureDictionary(a.logger.WithContext(ctx), path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return dictionary.LoadJMdictSimplified(path)
}

// scorer returns the bigram grammar when enabled, else the unigram rule.
func (a *app) scorer(conn *sql.DB) (poet.Scorer, error) {
	gc := a.cfg.Grammar
	if !gc.Enabled {
		return poet.NewUnigramScorer(), nil
	}
	b := grammar.New(
		grammar.WithPenalty(gc.Penalty),
		grammar.WithMaxContext(gc.MaxContext),
		grammar.WithLogger(a.logger),
	)
	if _, err := b.LoadFromDB(conn); err != nil {
		return nil, err
	}
	return b, nil
}

// userWords connects the Redis user dictionary, or returns nil when it is
// disabled.
func (a *app) userWords() (*userdict.Dict, func() error) {
	rc := a.cfg.Redis
	if !rc.Enabled {
		return nil, func() error { return nil }
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	d := userdict.New(client,
		userdict.WithKey(rc.Key),
		userdict.WithBreaker(rc.BreakerFailures, rc.BreakerTimeout),
		userdict.WithLogger(a.logger),
	)
	return d, client.Close
}

func (a *app) poetOptions(scorer poet.Scorer) []poet.Option {
	return []poet.Option{
		poet.WithScorer(scorer),
		poet.WithMaxEdges(a.cfg.Poet.MaxEdges),
		poet.WithLogger(a.logger),
	}
}

func isSkippable(err error) bool {
	return errors.Is(err, poet.ErrNoSentence) || errors.Is(err, poet.ErrEdgeBudget)
}

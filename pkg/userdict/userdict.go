// Package userdict keeps per-user word boosts in a Redis hash and exposes
// point-in-time snapshots of them as a sentence scorer.
package userdict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/japaniel/composer/pkg/poet"
)

// DefaultKey is the Redis hash holding word boosts.
const DefaultKey = "composer:user_words"

// ErrInvalidWord is returned for empty words or non-finite boosts.
var ErrInvalidWord = errors.New("userdict: invalid word")

// Dict stores word boosts in Redis.
type Dict struct {
	client  redis.Cmdable
	key     string
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger

	failures    uint32
	openTimeout time.Duration
}

// Option configures a Dict.
type Option func(*Dict)

// WithKey sets the Redis hash key.
func WithKey(key string) Option {
	return func(d *Dict) {
		if key != "" {
			d.key = key
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dict) { d.logger = l }
}

// WithBreaker sets how many consecutive snapshot failures open the breaker
// and how long it stays open.
func WithBreaker(failures uint32, openTimeout time.Duration) Option {
	return func(d *Dict) {
		if failures > 0 {
			d.failures = failures
		}
		if openTimeout > 0 {
			d.openTimeout = openTimeout
		}
	}
}

// New creates a Dict backed by client.
func New(client redis.Cmdable, opts ...Option) *Dict {
	d := &Dict{
		client:      client,
		key:         DefaultKey,
		logger:      zerolog.Nop(),
		failures:    3,
		openTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "userdict",
		Timeout: d.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= d.failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return d
}

// Add sets the boost of word.
func (d *Dict) Add(ctx context.Context, word string, boost float64) error {
	word = strings.TrimSpace(word)
	if word == "" || math.IsNaN(boost) || math.IsInf(boost, 0) {
		return ErrInvalidWord
	}
	if err := d.client.HSet(ctx, d.key, word, strconv.FormatFloat(boost, 'g', -1, 64)).Err(); err != nil {
		return fmt.Errorf("add user word %q: %w", word, err)
	}
	return nil
}

// Remove deletes word. Removing an unknown word is not an error.
func (d *Dict) Remove(ctx context.Context, word string) error {
	if err := d.client.HDel(ctx, d.key, word).Err(); err != nil {
		return fmt.Errorf("remove user word %q: %w", word, err)
	}
	return nil
}

// Snapshot reads every boost. When Redis fails, or the breaker is open, it
// logs and returns an empty snapshot so composition can go on without
// user words.
func (d *Dict) Snapshot(ctx context.Context) Snapshot {
	res, err := d.breaker.Execute(func() (interface{}, error) {
		return d.client.HGetAll(ctx, d.key).Result()
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("user dictionary unavailable, composing without it")
		return Snapshot{}
	}

	raw := res.(map[string]string)
	snap := make(Snapshot, len(raw))
	for word, v := range raw {
		boost, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(boost) || math.IsInf(boost, 0) {
			d.logger.Warn().Str("word", word).Str("value", v).Msg("ignoring malformed user word boost")
			continue
		}
		snap[word] = boost
	}
	return snap
}

// Snapshot maps words to boosts. Its Score adds the boost of an entry's text
// and is pure, so it can be used for a whole sweep.
type Snapshot map[string]float64

// Score implements poet.Scorer.
func (s Snapshot) Score(_ *poet.Sentence, entry *poet.DictEntry, _ bool, _ string) float64 {
	return s[entry.Text]
}

// Package grammar scores word sequences with a bigram model learned from
// recorded sentences.
package grammar

import (
	"fmt"
	"math"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/japaniel/composer/pkg/db"
	"github.com/japaniel/composer/pkg/poet"
)

// DefaultMaxContext is how many trailing runes of a preceding text are tried
// when looking for a known left word.
const DefaultMaxContext = 8

// Bigram is a word bigram model with sentence boundary markers. It is safe
// for concurrent use.
type Bigram struct {
	mu         sync.RWMutex
	counts     map[string]map[string]int
	totals     map[string]int
	pairs      int
	penalty    float64
	maxContext int
	logger     zerolog.Logger
}

// Option configures a Bigram.
type Option func(*Bigram)

// WithPenalty sets the log-probability charged for an unseen transition.
func WithPenalty(p float64) Option {
	return func(b *Bigram) { b.penalty = p }
}

// WithMaxContext bounds the suffix search over preceding text.
func WithMaxContext(n int) Option {
	return func(b *Bigram) {
		if n > 0 {
			b.maxContext = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bigram) { b.logger = l }
}

// New returns an empty model.
func New(opts ...Option) *Bigram {
	b := &Bigram{
		counts:     make(map[string]map[string]int),
		totals:     make(map[string]int),
		penalty:    poet.DefaultPenalty,
		maxContext: DefaultMaxContext,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Observe adds count occurrences of right following left.
func (b *Bigram) Observe(left, right string, count int) {
	if left == "" || right == "" || count <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next, ok := b.counts[left]
	if !ok {
		next = make(map[string]int)
		b.counts[left] = next
	}
	if next[right] == 0 {
		b.pairs++
	}
	next[right] += count
	b.totals[left] += count
}

// ObserveSentence counts every transition of words, including the sentence
// boundaries.
func (b *Bigram) ObserveSentence(words []string) {
	if len(words) == 0 {
		return
	}
	prev := db.SentenceStart
	for _, w := range words {
		b.Observe(prev, w, 1)
		prev = w
	}
	b.Observe(prev, db.SentenceEnd, 1)
}

// LoadFromDB adds every stored bigram count and returns how many rows were read.
func (b *Bigram) LoadFromDB(conn db.DBExecutor) (int, error) {
	rows, err := db.LoadBigrams(conn)
	if err != nil {
		return 0, fmt.Errorf("load bigrams: %w", err)
	}
	for _, r := range rows {
		b.Observe(r.Left, r.Right, r.Count)
	}
	b.logger.Debug().Int("rows", len(rows)).Int("pairs", b.Len()).Msg("bigrams loaded")
	return len(rows), nil
}

// Len returns the number of distinct pairs.
func (b *Bigram) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pairs
}

// Query returns the log-probability of word following context. Context is
// matched as a whole, then by its longest known suffix, and treated as the
// start of a sentence when nothing matches. Unseen transitions cost the
// penalty. When isRear is set, the probability of word ending the sentence
// is added if it has been observed.
func (b *Bigram) Query(context, word string, isRear bool) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.query(b.resolve(context), word, isRear)
}

func (b *Bigram) query(left, word string, isRear bool) float64 {
	score := b.transition(left, word)
	if isRear {
		if c := b.counts[word][db.SentenceEnd]; c > 0 {
			score += math.Log(float64(c) / float64(b.totals[word]))
		}
	}
	return score
}

func (b *Bigram) resolve(context string) string {
	if context == "" {
		return db.SentenceStart
	}
	if _, ok := b.totals[context]; ok {
		return context
	}
	n := utf8.RuneCountInString(context)
	runes := []rune(context)
	for size := min(n-1, b.maxContext); size > 0; size-- {
		suffix := string(runes[n-size:])
		if _, ok := b.totals[suffix]; ok {
			return suffix
		}
	}
	return db.SentenceStart
}

func (b *Bigram) transition(left, right string) float64 {
	c := b.counts[left][right]
	if c == 0 {
		return b.penalty
	}
	return math.Log(float64(c) / float64(b.totals[left]))
}

// Score implements poet.Scorer. The entry's own weight is added to the
// transition from the sentence's context (its text, or the preceding text
// while it is empty), resolved as in Query.
func (b *Bigram) Score(sentence *poet.Sentence, entry *poet.DictEntry, isRear bool, precedingText string) float64 {
	return entry.Weight + b.Query(sentence.Context(precedingText), entry.Text, isRear)
}

// Combine returns a scorer that sums the increments of scorers. Nil scorers
// are skipped.
func Combine(scorers ...poet.Scorer) poet.Scorer {
	var list []poet.Scorer
	for _, s := range scorers {
		if s != nil {
			list = append(list, s)
		}
	}
	return poet.ScorerFunc(func(sentence *poet.Sentence, entry *poet.DictEntry, isRear bool, precedingText string) float64 {
		total := 0.0
		for _, s := range list {
			total += s.Score(sentence, entry, isRear, precedingText)
		}
		return total
	})
}

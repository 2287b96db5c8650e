package poet

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNoSentence is returned when no combination of edges covers the input.
	ErrNoSentence = errors.New("poet: no sentence covers the input")

	// ErrEdgeBudget is returned when a sweep visits more edges than allowed.
	ErrEdgeBudget = errors.New("poet: edge budget exceeded")
)

// Observer is told about every finished sweep.
type Observer func(edges int, elapsed time.Duration, err error)

// Poet builds the best sentence out of a WordGraph. It holds no per-call
// state and may be shared between goroutines.
type Poet struct {
	compare  Compare
	scorer   Scorer
	maxEdges int
	observer Observer
	logger   zerolog.Logger
}

// Option configures a Poet.
type Option func(*Poet)

// WithCompare sets the comparator used to rank sentences at each position.
// A nil compare keeps LeftAssociateCompare.
func WithCompare(compare Compare) Option {
	return func(p *Poet) {
		if compare != nil {
			p.compare = compare
		}
	}
}

// WithScorer sets the scorer sentences are extended with.
func WithScorer(scorer Scorer) Option {
	return func(p *Poet) {
		p.scorer = scorer
	}
}

// WithMaxEdges bounds the number of edges a single sweep may extend.
// Zero means unbounded.
func WithMaxEdges(n int) Option {
	return func(p *Poet) {
		if n < 0 {
			panic(fmt.Sprintf("poet: negative edge budget %d", n))
		}
		p.maxEdges = n
	}
}

// WithObserver registers a callback run after every sweep.
func WithObserver(o Observer) Option {
	return func(p *Poet) {
		p.observer = o
	}
}

// WithLogger sets the logger used for sweep tracing at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Poet) {
		p.logger = l
	}
}

// New returns a Poet. Without options it ranks with LeftAssociateCompare and
// scores nothing.
func New(opts ...Option) *Poet {
	p := &Poet{
		compare: LeftAssociateCompare,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BuildBestReading runs a single sweep with the given comparator and scorer.
// A nil compare means LeftAssociateCompare; a nil scorer adds no weight.
func BuildBestReading(graph WordGraph, totalLength int, precedingText string, compare Compare, scorer Scorer) (*Sentence, error) {
	return New(WithCompare(compare), WithScorer(scorer)).MakeSentence(graph, totalLength, precedingText)
}

// MakeSentence returns the best sentence covering [0, totalLength), or
// ErrNoSentence when the graph has no such path. precedingText is handed to
// the scorer as left context and never modified.
func (p *Poet) MakeSentence(graph WordGraph, totalLength int, precedingText string) (*Sentence, error) {
	start := time.Now()
	s, edges, err := p.sweep(graph, totalLength, precedingText)
	if p.observer != nil {
		p.observer(edges, time.Since(start), err)
	}
	return s, err
}

func (p *Poet) sweep(graph WordGraph, totalLength int, precedingText string) (*Sentence, int, error) {
	if totalLength <= 0 {
		return nil, 0, ErrNoSentence
	}

	sentences := map[int]*Sentence{0: NewSentence()}
	edges := 0

	for _, startPos := range graph.StartPositions() {
		base, ok := sentences[startPos]
		if !ok {
			continue
		}
		p.logger.Debug().Int("start", startPos).Msg("sweep start position")

		for _, endPos := range graph.EndPositions(startPos) {
			if endPos <= startPos {
				panic(fmt.Sprintf("poet: malformed span [%d, %d)", startPos, endPos))
			}
			if startPos == 0 && endPos == totalLength {
				continue // a single word is not a sentence
			}
			isRear := endPos == totalLength

			for _, entry := range graph[startPos][endPos] {
				edges++
				if p.maxEdges > 0 && edges > p.maxEdges {
					return nil, edges, fmt.Errorf("%w: more than %d edges", ErrEdgeBudget, p.maxEdges)
				}

				candidate := base.Copy()
				candidate.Extend(entry, endPos, isRear, precedingText, p.scorer)

				if existing, ok := sentences[endPos]; !ok || p.compare(existing, candidate) {
					p.logger.Debug().
						Int("end", endPos).
						Str("text", candidate.Text()).
						Float64("weight", candidate.Weight()).
						Msg("updated sentence")
					sentences[endPos] = candidate
				}
			}
		}
	}

	result, ok := sentences[totalLength]
	if !ok {
		return nil, edges, ErrNoSentence
	}
	return result, edges, nil
}

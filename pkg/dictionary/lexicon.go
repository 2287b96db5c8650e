package dictionary

import (
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/japaniel/composer/pkg/db"
	"github.com/japaniel/composer/pkg/poet"
)

// DefaultMaxWordLength bounds the reading length looked up per lattice edge.
const DefaultMaxWordLength = 8

// Lexicon indexes entries by hiragana reading and turns kana input into word
// graphs. It is safe for concurrent use.
type Lexicon struct {
	mu             sync.RWMutex
	index          map[string][]*poet.DictEntry
	longest        int
	maxWordLength  int
	kanaFallback   bool
	fallbackWeight float64
}

// LexiconOption configures a Lexicon.
type LexiconOption func(*Lexicon)

// WithMaxWordLength limits lookups to readings of at most n runes.
func WithMaxWordLength(n int) LexiconOption {
	return func(lx *Lexicon) {
		if n > 0 {
			lx.maxWordLength = n
		}
	}
}

// WithKanaFallback adds a single-kana edge at every position so that any
// input has at least one covering path.
func WithKanaFallback(weight float64) LexiconOption {
	return func(lx *Lexicon) {
		lx.kanaFallback = true
		lx.fallbackWeight = weight
	}
}

// NewLexicon returns an empty lexicon.
func NewLexicon(opts ...LexiconOption) *Lexicon {
	lx := &Lexicon{
		index:         make(map[string][]*poet.DictEntry),
		maxWordLength: DefaultMaxWordLength,
	}
	for _, opt := range opts {
		opt(lx)
	}
	return lx
}

// Add registers text as a spelling of reading. Adding an existing pair keeps
// the higher weight.
func (lx *Lexicon) Add(reading, text string, weight float64, comment string) {
	reading = ToHiragana(reading)
	if reading == "" || text == "" {
		return
	}
	n := utf8.RuneCountInString(reading)

	lx.mu.Lock()
	defer lx.mu.Unlock()

	list := lx.index[reading]
	for i, e := range list {
		if e.Text != text {
			continue
		}
		if weight > e.Weight {
			list[i] = &poet.DictEntry{Text: text, Reading: reading, Length: n, Weight: weight, Comment: comment}
			sortEntries(list)
		}
		return
	}
	list = append(list, &poet.DictEntry{Text: text, Reading: reading, Length: n, Weight: weight, Comment: comment})
	sortEntries(list)
	lx.index[reading] = list
	if n > lx.longest {
		lx.longest = n
	}
}

// sortEntries orders candidates by descending weight, then by text.
func sortEntries(list []*poet.DictEntry) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Weight != list[j].Weight {
			return list[i].Weight > list[j].Weight
		}
		return list[i].Text < list[j].Text
	})
}

// AddJMdict adds every candidate of the given entries and returns how many
// were offered.
func (lx *Lexicon) AddJMdict(entries []JMdictEntry) int {
	candidates := Candidates(entries)
	for _, c := range candidates {
		lx.Add(c.Reading, c.Text, c.Weight, c.Comment)
	}
	return len(candidates)
}

// LoadFromDB adds every entry stored in the lexicon table.
func (lx *Lexicon) LoadFromDB(conn db.DBExecutor) (int, error) {
	entries, err := db.LoadEntries(conn)
	if err != nil {
		return 0, fmt.Errorf("load lexicon: %w", err)
	}
	for _, e := range entries {
		lx.Add(e.Reading, e.Text, e.Weight, e.Comment)
	}
	return len(entries), nil
}

// Lookup returns the entries spelled for reading, best first.
func (lx *Lexicon) Lookup(reading string) []*poet.DictEntry {
	lx.mu.RLock()
	defer lx.mu.RUnlock()
	list := lx.index[ToHiragana(reading)]
	out := make([]*poet.DictEntry, len(list))
	copy(out, list)
	return out
}

// Len returns the number of distinct readings.
func (lx *Lexicon) Len() int {
	lx.mu.RLock()
	defer lx.mu.RUnlock()
	return len(lx.index)
}

// WordGraph builds the lattice of every lexicon word found in input, over rune
// positions of its hiragana form, and returns it with the input length.
func (lx *Lexicon) WordGraph(input string) (poet.WordGraph, int) {
	runes := []rune(ToHiragana(input))
	n := len(runes)
	g := poet.NewWordGraph()

	lx.mu.RLock()
	defer lx.mu.RUnlock()

	limit := lx.maxWordLength
	if lx.longest < limit {
		limit = lx.longest
	}
	for start := 0; start < n; start++ {
		covered := false
		for end := start + 1; end <= n && end-start <= limit; end++ {
			for _, e := range lx.index[string(runes[start:end])] {
				g.Add(start, end, e)
				if end == start+1 {
					covered = true
				}
			}
		}
		if lx.kanaFallback && !covered {
			kana := string(runes[start])
			g.Add(start, start+1, &poet.DictEntry{Text: kana, Reading: kana, Length: 1, Weight: lx.fallbackWeight})
		}
	}
	return g, n
}

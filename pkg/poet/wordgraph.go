package poet

import (
	"fmt"
	"sort"
)

// DictEntry is one candidate word. Entries are owned by the graph that
// holds them and must not be modified once added.
type DictEntry struct {
	Text    string
	Reading string
	Length  int // input units (syllables, runes) covered
	Weight  float64
	Comment string
}

// WordGraph maps a start position to the end positions reachable from it and
// the entries covering each [start, end) span, in preference order.
type WordGraph map[int]map[int][]*DictEntry

// NewWordGraph returns an empty graph.
func NewWordGraph() WordGraph {
	return make(WordGraph)
}

// Add appends entry to the candidates of [start, end). It panics when the
// span is empty or reversed.
func (g WordGraph) Add(start, end int, entry *DictEntry) {
	if start < 0 || end <= start {
		panic(fmt.Sprintf("poet: malformed span [%d, %d)", start, end))
	}
	if entry == nil {
		panic(fmt.Sprintf("poet: nil entry for span [%d, %d)", start, end))
	}
	ends, ok := g[start]
	if !ok {
		ends = make(map[int][]*DictEntry)
		g[start] = ends
	}
	ends[end] = append(ends[end], entry)
}

// StartPositions returns the start positions of the graph in ascending order.
func (g WordGraph) StartPositions() []int {
	starts := make([]int, 0, len(g))
	for s := range g {
		starts = append(starts, s)
	}
	sort.Ints(starts)
	return starts
}

// EndPositions returns the end positions reachable from start in ascending order.
func (g WordGraph) EndPositions(start int) []int {
	ends := make([]int, 0, len(g[start]))
	for e := range g[start] {
		ends = append(ends, e)
	}
	sort.Ints(ends)
	return ends
}

// Entries returns the candidates covering [start, end).
func (g WordGraph) Entries(start, end int) []*DictEntry {
	return g[start][end]
}

// Size returns the number of entries in the graph.
func (g WordGraph) Size() int {
	n := 0
	for _, ends := range g {
		for _, entries := range ends {
			n += len(entries)
		}
	}
	return n
}

package poet

import "slices"

// Compare reports whether candidate should replace existing at a position.
type Compare func(existing, candidate *Sentence) bool

// LeftAssociateCompare prefers the higher weight. At equal weight the sentence
// with fewer components wins, and at equal size the candidate wins when the
// existing syllable lengths are lexicographically smaller. Anything else
// keeps existing.
func LeftAssociateCompare(existing, candidate *Sentence) bool {
	if existing.weight < candidate.weight {
		return true
	}
	if existing.weight != candidate.weight {
		return false
	}
	if existing.Size() > candidate.Size() {
		return true
	}
	if existing.Size() != candidate.Size() {
		return false
	}
	return slices.Compare(existing.syllableLengths, candidate.syllableLengths) < 0
}

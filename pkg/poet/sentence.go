package poet

import (
	"fmt"
	"slices"
	"strings"
)

// Sentence is a sequence of entries covering the input from position 0 up to
// End. It only changes through Extend; the DP keeps independent copies.
type Sentence struct {
	components      []*DictEntry
	syllableLengths []int
	text            string
	weight          float64
	end             int
}

// NewSentence returns an empty sentence at position 0.
func NewSentence() *Sentence {
	return &Sentence{}
}

// Copy returns a sentence sharing no mutable state with s.
func (s *Sentence) Copy() *Sentence {
	return &Sentence{
		components:      slices.Clone(s.components),
		syllableLengths: slices.Clone(s.syllableLengths),
		text:            s.text,
		weight:          s.weight,
		end:             s.end,
	}
}

// Extend appends entry, which must cover exactly [End, endPos). The weight
// grows by whatever scorer returns for the sentence as it was before the
// call; a nil scorer adds nothing. A span mismatch is a caller bug and panics.
func (s *Sentence) Extend(entry *DictEntry, endPos int, isRear bool, precedingText string, scorer Scorer) {
	if entry == nil {
		panic("poet: extend with nil entry")
	}
	span := endPos - s.end
	if span <= 0 || entry.Length != span {
		panic(fmt.Sprintf("poet: entry %q of length %d cannot cover [%d, %d)", entry.Text, entry.Length, s.end, endPos))
	}

	var delta float64
	if scorer != nil {
		delta = scorer.Score(s, entry, isRear, precedingText)
	}

	s.weight += delta
	s.components = append(s.components, entry)
	s.syllableLengths = append(s.syllableLengths, span)
	s.text += entry.Text
	s.end = endPos
}

// Weight is the cumulative score.
func (s *Sentence) Weight() float64 { return s.weight }

// End is the covered length.
func (s *Sentence) End() int { return s.end }

// Text is the concatenated text of all components.
func (s *Sentence) Text() string { return s.text }

// Size is the number of components.
func (s *Sentence) Size() int { return len(s.components) }

// Empty reports whether nothing has been selected yet.
func (s *Sentence) Empty() bool { return len(s.components) == 0 }

// Components returns the selected entries in reading order.
func (s *Sentence) Components() []*DictEntry {
	return slices.Clone(s.components)
}

// SyllableLengths returns the span length of every component in reading order.
func (s *Sentence) SyllableLengths() []int {
	return slices.Clone(s.syllableLengths)
}

// Last returns the most recently appended entry, or nil.
func (s *Sentence) Last() *DictEntry {
	if len(s.components) == 0 {
		return nil
	}
	return s.components[len(s.components)-1]
}

// Context is the left context a scorer should condition the next entry on:
// the preceding text while the sentence is empty, its own text afterwards.
func (s *Sentence) Context(precedingText string) string {
	if s.Empty() {
		return precedingText
	}
	return s.text
}

func (s *Sentence) String() string {
	parts := make([]string, len(s.components))
	for i, c := range s.components {
		parts[i] = c.Text
	}
	return fmt.Sprintf("%s (%g)", strings.Join(parts, "|"), s.weight)
}

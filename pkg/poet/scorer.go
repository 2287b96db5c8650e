package poet

// DefaultPenalty is log(1e-8), the cost of an entry no grammar vouches for.
const DefaultPenalty = -18.420680743952367

// Scorer returns the weight an entry adds when it is appended to sentence.
// Implementations must be deterministic for equal inputs and always return a
// finite number.
type Scorer interface {
	Score(sentence *Sentence, entry *DictEntry, isRear bool, precedingText string) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(sentence *Sentence, entry *DictEntry, isRear bool, precedingText string) float64

func (f ScorerFunc) Score(sentence *Sentence, entry *DictEntry, isRear bool, precedingText string) float64 {
	return f(sentence, entry, isRear, precedingText)
}

// NopScorer adds nothing; rankings fall through to the tie-breaks.
type NopScorer struct{}

func (NopScorer) Score(*Sentence, *DictEntry, bool, string) float64 { return 0 }

// UnigramScorer charges every entry its own weight plus a flat penalty.
// This is how sentences are scored when no grammar is available.
type UnigramScorer struct {
	Penalty float64
}

// NewUnigramScorer returns a UnigramScorer using DefaultPenalty.
func NewUnigramScorer() UnigramScorer {
	return UnigramScorer{Penalty: DefaultPenalty}
}

func (u UnigramScorer) Score(_ *Sentence, entry *DictEntry, _ bool, _ string) float64 {
	return entry.Weight + u.Penalty
}

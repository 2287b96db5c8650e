package dictionary

import "slices"

// Weights given to lexicon entries. They are log-scale priors: the scorer
// adds them to whatever the grammar contributes.
const (
	CommonWeight   = -2.0
	UncommonWeight = -5.0
	FallbackWeight = -12.0
)

// glossLimit bounds the number of glosses kept as an entry comment.
const glossLimit = 3

// Candidate is one (reading, spelling) pair derived from a JMdict entry.
type Candidate struct {
	Reading string
	Text    string
	Weight  float64
	Comment string
}

// Candidates expands JMdict entries into lexicon rows. Every kana reading is
// paired with each kanji spelling it applies to; kana-only words are paired
// with themselves. Readings are normalized to hiragana.
func Candidates(entries []JMdictEntry) []Candidate {
	var out []Candidate
	for _, e := range entries {
		comment := Gloss(e, glossLimit)
		for _, kana := range e.Kana {
			reading := ToHiragana(kana.Text)
			if reading == "" {
				continue
			}
			if len(e.Kanji) == 0 {
				out = append(out, Candidate{
					Reading: reading,
					Text:    kana.Text,
					Weight:  weightFor(kana.Common),
					Comment: comment,
				})
				continue
			}
			for _, kanji := range e.Kanji {
				if !appliesTo(kana, kanji.Text) {
					continue
				}
				out = append(out, Candidate{
					Reading: reading,
					Text:    kanji.Text,
					Weight:  weightFor(kana.Common && kanji.Common),
					Comment: comment,
				})
			}
		}
	}
	return out
}

func appliesTo(kana JMdictElement, kanji string) bool {
	if len(kana.AppliesToKanji) == 0 {
		return true
	}
	return slices.Contains(kana.AppliesToKanji, "*") || slices.Contains(kana.AppliesToKanji, kanji)
}

func weightFor(common bool) float64 {
	if common {
		return CommonWeight
	}
	return UncommonWeight
}

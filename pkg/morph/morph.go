// Package morph segments Japanese text with kagome and exposes the resulting
// morphemes as a word graph for the sentence maker.
package morph

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/japaniel/composer/pkg/dictionary"
	"github.com/japaniel/composer/pkg/poet"
)

// Mode priors added to the weight of every edge a segmentation mode proposes.
// Normal mode is the analyzer's own best path and is preferred.
const (
	NormalPrior   = 0.0
	SearchPrior   = -0.5
	ExtendedPrior = -2.0
	// FallbackWeight is used for single-character edges at positions no
	// mode split on.
	FallbackWeight = -12.0
)

// Token represents a single analyzed unit of text.
type Token struct {
	Surface       string   // The text as it appears (e.g. "行っ")
	BaseForm      string   // The dictionary form (e.g. "行く")
	Reading       string   // The pronunciation (katakana, e.g. "イッ")
	PartsOfSpeech []string // e.g. ["動詞", "自立", "*", "*"] (Kagome POS labels)
	PrimaryPOS    string
	Start         int // rune offset in the analyzed text
	End           int
}

// Analyzer handles text segmentation.
type Analyzer struct {
	t *tokenizer.Tokenizer
}

// NewAnalyzer creates a new tokenizer instance.
func NewAnalyzer() (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Analyzer{t: t}, nil
}

// Analyze breaks text into tokens with readings and base forms, skipping
// whitespace.
func (a *Analyzer) Analyze(text string) []Token {
	var out []Token
	for _, tok := range a.analyze(text, tokenizer.Normal) {
		if strings.TrimSpace(tok.Surface) == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func (a *Analyzer) analyze(text string, mode tokenizer.TokenizeMode) []Token {
	var result []Token
	for _, token := range a.t.Analyze(text, mode) {
		if token.Class == tokenizer.DUMMY {
			continue
		}
		// IPA features: 0-3 POS, 4-5 conjugation, 6 base form, 7 reading.
		features := token.Features()

		base := token.Surface
		if len(features) > 6 && features[6] != "*" {
			base = features[6]
		}
		reading := ""
		if len(features) > 7 && features[7] != "*" {
			reading = features[7]
		}
		primaryPOS := ""
		if len(features) > 0 {
			primaryPOS = features[0]
		}

		result = append(result, Token{
			Surface:       token.Surface,
			BaseForm:      base,
			Reading:       reading,
			PartsOfSpeech: features,
			PrimaryPOS:    primaryPOS,
			Start:         token.Start,
			End:           token.End,
		})
	}
	return result
}

// WordGraph merges the Normal, Search and Extended segmentations of text into
// one lattice over rune offsets and returns it with the text length in runes.
// A span proposed by several modes with the same surface keeps the best
// prior. Positions no mode splits on get a single-character fallback edge.
func (a *Analyzer) WordGraph(text string) (poet.WordGraph, int) {
	n := utf8.RuneCountInString(text)
	g := poet.NewWordGraph()
	if n == 0 {
		return g, 0
	}

	type key struct {
		start, end int
		surface    string
	}
	seen := make(map[key]bool)
	single := make([]bool, n)

	modes := []struct {
		mode  tokenizer.TokenizeMode
		prior float64
	}{
		{tokenizer.Normal, NormalPrior},
		{tokenizer.Search, SearchPrior},
		{tokenizer.Extended, ExtendedPrior},
	}
	for _, m := range modes {
		for _, tok := range a.analyze(text, m.mode) {
			if tok.End <= tok.Start || tok.End > n {
				continue
			}
			k := key{tok.Start, tok.End, tok.Surface}
			if seen[k] {
				continue
			}
			seen[k] = true
			if tok.End == tok.Start+1 {
				single[tok.Start] = true
			}
			g.Add(tok.Start, tok.End, &poet.DictEntry{
				Text:    tok.Surface,
				Reading: dictionary.ToHiragana(tok.Reading),
				Length:  tok.End - tok.Start,
				Weight:  m.prior,
				Comment: tok.PrimaryPOS,
			})
		}
	}

	runes := []rune(text)
	for i, ok := range single {
		if ok {
			continue
		}
		ch := string(runes[i])
		g.Add(i, i+1, &poet.DictEntry{Text: ch, Reading: dictionary.ToHiragana(ch), Length: 1, Weight: FallbackWeight})
	}
	return g, n
}

// SplitSentences splits text after 。！？ and newlines. Blank pieces are
// dropped and the rest are trimmed.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if r == '。' || r == '！' || r == '？' {
			flush()
		}
	}
	flush()
	return sentences
}

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses
// (<rp>...</rp>) from HTML so that furigana is not extracted along with the
// base text ("漢字" would otherwise become "漢字かんじ").
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, nil)
	return reRP.ReplaceAll(cleaned, nil)
}

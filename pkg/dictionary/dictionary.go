package dictionary

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	mmap "github.com/edsrzf/mmap-go"
)

// JMdictEntry matches the structure of jmdict-simplified entries.
type JMdictEntry struct {
	Id    string          `json:"id"`
	Kanji []JMdictElement `json:"kanji"`
	Kana  []JMdictElement `json:"kana"`
	Sense []JMdictSense   `json:"sense"`
}

type JMdictElement struct {
	Text           string   `json:"text"`
	Common         bool     `json:"common"`
	Tags           []string `json:"tags"`
	AppliesToKanji []string `json:"appliesToKanji"` // kana only; "*" means every spelling
}

type JMdictSense struct {
	PartOfSpeech []string      `json:"partOfSpeech"`
	Gloss        []JMdictGloss `json:"gloss"`
}

type JMdictGloss struct {
	Text string `json:"text"`
	Lang string `json:"lang"` // defaults to 'eng' if missing
}

// LoadJMdictSimplified maps the JSON file at path into memory and decodes it.
// Both the release layout ({"words": [...]}) and a bare array are accepted.
func LoadJMdictSimplified(path string) ([]JMdictEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("dictionary %s is empty", path)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	defer m.Unmap()

	return ParseJMdictSimplified(m)
}

// ParseJMdictSimplified decodes a jmdict-simplified document.
func ParseJMdictSimplified(data []byte) ([]JMdictEntry, error) {
	var wrapped struct {
		Words []JMdictEntry `json:"words"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Words) > 0 {
		return wrapped.Words, nil
	}

	var entries []JMdictEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse dictionary as object or array: %w", err)
	}
	return entries, nil
}

// Gloss renders the first few English glosses of an entry as a short comment.
func Gloss(e JMdictEntry, limit int) string {
	var glosses []string
	for _, s := range e.Sense {
		for _, g := range s.Gloss {
			if g.Lang != "" && g.Lang != "eng" {
				continue
			}
			glosses = append(glosses, g.Text)
			if limit > 0 && len(glosses) == limit {
				return strings.Join(glosses, "; ")
			}
		}
	}
	return strings.Join(glosses, "; ")
}

// ToHiragana converts Katakana to Hiragana.
func ToHiragana(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r >= 0x30A1 && r <= 0x30F6 {
			runes[i] = r - 0x60
		}
	}
	return string(runes)
}

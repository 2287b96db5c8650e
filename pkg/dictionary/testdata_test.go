package dictionary

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDict = `
{
  "words": [
    {
      "id": "1",
      "kanji": [{"text": "犬", "common": true}],
      "kana": [{"text": "いぬ", "common": true, "appliesToKanji": ["*"]}],
      "sense": [{"gloss": [{"lang": "eng", "text": "dog"}], "partOfSpeech": ["n"]}]
    },
    {
      "id": "2",
      "kanji": [{"text": "走る", "common": true}],
      "kana": [{"text": "はしる", "common": true, "appliesToKanji": ["*"]}],
      "sense": [{"gloss": [{"lang": "eng", "text": "to run"}], "partOfSpeech": ["v5r"]}]
    },
    {
      "id": "3",
      "kanji": [{"text": "猫", "common": true}, {"text": "ネコ", "common": false}],
      "kana": [{"text": "ねこ", "common": true, "appliesToKanji": ["猫"]}],
      "sense": [{"gloss": [{"lang": "eng", "text": "cat"}, {"lang": "ger", "text": "Katze"}], "partOfSpeech": ["n"]}]
    },
    {
      "id": "4",
      "kanji": [],
      "kana": [{"text": "テスト", "common": true}],
      "sense": [{"gloss": [{"text": "test"}, {"text": "exam"}, {"text": "trial"}, {"text": "check"}], "partOfSpeech": ["n", "vs"]}]
    },
    {
      "id": "5",
      "kanji": [{"text": "居ぬ", "common": false}],
      "kana": [{"text": "いぬ", "common": false}],
      "sense": [{"gloss": [{"text": "to not be"}], "partOfSpeech": ["v"]}]
    }
  ]
}
`

// writeSampleDict writes sampleDict to a temporary file and returns its path.
func writeSampleDict(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jmdict.json")
	if err := os.WriteFile(path, []byte(sampleDict), 0o644); err != nil {
		t.Fatalf("write dict: %v", err)
	}
	return path
}

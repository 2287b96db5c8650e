package db

import "time"

// Boundary markers stored in the bigrams table around every sentence.
const (
	SentenceStart = "^"
	SentenceEnd   = "$"
)

// Entry is one lexicon row: a word written as Text, typed as Reading.
type Entry struct {
	ID      int64
	Reading string
	Text    string
	Weight  float64
	Comment string
}

// Source is a provenance record for a batch of composed sentences.
type Source struct {
	ID         int64
	SourceType string
	Title      string
	Author     string
	Website    string
	URL        string
	Meta       string
	AddedAt    time.Time
}

// SentenceRecord is a composed sentence as stored.
type SentenceRecord struct {
	ID       int64
	SourceID int64
	Position int
	Input    string
	Text     string
	Words    []string // component texts in reading order
	Weight   float64
}

// Bigram counts how often Right followed Left in recorded sentences.
type Bigram struct {
	Left  string
	Right string
	Count int
}

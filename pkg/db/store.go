package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// UpsertEntry inserts a lexicon entry, returning its id. An existing
// (reading, text) pair keeps the higher weight, and its comment is replaced
// only when the weight rises.
func UpsertEntry(db DBExecutor, reading, text string, weight float64, comment string) (int64, error) {
	reading = strings.TrimSpace(reading)
	text = strings.TrimSpace(text)
	if reading == "" || text == "" {
		return 0, fmt.Errorf("entry reading and text must be non-empty")
	}

	var id int64
	err := db.QueryRow(`INSERT INTO entries (reading, text, weight, comment)
			  VALUES (?, ?, ?, ?)
			  ON CONFLICT(reading, text)
			  DO UPDATE SET
			    weight = MAX(entries.weight, excluded.weight),
			    comment = CASE WHEN excluded.weight > entries.weight THEN excluded.comment ELSE entries.comment END
			  RETURNING id`, reading, text, weight, comment).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert entry %s/%s: %w", reading, text, err)
	}
	return id, nil
}

// LoadEntries returns every lexicon entry ordered by reading, then by
// descending weight, then by id.
func LoadEntries(db DBExecutor) ([]Entry, error) {
	rows, err := db.Query(`SELECT id, reading, text, weight, comment FROM entries ORDER BY reading, weight DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var comment sql.NullString
		if err := rows.Scan(&e.ID, &e.Reading, &e.Text, &e.Weight, &comment); err != nil {
			return nil, err
		}
		e.Comment = comment.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateOrGetSource returns existing source id or inserts a new source and returns its id.
func CreateOrGetSource(db DBExecutor, sourceType, title, author, website, url, meta string) (int64, error) {
	trimmedSourceType := strings.TrimSpace(sourceType)
	if trimmedSourceType == "" {
		return 0, fmt.Errorf("sourceType must be non-empty")
	}

	const maxRetries = 3

	var id int64
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := db.QueryRow(
			`SELECT id FROM sources WHERE IFNULL(url, '') = ? AND IFNULL(title, '') = ? AND IFNULL(author, '') = ?`,
			url, title, author,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}

		res, err := db.Exec(
			`INSERT INTO sources (source_type, title, author, website, url, meta) VALUES (?, ?, ?, ?, ?, ?)`,
			trimmedSourceType, title, author, website, url, meta,
		)
		if err != nil {
			// Another writer inserted the same source; select it on the next attempt.
			if isUniqueConstraintErr(err) {
				continue
			}
			return 0, err
		}
		return res.LastInsertId()
	}

	return 0, fmt.Errorf("could not create or get source after %d retries", maxRetries)
}

// GetSourceProgress returns the last processed sentence index for a source,
// -1 when nothing has been processed yet.
func GetSourceProgress(db DBExecutor, sourceID int64) (int, error) {
	var index int
	err := db.QueryRow("SELECT last_processed_sentence FROM sources WHERE id = ?", sourceID).Scan(&index)
	if err != nil {
		return 0, err
	}
	return index, nil
}

// UpdateSourceProgress updates the last processed sentence index.
func UpdateSourceProgress(db DBExecutor, sourceID int64, index int) error {
	_, err := db.Exec("UPDATE sources SET last_processed_sentence = ? WHERE id = ?", index, sourceID)
	return err
}

// nullableInt64 returns nil for 0 (meaning no source) else the value.
func nullableInt64(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

// RecordSentence stores a composed sentence and counts every adjacent pair of
// its words, including the transitions from SentenceStart and to SentenceEnd.
// Recording a position of a source again replaces the sentence and the pairs
// it counted; pass a transaction to make the replacement atomic. sourceID 0
// records a sentence without provenance.
func RecordSentence(db DBExecutor, rec SentenceRecord) (int64, error) {
	if len(rec.Words) == 0 {
		return 0, fmt.Errorf("sentence must have at least one word")
	}
	seg, err := json.Marshal(rec.Words)
	if err != nil {
		return 0, fmt.Errorf("encode segmentation: %w", err)
	}

	if rec.SourceID != 0 {
		var old string
		err := db.QueryRow(`SELECT segmentation FROM sentences WHERE source_id = ? AND position = ?`,
			rec.SourceID, rec.Position).Scan(&old)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return 0, fmt.Errorf("look up sentence %d/%d: %w", rec.SourceID, rec.Position, err)
		default:
			var oldWords []string
			if err := json.Unmarshal([]byte(old), &oldWords); err != nil {
				return 0, fmt.Errorf("decode segmentation of sentence %d/%d: %w", rec.SourceID, rec.Position, err)
			}
			if err := forEachPair(oldWords, func(l, r string) error { return dropBigram(db, l, r) }); err != nil {
				return 0, err
			}
		}
	}

	var id int64
	err = db.QueryRow(`INSERT INTO sentences (source_id, position, input, text, segmentation, weight)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(source_id, position) DO UPDATE SET
	  input = excluded.input,
	  text = excluded.text,
	  segmentation = excluded.segmentation,
	  weight = excluded.weight
	RETURNING id`, nullableInt64(rec.SourceID), rec.Position, rec.Input, rec.Text, string(seg), rec.Weight).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sentence: %w", err)
	}

	if err := forEachPair(rec.Words, func(l, r string) error { return bumpBigram(db, l, r) }); err != nil {
		return 0, err
	}
	return id, nil
}

// forEachPair calls fn for every adjacent pair of words framed by
// SentenceStart and SentenceEnd.
func forEachPair(words []string, fn func(left, right string) error) error {
	prev := SentenceStart
	for _, w := range words {
		if err := fn(prev, w); err != nil {
			return err
		}
		prev = w
	}
	return fn(prev, SentenceEnd)
}

func bumpBigram(db DBExecutor, left, right string) error {
	_, err := db.Exec(`INSERT INTO bigrams (left_word, right_word, count) VALUES (?, ?, 1)
	ON CONFLICT(left_word, right_word) DO UPDATE SET count = bigrams.count + 1`, left, right)
	if err != nil {
		return fmt.Errorf("bump bigram %s→%s: %w", left, right, err)
	}
	return nil
}

// dropBigram takes back one count of a pair, removing it when none is left.
func dropBigram(db DBExecutor, left, right string) error {
	if _, err := db.Exec(`UPDATE bigrams SET count = count - 1 WHERE left_word = ? AND right_word = ?`, left, right); err != nil {
		return fmt.Errorf("drop bigram %s→%s: %w", left, right, err)
	}
	if _, err := db.Exec(`DELETE FROM bigrams WHERE left_word = ? AND right_word = ? AND count <= 0`, left, right); err != nil {
		return fmt.Errorf("drop bigram %s→%s: %w", left, right, err)
	}
	return nil
}

// LoadBigrams returns every bigram count.
func LoadBigrams(db DBExecutor) ([]Bigram, error) {
	rows, err := db.Query(`SELECT left_word, right_word, count FROM bigrams ORDER BY left_word, right_word`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bigram
	for rows.Next() {
		var b Bigram
		if err := rows.Scan(&b.Left, &b.Right, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SentencesBySource returns the sentences recorded for a source in position order.
func SentencesBySource(db DBExecutor, sourceID int64) ([]SentenceRecord, error) {
	rows, err := db.Query(`SELECT id, position, input, text, segmentation, weight FROM sentences WHERE source_id = ? ORDER BY position`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SentenceRecord
	for rows.Next() {
		rec := SentenceRecord{SourceID: sourceID}
		var seg string
		if err := rows.Scan(&rec.ID, &rec.Position, &rec.Input, &rec.Text, &seg, &rec.Weight); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(seg), &rec.Words); err != nil {
			return nil, fmt.Errorf("decode segmentation of sentence %d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

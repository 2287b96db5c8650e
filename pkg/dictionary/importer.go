package dictionary

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/japaniel/composer/pkg/db"
)

// Importer writes JMdict entries into the lexicon table.
type Importer struct {
	conn    *sql.DB
	entries []JMdictEntry
	logger  zerolog.Logger
}

// NewImporter creates an importer for the given dictionary entries.
func NewImporter(conn *sql.DB, entries []JMdictEntry) *Importer {
	return &Importer{
		conn:    conn,
		entries: entries,
		logger:  zerolog.Nop(),
	}
}

// WithLogger sets the logger used for progress messages.
func (im *Importer) WithLogger(l zerolog.Logger) *Importer {
	im.logger = l
	return im
}

// Import upserts every candidate of the dictionary in a single transaction and
// returns the number of rows written.
func (im *Importer) Import(ctx context.Context) (int, error) {
	candidates := Candidates(im.entries)
	im.logger.Info().Int("entries", len(im.entries)).Int("candidates", len(candidates)).Msg("importing dictionary")

	tx, err := im.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	count := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := db.UpsertEntry(tx, c.Reading, c.Text, c.Weight, c.Comment); err != nil {
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import (%d rows): %w", count, err)
	}
	im.logger.Info().Int("rows", count).Msg("dictionary imported")
	return count, nil
}

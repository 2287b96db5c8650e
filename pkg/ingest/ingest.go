package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/japaniel/composer/pkg/db"
	"github.com/japaniel/composer/pkg/poet"
)

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Composer turns one text into its best sentence given the text before it.
type Composer interface {
	Compose(text, precedingText string) (*poet.Sentence, error)
}

// ComposerFunc adapts a function to Composer.
type ComposerFunc func(text, precedingText string) (*poet.Sentence, error)

func (f ComposerFunc) Compose(text, precedingText string) (*poet.Sentence, error) {
	return f(text, precedingText)
}

// GraphBuilder turns a text into a word graph over its positions.
type GraphBuilder interface {
	WordGraph(text string) (poet.WordGraph, int)
}

// PoetComposer builds a graph for each text and lets Poet pick the sentence.
type PoetComposer struct {
	Graphs GraphBuilder
	Poet   *poet.Poet
}

func (c PoetComposer) Compose(text, precedingText string) (*poet.Sentence, error) {
	g, n := c.Graphs.WordGraph(text)
	return c.Poet.MakeSentence(g, n, precedingText)
}

// Stats summarizes a run. Only writes of committed batches are counted.
type Stats struct {
	Composed   int // sentences recorded
	NoReading  int // texts no path covered
	OverBudget int // texts whose graph exceeded the edge budget
}

// Ingester composes texts of a source and records the sentences.
type Ingester struct {
	DB        *sql.DB
	Composer  Composer
	BatchSize int
	Workers   int
	Logger    zerolog.Logger
	// OnProgress is called periodically with the number of processed texts and the total.
	OnProgress func(current, total int)
	// OnBatch is called with the size of every committed batch.
	OnBatch func(items int)

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewIngester creates a new Ingester.
func NewIngester(conn *sql.DB, composer Composer) *Ingester {
	return &Ingester{
		DB:        conn,
		Composer:  composer,
		BatchSize: 50,
		Workers:   4,
		Logger:    zerolog.Nop(),
	}
}

// composed is the outcome of one text before it is written.
type composed struct {
	Index    int
	Input    string
	Sentence *poet.Sentence
	Err      error
}

// Ingest composes texts in parallel and writes the results in text order,
// checkpointing the source after each one so an interrupted run resumes
// where it stopped. Each text is composed with the text before it as left
// context. Texts without a reading or over the edge budget are skipped and
// counted; any other composition error stops the run.
func (ig *Ingester) Ingest(ctx context.Context, sourceID int64, texts []string) (Stats, error) {
	if ig.Composer == nil {
		return Stats{}, errors.New("ingest: no composer configured")
	}

	lastProcessed, err := db.GetSourceProgress(ig.DB, sourceID)
	if err != nil {
		ig.Logger.Warn().Err(err).Int64("source", sourceID).Msg("failed to retrieve progress, starting over")
		lastProcessed = -1
	}

	total := len(texts)
	startIdx := lastProcessed + 1
	if startIdx >= total {
		return Stats{}, nil
	}
	if startIdx > 0 {
		ig.Logger.Info().Int("from", startIdx).Int("total", total).Msg("resuming source")
	}

	workers := ig.Workers
	if workers <= 0 {
		workers = 1
	}
	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2).WithLogger(ig.Logger)
	}
	resultCh := make(chan composed, workers*2)
	resultClosed := false
	doneCh := make(chan error, 1)

	var counts tally

	bw := NewBatchWriter(ig.DB, ig.BatchSize, 100*time.Millisecond).WithLogger(ig.Logger)
	bw.OnCommit = func(items int) {
		counts.commit()
		if ig.OnBatch != nil {
			ig.OnBatch(items)
		}
	}
	bw.OnRollback = func(int) { counts.discard() }
	var batchErr error
	var batchErrMu sync.Mutex
	bw.OnError = func(e error) {
		batchErrMu.Lock()
		if batchErr == nil {
			batchErr = e
		}
		batchErrMu.Unlock()
	}

	defer func() {
		wp.Close()
		if !resultClosed {
			close(resultCh)
		}
		_ = bw.Close()
	}()

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wp.Start(ctx)

	// Consumer: reorders results and hands them to the batch writer.
	go func() {
		defer close(doneCh)
		pending := make(map[int]composed)
		next := startIdx

		for res := range resultCh {
			pending[res.Index] = res
			for {
				item, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)

				if item.Err != nil && !skippable(item.Err) {
					cancel()
					doneCh <- fmt.Errorf("compose text %d: %w", item.Index, item.Err)
					return
				}
				if err := bw.Submit(ig.writeFunc(sourceID, item, &counts)); err != nil {
					cancel()
					doneCh <- err
					return
				}

				next++
				if ig.OnProgress != nil && ig.BatchSize > 0 && next%ig.BatchSize == 0 {
					ig.OnProgress(next, total)
				}
			}
		}

		if err := parent.Err(); err != nil {
			doneCh <- err
			return
		}
		if next < total {
			doneCh <- fmt.Errorf("ingest stopped at text %d of %d", next, total)
			return
		}
		if ig.OnProgress != nil {
			ig.OnProgress(total, total)
		}
		doneCh <- nil
	}()

	// Producer: one composition job per text.
Loop:
	for i := startIdx; i < total; i++ {
		select {
		case <-ctx.Done():
			break Loop
		default:
		}

		idx := i
		text := texts[i]
		preceding := ""
		if i > 0 {
			preceding = texts[i-1]
		}

		job := func(ctx context.Context) error {
			res := ig.compose(idx, text, preceding)
			select {
			case resultCh <- res:
			case <-ctx.Done():
			}
			return res.Err
		}

		if err := wp.SubmitCtx(ctx, job); err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrPoolClosed) {
				break Loop
			}
			return Stats{}, fmt.Errorf("submit text %d: %w", idx, err)
		}
	}

	// All workers have returned once Close does, so nothing sends on resultCh after this.
	wp.Close()
	close(resultCh)
	resultClosed = true

	consumerErr := <-doneCh

	if err := bw.Close(); err != nil && consumerErr == nil {
		consumerErr = err
	}
	batchErrMu.Lock()
	if batchErr != nil && consumerErr == nil {
		consumerErr = batchErr
	}
	batchErrMu.Unlock()

	stats := counts.stats()
	ig.Logger.Info().Int64("source", sourceID).Int("composed", stats.Composed).Int("no_reading", stats.NoReading).Int("over_budget", stats.OverBudget).Msg("ingest finished")
	return stats, consumerErr
}

// compose runs the composer, turning a panic from a malformed graph into an
// error for this text.
func (ig *Ingester) compose(index int, text, preceding string) (res composed) {
	res = composed{Index: index, Input: text}
	defer func() {
		if r := recover(); r != nil {
			res.Sentence = nil
			res.Err = fmt.Errorf("composer panicked: %v", r)
		}
	}()
	res.Sentence, res.Err = ig.Composer.Compose(text, preceding)
	return res
}

func skippable(err error) bool {
	return errors.Is(err, poet.ErrNoSentence) || errors.Is(err, poet.ErrEdgeBudget)
}

// tally stages the outcome of every write until its batch commits.
type tally struct {
	mu        sync.Mutex
	pending   Stats
	committed Stats
}

func (t *tally) stage(f func(*Stats)) {
	t.mu.Lock()
	f(&t.pending)
	t.mu.Unlock()
}

func (t *tally) commit() {
	t.mu.Lock()
	t.committed.Composed += t.pending.Composed
	t.committed.NoReading += t.pending.NoReading
	t.committed.OverBudget += t.pending.OverBudget
	t.pending = Stats{}
	t.mu.Unlock()
}

func (t *tally) discard() {
	t.mu.Lock()
	t.pending = Stats{}
	t.mu.Unlock()
}

func (t *tally) stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

func (ig *Ingester) writeFunc(sourceID int64, item composed, counts *tally) WriteFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		if item.Sentence == nil {
			if err := db.UpdateSourceProgress(tx, sourceID, item.Index); err != nil {
				return fmt.Errorf("failed to save progress: %w", err)
			}
			if errors.Is(item.Err, poet.ErrEdgeBudget) {
				counts.stage(func(s *Stats) { s.OverBudget++ })
			} else {
				counts.stage(func(s *Stats) { s.NoReading++ })
			}
			return nil
		}

		components := item.Sentence.Components()
		words := make([]string, len(components))
		for i, c := range components {
			words[i] = c.Text
		}
		if _, err := db.RecordSentence(tx, db.SentenceRecord{
			SourceID: sourceID,
			Position: item.Index,
			Input:    item.Input,
			Text:     item.Sentence.Text(),
			Words:    words,
			Weight:   item.Sentence.Weight(),
		}); err != nil {
			return fmt.Errorf("failed to record sentence %d: %w", item.Index, err)
		}
		if err := db.UpdateSourceProgress(tx, sourceID, item.Index); err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}
		counts.stage(func(s *Stats) { s.Composed++ })
		return nil
	}
}

package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/japaniel/composer/pkg/db"
	"github.com/japaniel/composer/pkg/dictionary"
	"github.com/japaniel/composer/pkg/poet"
)

func setupDB(t testing.TB) *sql.DB {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	return conn
}

func newSource(t testing.TB, conn *sql.DB, title string) int64 {
	t.Helper()
	id, err := db.CreateOrGetSource(conn, "test", title, "", "", "http://"+title, "")
	if err != nil {
		t.Fatal(err)
	}
	return id
}

// echo composes every text as a single word.
var echo = ComposerFunc(func(text, preceding string) (*poet.Sentence, error) {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return nil, poet.ErrNoSentence
	}
	s := poet.NewSentence()
	s.Extend(&poet.DictEntry{Text: text, Length: n}, n, true, preceding, nil)
	return s, nil
})

func weatherComposer() Composer {
	lx := dictionary.NewLexicon(dictionary.WithKanaFallback(dictionary.FallbackWeight))
	lx.Add("きょう", "今日", dictionary.CommonWeight, "")
	lx.Add("あした", "明日", dictionary.CommonWeight, "")
	lx.Add("は", "は", dictionary.CommonWeight, "")
	lx.Add("はれ", "晴れ", dictionary.CommonWeight, "")
	lx.Add("あめ", "雨", dictionary.CommonWeight, "")
	return PoetComposer{Graphs: lx, Poet: poet.New(poet.WithScorer(poet.NewUnigramScorer()))}
}

func TestIngestRecordsSentences(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	sourceID := newSource(t, conn, "weather")

	texts := []string{"きょうははれ", "", "あしたはあめ"}
	ingester := NewIngester(conn, weatherComposer())
	ingester.BatchSize = 2

	var progress []int
	ingester.OnProgress = func(current, total int) { progress = append(progress, current) }

	stats, err := ingester.Ingest(context.Background(), sourceID, texts)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if stats != (Stats{Composed: 2, NoReading: 1}) {
		t.Errorf("unexpected stats %+v", stats)
	}
	if fmt.Sprint(progress) != "[2 3]" {
		t.Errorf("unexpected progress calls %v", progress)
	}

	recs, err := db.SentencesBySource(conn, sourceID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 sentences, got %d", len(recs))
	}
	if recs[0].Position != 0 || recs[0].Text != "今日は晴れ" || fmt.Sprint(recs[0].Words) != "[今日 は 晴れ]" {
		t.Errorf("unexpected first sentence %+v", recs[0])
	}
	if recs[1].Position != 2 || recs[1].Text != "明日は雨" || recs[1].Input != "あしたはあめ" {
		t.Errorf("unexpected second sentence %+v", recs[1])
	}

	last, err := db.GetSourceProgress(conn, sourceID)
	if err != nil {
		t.Fatal(err)
	}
	if last != 2 {
		t.Errorf("expected progress 2, got %d", last)
	}

	bigrams, err := db.LoadBigrams(conn)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]int{}
	for _, b := range bigrams {
		counts[b.Left+"→"+b.Right] = b.Count
	}
	if counts["は→晴れ"] != 1 || counts["は→雨"] != 1 || counts[db.SentenceStart+"→今日"] != 1 {
		t.Errorf("unexpected bigrams %v", counts)
	}
}

func TestIngestResume(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	sourceID := newSource(t, conn, "resume")

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("テスト%d", i)
	}

	// Texts 0 to 4 were handled by an earlier run.
	if err := db.UpdateSourceProgress(conn, sourceID, 4); err != nil {
		t.Fatal(err)
	}

	ingester := NewIngester(conn, echo)
	ingester.BatchSize = 2

	stats, err := ingester.Ingest(context.Background(), sourceID, texts)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if stats.Composed != 5 {
		t.Errorf("Expected 5 composed texts, got %d", stats.Composed)
	}

	recs, err := db.SentencesBySource(conn, sourceID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 5 || recs[0].Position != 5 {
		t.Fatalf("expected positions 5..9, got %+v", recs)
	}

	// Nothing is left to do on a second run.
	stats, err = ingester.Ingest(context.Background(), sourceID, texts)
	if err != nil || stats != (Stats{}) {
		t.Errorf("expected no work, got %+v, %v", stats, err)
	}
}

func TestIngestPassesPrecedingText(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	sourceID := newSource(t, conn, "context")

	texts := []string{"一", "二", "三", "四", "五", "六"}
	var mu sync.Mutex
	seen := map[string]string{}
	composer := ComposerFunc(func(text, preceding string) (*poet.Sentence, error) {
		mu.Lock()
		seen[text] = preceding
		mu.Unlock()
		return echo(text, preceding)
	})

	ingester := NewIngester(conn, composer)
	ingester.Workers = 3
	if _, err := ingester.Ingest(context.Background(), sourceID, texts); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	for i, text := range texts {
		want := ""
		if i > 0 {
			want = texts[i-1]
		}
		if seen[text] != want {
			t.Errorf("text %q composed after %q, want %q", text, seen[text], want)
		}
	}
}

func TestIngestCountsOverBudget(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	sourceID := newSource(t, conn, "budget")

	composer := ComposerFunc(func(text, preceding string) (*poet.Sentence, error) {
		if text == "長い" {
			return nil, fmt.Errorf("%w: more than 1 edges", poet.ErrEdgeBudget)
		}
		return echo(text, preceding)
	})
	stats, err := NewIngester(conn, composer).Ingest(context.Background(), sourceID, []string{"短い", "長い", "短い"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if stats != (Stats{Composed: 2, OverBudget: 1}) {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestIngestStopsOnComposerError(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	sourceID := newSource(t, conn, "failure")

	boom := errors.New("boom")
	composer := ComposerFunc(func(text, preceding string) (*poet.Sentence, error) {
		if text == "3" {
			return nil, boom
		}
		return echo(text, preceding)
	})

	texts := []string{"0", "1", "2", "3", "4", "5", "6", "7"}
	ingester := NewIngester(conn, composer)
	ingester.Workers = 1
	ingester.BatchSize = 1

	_, err := ingester.Ingest(context.Background(), sourceID, texts)
	if !errors.Is(err, boom) {
		t.Fatalf("expected composer error, got %v", err)
	}

	last, err := db.GetSourceProgress(conn, sourceID)
	if err != nil {
		t.Fatal(err)
	}
	if last != 2 {
		t.Errorf("expected progress to stop at 2, got %d", last)
	}
}

func TestIngestCountsOnlyCommittedWrites(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	sourceID := newSource(t, conn, "rollback")

	if _, err := conn.Exec(`CREATE TRIGGER reject_position BEFORE INSERT ON sentences
		WHEN NEW.position = 2 BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatal(err)
	}

	texts := []string{"0", "1", "2", "3"}
	ingester := NewIngester(conn, echo)
	ingester.Workers = 1
	ingester.BatchSize = 10

	stats, err := ingester.Ingest(context.Background(), sourceID, texts)
	if err == nil {
		t.Fatal("expected the rejected batch to fail the run")
	}

	recs, err := db.SentencesBySource(conn, sourceID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Composed != len(recs) {
		t.Errorf("stats count %d sentences but %d were stored", stats.Composed, len(recs))
	}
	if stats.Composed >= len(texts) {
		t.Errorf("rolled back sentences were counted: %+v", stats)
	}
}

func TestIngestRecoversComposerPanic(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	sourceID := newSource(t, conn, "panic")

	composer := ComposerFunc(func(text, preceding string) (*poet.Sentence, error) {
		panic("entry length does not match its span")
	})
	_, err := NewIngester(conn, composer).Ingest(context.Background(), sourceID, []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error from panicking composer")
	}
}

func TestIngestContextCancel(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	sourceID := newSource(t, conn, "cancel")

	texts := make([]string, 100)
	for i := range texts {
		texts[i] = "テスト"
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := NewIngester(conn, echo).Ingest(ctx, sourceID, texts)
	if stats.Composed != 0 {
		t.Errorf("Expected 0 composed texts with cancelled context, got %d", stats.Composed)
	}
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled error, got %v", err)
	}
}

// failingPool always returns an error on Submit to simulate producer error.
type failingPool struct{}

func (f *failingPool) Start(ctx context.Context) {}
func (f *failingPool) Submit(job Job) error      { return errors.New("submit failed") }
func (f *failingPool) SubmitCtx(ctx context.Context, job Job) error {
	return errors.New("submit failed")
}
func (f *failingPool) Close() {}

func TestIngestHandlesSubmitError(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	sourceID := newSource(t, conn, "submit")

	ingester := NewIngester(conn, echo)
	ingester.PoolFactory = func(workers, queue int) WorkerPoolInterface { return &failingPool{} }

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := ingester.Ingest(ctx, sourceID, []string{"a", "b", "c"}); err == nil {
		t.Fatalf("expected submit error, got nil")
	}
}

func TestIngestRequiresComposer(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	if _, err := NewIngester(conn, nil).Ingest(context.Background(), 1, []string{"a"}); err == nil {
		t.Fatal("expected error without composer")
	}
}

package morph

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/composer/pkg/poet"
)

const sumomo = "すもももももももものうち"

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer()
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}
	return a
}

func TestAnalyze(t *testing.T) {
	a := newAnalyzer(t)
	tokens := a.Analyze(sumomo)

	var surfaces []string
	for _, tok := range tokens {
		surfaces = append(surfaces, tok.Surface)
		if tok.PrimaryPOS == "" || tok.PrimaryPOS != tok.PartsOfSpeech[0] {
			t.Errorf("token %q: PrimaryPOS %q does not match features", tok.Surface, tok.PrimaryPOS)
		}
	}
	assert.Equal(t, []string{"すもも", "も", "もも", "も", "もも", "の", "うち"}, surfaces)
	assert.Equal(t, 0, tokens[0].Start)
	assert.Equal(t, 3, tokens[0].End)
	assert.Equal(t, "スモモ", tokens[0].Reading)
	assert.Equal(t, 12, tokens[len(tokens)-1].End)
}

func TestAnalyzeSkipsWhitespace(t *testing.T) {
	a := newAnalyzer(t)
	for _, tok := range a.Analyze("猫 と 犬") {
		if strings.TrimSpace(tok.Surface) == "" {
			t.Fatalf("whitespace token returned")
		}
	}
}

func TestWordGraph(t *testing.T) {
	a := newAnalyzer(t)
	g, n := a.WordGraph(sumomo)
	require.Equal(t, 12, n)

	head := g.Entries(0, 3)
	require.NotEmpty(t, head)
	assert.Equal(t, "すもも", head[0].Text)
	assert.Equal(t, "すもも", head[0].Reading)
	assert.Equal(t, NormalPrior, head[0].Weight)
	assert.Equal(t, 3, head[0].Length)

	for start, ends := range g {
		for end, entries := range ends {
			for _, e := range entries {
				assert.Equal(t, end-start, e.Length)
			}
		}
	}

	s, err := poet.New(poet.WithScorer(poet.NewUnigramScorer())).MakeSentence(g, n, "")
	require.NoError(t, err)
	assert.Equal(t, sumomo, s.Text())
	assert.Equal(t, n, s.End())
}

func TestWordGraphDeduplicatesModes(t *testing.T) {
	a := newAnalyzer(t)
	g, _ := a.WordGraph(sumomo)
	for start, ends := range g {
		for end, entries := range ends {
			seen := map[string]bool{}
			for _, e := range entries {
				if seen[e.Text] {
					t.Errorf("duplicate %q at [%d,%d)", e.Text, start, end)
				}
				seen[e.Text] = true
			}
		}
	}
}

func TestWordGraphEmpty(t *testing.T) {
	a := newAnalyzer(t)
	g, n := a.WordGraph("")
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, g.Size())
}

func TestWordGraphCoversEveryPosition(t *testing.T) {
	a := newAnalyzer(t)
	text := "東京都に住んでいます。"
	g, n := a.WordGraph(text)

	reachable := map[int]bool{0: true}
	for _, start := range g.StartPositions() {
		if !reachable[start] {
			continue
		}
		for _, end := range g.EndPositions(start) {
			reachable[end] = true
		}
	}
	assert.True(t, reachable[n], "end of text must be reachable")
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("今日は晴れ。明日は？\n\n  雨かも！最後")
	assert.Equal(t, []string{"今日は晴れ。", "明日は？", "雨かも！", "最後"}, got)
	assert.Empty(t, SplitSentences(" \n\n "))
}

func TestSanitizeRuby(t *testing.T) {
	in := []byte(`<p><ruby>漢字<rp>(</rp><RT class="f">かんじ</RT><rp>)</rp></ruby>を読む</p>`)
	out := SanitizeRuby(in)
	assert.Equal(t, `<p><ruby>漢字</ruby>を読む</p>`, string(out))
}

func articleHTML() string {
	var body strings.Builder
	for i := 0; i < 12; i++ {
		body.WriteString(`<p>この記事は<ruby>漢字<rp>(</rp><rt>かんじ</rt><rp>)</rp></ruby>の読み方について説明します。`)
		body.WriteString(`日本語の文章には多くの漢字が含まれており、読み方を覚えるのは大変です。</p>`)
	}
	return `<html><head><title>漢字の読み方</title></head><body>` +
		`<nav><a href="/">ホーム</a></nav><article><h1>漢字の読み方</h1>` + body.String() +
		`</article></body></html>`
}

func TestExtract(t *testing.T) {
	pageURL, _ := url.Parse("http://localhost/kanji")
	article, err := Extract([]byte(articleHTML()), pageURL)
	require.NoError(t, err)

	assert.Contains(t, article.Title, "漢字の読み方")
	assert.Contains(t, article.Text, "漢字の読み方について")
	assert.NotContains(t, article.Text, "かんじ")
}

func TestExtractWithoutURL(t *testing.T) {
	article, err := Extract([]byte(articleHTML()), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, article.Text)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/article":
			w.Write([]byte(articleHTML()))
		case "/huge":
			w.Write(bytes.Repeat([]byte("あ"), MaxBodySize/3+1))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	body, err := Fetch(context.Background(), srv.URL+"/article")
	require.NoError(t, err)
	assert.Equal(t, articleHTML(), string(body))

	_, err = Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)

	_, err = Fetch(context.Background(), srv.URL+"/huge")
	assert.ErrorContains(t, err, "exceed")
}

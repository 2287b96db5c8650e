package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/japaniel/composer/pkg/db"
	"github.com/japaniel/composer/pkg/ingest"
	"github.com/japaniel/composer/pkg/metrics"
	"github.com/japaniel/composer/pkg/morph"
	"github.com/japaniel/composer/pkg/poet"
)

func newSegmentCmd(a *app) *cobra.Command {
	var (
		rawURL string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "segment",
		Short: "Segment an article into sentences and record them",
		Long: `Fetch an article (or read a local HTML file), extract its text, split it
into sentences and compose each one over the morphological word graph.
The recorded sentences feed the bigram grammar used by compose.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if (rawURL == "") == (file == "") {
				return fmt.Errorf("exactly one of --url or --file is required")
			}

			var (
				body       []byte
				pageURL    *url.URL
				sourceType = "website_article"
				location   = rawURL
				err        error
			)
			if rawURL != "" {
				pageURL, err = url.Parse(rawURL)
				if err != nil {
					return fmt.Errorf("invalid url: %w", err)
				}
				a.logger.Info().Str("url", rawURL).Msg("fetching article")
				if body, err = morph.Fetch(ctx, rawURL); err != nil {
					return err
				}
			} else {
				abs, err := filepath.Abs(file)
				if err != nil {
					return err
				}
				if body, err = os.ReadFile(abs); err != nil {
					return err
				}
				pageURL = &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
				sourceType = "local_file"
				location = pageURL.String()
			}

			article, err := morph.Extract(body, pageURL)
			if err != nil {
				return err
			}
			sentences := morph.SplitSentences(article.Text)
			a.logger.Info().Str("title", article.Title).Int("sentences", len(sentences)).Msg("article extracted")

			conn, err := a.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			sourceID, err := db.CreateOrGetSource(conn, sourceType, article.Title, article.Byline, article.SiteName, location, "")
			if err != nil {
				return fmt.Errorf("failed to persist source: %w", err)
			}

			analyzer, err := morph.NewAnalyzer()
			if err != nil {
				return err
			}
			m := metrics.New(nil)
			opts := append(a.poetOptions(poet.NewUnigramScorer()), poet.WithObserver(m.ObserveSweep))

			ig := ingest.NewIngester(conn, ingest.PoetComposer{Graphs: analyzer, Poet: poet.New(opts...)})
			ig.Workers = a.cfg.Ingest.Workers
			ig.BatchSize = a.cfg.Ingest.BatchSize
			ig.Logger = a.logger
			ig.OnBatch = m.ObserveBatch
			ig.OnProgress = func(current, total int) {
				a.logger.Debug().Int("current", current).Int("total", total).Msg("segmenting")
			}

			start := time.Now()
			stats, err := ig.Ingest(ctx, sourceID, sentences)
			if err != nil {
				return fmt.Errorf("segmentation failed: %w", err)
			}
			fmt.Fprintf(a.out, "source %d: %d sentences composed, %d without reading, %d over budget (%v)\n",
				sourceID, stats.Composed, stats.NoReading, stats.OverBudget, time.Since(start).Round(time.Millisecond))

			sum, err := m.Summary()
			if err != nil {
				a.logger.Warn().Err(err).Msg("failed to read segmentation metrics")
				return nil
			}
			a.logger.Info().
				Uint64("sweeps", sum.Sweeps).
				Float64("edges", sum.Edges).
				Float64("sweep_seconds", sum.SweepSeconds).
				Uint64("batches", sum.Batches).
				Float64("batch_items", sum.BatchItems).
				Interface("results", sum.Results).
				Msg("segmentation metrics")
			fmt.Fprintf(a.out, "%d sweeps over %.0f edges in %d batches\n", sum.Sweeps, sum.Edges, sum.Batches)
			return nil
		},
	}
	cmd.Flags().StringVar(&rawURL, "url", "", "Article URL to fetch")
	cmd.Flags().StringVar(&file, "file", "", "Local HTML file to read")
	return cmd
}

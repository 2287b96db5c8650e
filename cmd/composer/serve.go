package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/japaniel/composer/internal/server"
	"github.com/japaniel/composer/pkg/metrics"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the compose API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			conn, err := a.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			lx, err := a.loadLexicon(ctx, conn)
			if err != nil {
				return err
			}
			scorer, err := a.scorer(conn)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			opts := server.Options{
				Graphs:      lx,
				Scorer:      scorer,
				MaxEdges:    a.cfg.Poet.MaxEdges,
				MaxInputLen: a.cfg.Server.MaxInputLen,
				Metrics:     m,
				Gatherer:    reg,
				Logger:      a.logger,
			}
			words, closeWords := a.userWords()
			defer closeWords()
			if words != nil {
				opts.UserWords = words
			}

			a.logger.Info().Str("addr", addr).Int("lexicon", lx.Len()).Msg("starting server")
			return server.New(opts).ListenAndServe(ctx, addr, a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

// Package server exposes sentence making over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/japaniel/composer/pkg/grammar"
	"github.com/japaniel/composer/pkg/ingest"
	"github.com/japaniel/composer/pkg/metrics"
	"github.com/japaniel/composer/pkg/poet"
	"github.com/japaniel/composer/pkg/userdict"
)

// UserWords is the user dictionary as the server needs it.
type UserWords interface {
	Add(ctx context.Context, word string, boost float64) error
	Remove(ctx context.Context, word string) error
	Snapshot(ctx context.Context) userdict.Snapshot
}

// Options wires the server's collaborators. Graphs is required; the rest
// may be left zero. A negative MaxEdges is treated as no budget.
type Options struct {
	Graphs      ingest.GraphBuilder
	Scorer      poet.Scorer // defaults to a unigram scorer
	UserWords   UserWords
	MaxEdges    int
	MaxInputLen int
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Logger      zerolog.Logger
}

// Server routes the composer API.
type Server struct {
	router *mux.Router
	opts   Options
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Scorer == nil {
		opts.Scorer = poet.NewUnigramScorer()
	}
	if opts.MaxInputLen <= 0 {
		opts.MaxInputLen = 256
	}
	if opts.MaxEdges < 0 {
		opts.Logger.Warn().Int("max_edges", opts.MaxEdges).Msg("negative edge budget, composing without one")
		opts.MaxEdges = 0
	}
	s := &Server{router: mux.NewRouter(), opts: opts}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/compose", s.handleCompose).Methods(http.MethodPost)
	api.HandleFunc("/user-words", s.handleAddUserWord).Methods(http.MethodPost)
	api.HandleFunc("/user-words/{word}", s.handleRemoveUserWord).Methods(http.MethodDelete)

	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if s.opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info().Str("addr", addr).Msg("starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.opts.Logger.Info().Msg("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestIDMiddleware tags every request with an id, reusing the caller's.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		logger := s.opts.Logger.With().Str("request_id", requestID).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		zerolog.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

type composeRequest struct {
	Input         string `json:"input"`
	PrecedingText string `json:"preceding_text"`
}

type wordResponse struct {
	Text    string  `json:"text"`
	Reading string  `json:"reading,omitempty"`
	Length  int     `json:"length"`
	Weight  float64 `json:"weight"`
	Comment string  `json:"comment,omitempty"`
}

type composeResponse struct {
	Text            string         `json:"text"`
	Weight          float64        `json:"weight"`
	Words           []wordResponse `json:"words"`
	SyllableLengths []int          `json:"syllable_lengths"`
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "input must not be empty")
		return
	}
	if utf8.RuneCountInString(req.Input) > s.opts.MaxInputLen {
		writeError(w, http.StatusBadRequest, "input too long")
		return
	}

	scorer := s.opts.Scorer
	if s.opts.UserWords != nil {
		// One snapshot per request keeps the scorer fixed for the sweep.
		snap := s.opts.UserWords.Snapshot(r.Context())
		if s.opts.Metrics != nil {
			s.opts.Metrics.UserWords.Set(float64(len(snap)))
		}
		scorer = grammar.Combine(scorer, snap)
	}

	popts := []poet.Option{
		poet.WithScorer(scorer),
		poet.WithMaxEdges(s.opts.MaxEdges),
		poet.WithLogger(*zerolog.Ctx(r.Context())),
	}
	if s.opts.Metrics != nil {
		popts = append(popts, poet.WithObserver(s.opts.Metrics.ObserveSweep))
	}

	graph, n := s.opts.Graphs.WordGraph(req.Input)
	sentence, err := poet.New(popts...).MakeSentence(graph, n, req.PrecedingText)
	switch {
	case errors.Is(err, poet.ErrNoSentence):
		writeError(w, http.StatusUnprocessableEntity, "no reading")
		return
	case errors.Is(err, poet.ErrEdgeBudget):
		writeError(w, http.StatusUnprocessableEntity, "input too ambiguous")
		return
	case err != nil:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("compose failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := composeResponse{
		Text:            sentence.Text(),
		Weight:          sentence.Weight(),
		SyllableLengths: sentence.SyllableLengths(),
	}
	for _, c := range sentence.Components() {
		resp.Words = append(resp.Words, wordResponse{
			Text:    c.Text,
			Reading: c.Reading,
			Length:  c.Length,
			Weight:  c.Weight,
			Comment: c.Comment,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type userWordRequest struct {
	Word  string  `json:"word"`
	Boost float64 `json:"boost"`
}

func (s *Server) handleAddUserWord(w http.ResponseWriter, r *http.Request) {
	if s.opts.UserWords == nil {
		writeError(w, http.StatusServiceUnavailable, "user dictionary disabled")
		return
	}
	var req userWordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	err := s.opts.UserWords.Add(r.Context(), req.Word, req.Boost)
	switch {
	case errors.Is(err, userdict.ErrInvalidWord):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("add user word failed")
		writeError(w, http.StatusBadGateway, "user dictionary unavailable")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRemoveUserWord(w http.ResponseWriter, r *http.Request) {
	if s.opts.UserWords == nil {
		writeError(w, http.StatusServiceUnavailable, "user dictionary disabled")
		return
	}
	if err := s.opts.UserWords.Remove(r.Context(), mux.Vars(r)["word"]); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("remove user word failed")
		writeError(w, http.StatusBadGateway, "user dictionary unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

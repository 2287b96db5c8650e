// Package metrics defines the Prometheus collectors for sentence making.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/japaniel/composer/pkg/poet"
)

// Result labels of composer_sentences_total.
const (
	ResultComposed   = "composed"
	ResultNoReading  = "no_reading"
	ResultOverBudget = "over_budget"
	ResultError      = "error"
)

// Metrics holds the composer collectors.
type Metrics struct {
	Sentences     *prometheus.CounterVec
	SweepEdges    prometheus.Histogram
	SweepDuration prometheus.Histogram
	BatchItems    prometheus.Histogram
	UserWords     prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sentences: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composer_sentences_total",
				Help: "Sentence sweeps by result",
			},
			[]string{"result"},
		),
		SweepEdges: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "composer_sweep_edges",
				Help:    "Graph edges examined per sweep",
				Buckets: prometheus.ExponentialBuckets(4, 4, 8),
			},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "composer_sweep_duration_seconds",
				Help:    "Duration of a sentence sweep in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		BatchItems: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "composer_ingest_batch_items",
				Help:    "Sentences committed per ingest batch",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
		),
		UserWords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "composer_user_words",
				Help: "User dictionary words in the last snapshot",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Sentences, m.SweepEdges, m.SweepDuration, m.BatchItems, m.UserWords)
	}
	return m
}

// ObserveSweep records one sweep. It has the signature of poet.Observer.
func (m *Metrics) ObserveSweep(edges int, elapsed time.Duration, err error) {
	m.SweepEdges.Observe(float64(edges))
	m.SweepDuration.Observe(elapsed.Seconds())
	m.Sentences.WithLabelValues(Result(err)).Inc()
}

// ObserveBatch records the size of a committed ingest batch.
func (m *Metrics) ObserveBatch(items int) {
	m.BatchItems.Observe(float64(items))
}

// Result maps a sweep error to its result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultComposed
	case errors.Is(err, poet.ErrNoSentence):
		return ResultNoReading
	case errors.Is(err, poet.ErrEdgeBudget):
		return ResultOverBudget
	default:
		return ResultError
	}
}

// Summary is a point-in-time reading of the sweep and batch collectors, for
// runs that end before anything scrapes them.
type Summary struct {
	Sweeps       uint64
	Edges        float64
	SweepSeconds float64
	Batches      uint64
	BatchItems   float64
	Results      map[string]float64
}

// Summary reads the current values of the collectors.
func (m *Metrics) Summary() (Summary, error) {
	s := Summary{Results: map[string]float64{}}

	var pb dto.Metric
	if err := m.SweepEdges.Write(&pb); err != nil {
		return s, err
	}
	s.Sweeps = pb.GetHistogram().GetSampleCount()
	s.Edges = pb.GetHistogram().GetSampleSum()

	pb.Reset()
	if err := m.SweepDuration.Write(&pb); err != nil {
		return s, err
	}
	s.SweepSeconds = pb.GetHistogram().GetSampleSum()

	pb.Reset()
	if err := m.BatchItems.Write(&pb); err != nil {
		return s, err
	}
	s.Batches = pb.GetHistogram().GetSampleCount()
	s.BatchItems = pb.GetHistogram().GetSampleSum()

	ch := make(chan prometheus.Metric)
	go func() {
		m.Sentences.Collect(ch)
		close(ch)
	}()
	var firstErr error
	for metric := range ch {
		var c dto.Metric
		if err := metric.Write(&c); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, l := range c.GetLabel() {
			if l.GetName() == "result" {
				s.Results[l.GetValue()] = c.GetCounter().GetValue()
			}
		}
	}
	return s, firstErr
}

// Package metrics exposes decoding counters and histograms on a private
// Prometheus registry. Batch runs dump it as a textfile; the server serves it.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/decoding"
)

// Prompt statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics holds the decoding collectors.
type Metrics struct {
	registry *prometheus.Registry

	prompts         *prometheus.CounterVec
	promptDuration  prometheus.Histogram
	sentences       *prometheus.CounterVec
	attempts        prometheus.Histogram
	candidateScores prometheus.Histogram
	rejected        prometheus.Counter
	passageWords    prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		prompts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "halluguard_prompts_total",
			Help: "Prompts processed, by status",
		}, []string{"status"}),
		promptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "halluguard_prompt_duration_seconds",
			Help:    "Wall time to produce baseline and filtered output for one prompt",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		sentences: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "halluguard_sentences_total",
			Help: "Sentence positions resolved, by decision",
		}, []string{"decision"}),
		attempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "halluguard_attempts_per_sentence",
			Help:    "Regeneration attempts used per sentence position",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		}),
		candidateScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "halluguard_candidate_score",
			Help:    "Hallucination scores of every generated candidate",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "halluguard_rejected_candidates_total",
			Help: "Best-of-attempt candidates that missed the threshold",
		}),
		passageWords: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "halluguard_passage_words",
			Help:    "Whitespace-token length of filtered passages",
			Buckets: []float64{10, 50, 100, 150, 200, 250, 300, 400},
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePrompt records one processed prompt.
func (m *Metrics) ObservePrompt(status string, elapsed time.Duration) {
	m.prompts.WithLabelValues(status).Inc()
	m.promptDuration.Observe(elapsed.Seconds())
}

// ObservePassage records the sentence-level trace of a filtered generation.
func (m *Metrics) ObservePassage(res decoding.Result) {
	for _, pos := range res.Positions {
		decision := string(pos.Decision)
		if strings.TrimSpace(pos.Sentence) == "" {
			decision = "stall"
		}
		m.sentences.WithLabelValues(decision).Inc()
		m.attempts.Observe(float64(len(pos.Attempts)))
		for _, a := range pos.Attempts {
			for _, c := range a.Candidates {
				m.candidateScores.Observe(c.Score)
			}
		}
	}
	m.rejected.Add(float64(len(res.Rejected)))
	m.passageWords.Observe(float64(res.WordCount))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the current values for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

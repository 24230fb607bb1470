package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/decoding"
)

func sampleResult() decoding.Result {
	return decoding.Result{
		WordCount: 4,
		Rejected:  []string{"bad."},
		Positions: []decoding.Position{
			{
				Sentence: "good one here.",
				Decision: decoding.DecisionAccept,
				Attempts: []decoding.Attempt{
					{Candidates: []decoding.ScoredCandidate{{Text: "bad.", Score: 0.9}}},
					{Candidates: []decoding.ScoredCandidate{{Text: "good one here.", Score: 0.1}}},
				},
			},
			{
				Sentence: "",
				Decision: decoding.DecisionAccept,
				Attempts: []decoding.Attempt{{Candidates: []decoding.ScoredCandidate{{Text: "", Score: 0}}}},
			},
		},
	}
}

func TestObservePassage(t *testing.T) {
	m := New()
	m.ObservePassage(sampleResult())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sentences.WithLabelValues("accept")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sentences.WithLabelValues("stall")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var scoreSamples uint64
	for _, mf := range families {
		if mf.GetName() == "halluguard_candidate_score" {
			scoreSamples = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(3), scoreSamples)
}

func TestObservePrompt(t *testing.T) {
	m := New()
	m.ObservePrompt(StatusOK, 2*time.Second)
	m.ObservePrompt(StatusFailed, time.Second)
	m.ObservePrompt(StatusOK, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.prompts.WithLabelValues(StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.prompts.WithLabelValues(StatusFailed)))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObservePassage(sampleResult())

	path := filepath.Join(t.TempDir(), "halluguard.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "halluguard_rejected_candidates_total 1")
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObservePrompt(StatusOK, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `halluguard_prompts_total{status="ok"} 1`))
}

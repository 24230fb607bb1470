package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "halluguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("CODEC_ADDR", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	d := cfg.DecodingParams()
	assert.Equal(t, 250, d.DesiredWordCount)
	assert.Equal(t, 60, d.SentenceMaxLength)
	assert.Equal(t, 5, d.MaxRegenAttempts)
	assert.Equal(t, 3, d.NumCandidates)
	assert.InDelta(t, 0.5, d.Threshold, 1e-9)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
inference:
  addr: sidecar:6000
  timeout: 30s
decoding:
  desired_word_count: 100
  threshold: 0.3
scoring:
  strategy: per_token
batch:
  output_dir: out
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sidecar:6000", cfg.Inference.Addr)
	assert.Equal(t, 30*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, 100, cfg.Decoding.DesiredWordCount)
	assert.InDelta(t, 0.3, cfg.Decoding.Threshold, 1e-9)
	assert.Equal(t, "per_token", cfg.Scoring.Strategy)
	assert.Equal(t, "out", cfg.Batch.OutputDir)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Decoding.NumCandidates)
	assert.Equal(t, "prompts.txt", cfg.Batch.PromptsFile)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CODEC_ADDR", "codec:1")
	t.Setenv("HALLUGUARD_NUM_CANDIDATES", "7")
	t.Setenv("HALLUGUARD_THRESHOLD", "0.25")
	t.Setenv("HALLUGUARD_INFERENCE_TIMEOUT", "5s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "codec:1", cfg.Inference.Addr)
	assert.Equal(t, 7, cfg.Decoding.NumCandidates)
	assert.InDelta(t, 0.25, cfg.Decoding.Threshold, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Inference.Timeout)

	t.Setenv("HALLUGUARD_INFERENCE_ADDR", "codec:2")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "codec:2", cfg.Inference.Addr)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("HALLUGUARD_MAX_REGEN_ATTEMPTS", "lots")
	_, err := Load("")
	assert.ErrorContains(t, err, "HALLUGUARD_MAX_REGEN_ATTEMPTS")
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"threshold above one", "decoding:\n  threshold: 1.5\n", "Threshold"},
		{"zero attempts", "decoding:\n  max_regen_attempts: 0\n", "MaxRegenAttempts"},
		{"unknown strategy", "scoring:\n  strategy: vibes\n", "Strategy"},
		{"unknown backend", "generation:\n  backend: carrier-pigeon\n", "Backend"},
		{"openai without model", "generation:\n  backend: openai\n", "generation.openai.model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "decoding: [not, a, map"))
	assert.ErrorContains(t, err, "parse config")
}

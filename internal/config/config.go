// Package config loads controller settings from YAML, applies environment
// overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/decoding"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/generation"
)

// Generation backends.
const (
	BackendGRPC   = "grpc"
	BackendOpenAI = "openai"
)

// #region types

// Config is the full controller configuration.
type Config struct {
	Inference  InferenceConfig  `yaml:"inference"`
	Generation GenerationConfig `yaml:"generation"`
	Decoding   DecodingConfig   `yaml:"decoding"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Batch      BatchConfig      `yaml:"batch"`
	Server     ServerConfig     `yaml:"server"`
}

// InferenceConfig points at the inference sidecar.
type InferenceConfig struct {
	Addr    string        `yaml:"addr" validate:"required"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// GenerationConfig selects the text-generation backend.
type GenerationConfig struct {
	Backend           string       `yaml:"backend" validate:"oneof=grpc openai"`
	TopK              int          `yaml:"top_k" validate:"gte=1"`
	BaselineMaxLength int          `yaml:"baseline_max_length" validate:"gte=1"`
	OpenAI            OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig configures an OpenAI-compatible completions endpoint.
type OpenAIConfig struct {
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Encoding string `yaml:"encoding"`
}

// DecodingConfig mirrors decoding.Config with YAML names.
type DecodingConfig struct {
	DesiredWordCount  int     `yaml:"desired_word_count" validate:"gte=0"`
	SentenceMaxLength int     `yaml:"sentence_max_length" validate:"gte=1"`
	MaxRegenAttempts  int     `yaml:"max_regen_attempts" validate:"gte=1"`
	NumCandidates     int     `yaml:"num_candidates" validate:"gte=1"`
	Threshold         float64 `yaml:"threshold" validate:"gte=0,lte=1"`
}

// ScoringConfig selects the scoring strategy.
type ScoringConfig struct {
	Strategy string `yaml:"strategy" validate:"oneof=batched per_token"`
}

// BatchConfig holds batch-run paths. MetricsFile is optional.
type BatchConfig struct {
	PromptsFile string `yaml:"prompts_file" validate:"required"`
	OutputDir   string `yaml:"output_dir" validate:"required"`
	DBPath      string `yaml:"db_path"`
	MetricsFile string `yaml:"metrics_file"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// #endregion types

// #region defaults

// Default returns the built-in configuration.
func Default() Config {
	d := decoding.DefaultConfig()
	return Config{
		Inference: InferenceConfig{Addr: "localhost:50051", Timeout: 120 * time.Second},
		Generation: GenerationConfig{
			Backend:           BackendGRPC,
			TopK:              generation.DefaultTopK,
			BaselineMaxLength: generation.DefaultBaselineMaxLength,
			OpenAI:            OpenAIConfig{Encoding: "cl100k_base"},
		},
		Decoding: DecodingConfig{
			DesiredWordCount:  d.DesiredWordCount,
			SentenceMaxLength: d.SentenceMaxLength,
			MaxRegenAttempts:  d.MaxRegenAttempts,
			NumCandidates:     d.NumCandidates,
			Threshold:         d.Threshold,
		},
		Scoring: ScoringConfig{Strategy: "batched"},
		Batch: BatchConfig{
			PromptsFile: "prompts.txt",
			OutputDir:   ".",
			DBPath:      "halluguard.db",
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// DecodingParams converts the decoding section for the controller.
func (c Config) DecodingParams() decoding.Config {
	return decoding.Config{
		DesiredWordCount:  c.Decoding.DesiredWordCount,
		SentenceMaxLength: c.Decoding.SentenceMaxLength,
		MaxRegenAttempts:  c.Decoding.MaxRegenAttempts,
		NumCandidates:     c.Decoding.NumCandidates,
		Threshold:         c.Decoding.Threshold,
	}
}

// #endregion defaults

// #region load

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Generation.Backend == BackendOpenAI && c.Generation.OpenAI.Model == "" {
		return errors.New("invalid config: generation.openai.model is required for the openai backend")
	}
	return nil
}

// #endregion load

// #region env

// applyEnv overrides fields from HALLUGUARD_* variables. CODEC_ADDR is also
// honoured for the inference address; HALLUGUARD_INFERENCE_ADDR wins over it.
func applyEnv(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"CODEC_ADDR", &cfg.Inference.Addr},
		{"HALLUGUARD_INFERENCE_ADDR", &cfg.Inference.Addr},
		{"HALLUGUARD_BACKEND", &cfg.Generation.Backend},
		{"HALLUGUARD_OPENAI_BASE_URL", &cfg.Generation.OpenAI.BaseURL},
		{"HALLUGUARD_OPENAI_API_KEY", &cfg.Generation.OpenAI.APIKey},
		{"HALLUGUARD_OPENAI_MODEL", &cfg.Generation.OpenAI.Model},
		{"HALLUGUARD_SCORING_STRATEGY", &cfg.Scoring.Strategy},
		{"HALLUGUARD_PROMPTS_FILE", &cfg.Batch.PromptsFile},
		{"HALLUGUARD_OUTPUT_DIR", &cfg.Batch.OutputDir},
		{"HALLUGUARD_DB", &cfg.Batch.DBPath},
		{"HALLUGUARD_METRICS_FILE", &cfg.Batch.MetricsFile},
		{"HALLUGUARD_SERVER_ADDR", &cfg.Server.Addr},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"HALLUGUARD_DESIRED_WORD_COUNT", &cfg.Decoding.DesiredWordCount},
		{"HALLUGUARD_SENTENCE_MAX_LENGTH", &cfg.Decoding.SentenceMaxLength},
		{"HALLUGUARD_MAX_REGEN_ATTEMPTS", &cfg.Decoding.MaxRegenAttempts},
		{"HALLUGUARD_NUM_CANDIDATES", &cfg.Decoding.NumCandidates},
	}
	for _, i := range ints {
		v, ok := os.LookupEnv(i.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", i.key, err)
		}
		*i.dst = n
	}

	if v, ok := os.LookupEnv("HALLUGUARD_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("HALLUGUARD_THRESHOLD: %w", err)
		}
		cfg.Decoding.Threshold = f
	}
	if v, ok := os.LookupEnv("HALLUGUARD_INFERENCE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HALLUGUARD_INFERENCE_TIMEOUT: %w", err)
		}
		cfg.Inference.Timeout = d
	}
	return nil
}

// #endregion env

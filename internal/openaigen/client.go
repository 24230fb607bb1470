// Package openaigen generates text through an OpenAI-compatible completions
// endpoint (OpenAI, vLLM, llama.cpp server, OpenRouter). It satisfies
// generation.Model so it can stand in for the gRPC sidecar.
package openaigen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/codec"
)

// DefaultEncoding is used when Config.Encoding is empty.
const DefaultEncoding = "cl100k_base"

// go-openai drops a zero temperature from the request body.
const greedyTemperature = math.SmallestNonzeroFloat32

const sampleTemperature = 1.0

// #region config

// Config configures the endpoint.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Encoding string
}

// TokenCounter counts prompt tokens.
type TokenCounter interface {
	Count(text string) (int, error)
}

// #endregion config

// #region client

// Client implements generation.Model on the completions API.
type Client struct {
	api     *openai.Client
	model   string
	counter TokenCounter
}

// New creates a client counting prompt tokens with tiktoken.
func New(cfg Config) (*Client, error) {
	enc := cfg.Encoding
	if enc == "" {
		enc = DefaultEncoding
	}
	return NewWithCounter(cfg, &tiktokenCounter{encoding: enc})
}

// NewWithCounter creates a client with a caller-supplied token counter.
func NewWithCounter(cfg Config, counter TokenCounter) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai model is required")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   cfg.Model,
		counter: counter,
	}, nil
}

// Generate issues one completions call. top_k has no equivalent on this API
// and is ignored.
func (c *Client) Generate(ctx context.Context, req codec.GenerateRequest) ([]string, error) {
	maxTokens, err := c.maxTokens(req)
	if err != nil {
		return nil, err
	}
	n := req.NumReturnSequences
	if n < 1 {
		n = 1
	}
	temperature := float32(greedyTemperature)
	if req.DoSample {
		temperature = sampleTemperature
	}

	resp, err := c.api.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       c.model,
		Prompt:      req.Context,
		MaxTokens:   maxTokens,
		N:           n,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("completion: no choices in response")
	}

	choices := resp.Choices
	sort.SliceStable(choices, func(i, j int) bool { return choices[i].Index < choices[j].Index })
	texts := make([]string, len(choices))
	for i, ch := range choices {
		// The local model echoes the context; keep that shape for ExtractSentence.
		texts[i] = req.Context + ch.Text
	}
	return texts, nil
}

// maxTokens converts the request's length budget into new tokens. MaxLength
// counts the prompt, so the prompt's tokens are subtracted.
func (c *Client) maxTokens(req codec.GenerateRequest) (int, error) {
	if req.MaxNewTokens > 0 {
		return req.MaxNewTokens, nil
	}
	if req.MaxLength <= 0 {
		return 0, errors.New("completion: max_new_tokens or max_length is required")
	}
	used, err := c.counter.Count(req.Context)
	if err != nil {
		return 0, fmt.Errorf("count prompt tokens: %w", err)
	}
	if remaining := req.MaxLength - used; remaining > 0 {
		return remaining, nil
	}
	return 1, nil
}

// #endregion client

// #region tiktoken

type tiktokenCounter struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// Count loads the encoding on first use.
func (t *tiktokenCounter) Count(text string) (int, error) {
	t.once.Do(func() {
		t.enc, t.err = tiktoken.GetEncoding(t.encoding)
		if t.err != nil {
			t.err = fmt.Errorf("load tiktoken encoding %q: %w", t.encoding, t.err)
		}
	})
	if t.err != nil {
		return 0, t.err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// #endregion tiktoken

package generation

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/codec"
)

// #region defaults

const (
	// DefaultTopK matches the sampling used for candidate continuations.
	DefaultTopK = 50
	// DefaultBaselineMaxLength is the total token budget (prompt included) for baseline output.
	DefaultBaselineMaxLength = 400
)

// #endregion defaults

// #region model

// Model is the text-generation side of the model service.
// *codec.CodecClient and *openaigen.Client both satisfy it.
type Model interface {
	Generate(ctx context.Context, req codec.GenerateRequest) ([]string, error)
}

// #endregion model

// #region candidate-generator

// CandidateGenerator samples several independent continuations of a context
// and reduces each to its first sentence.
type CandidateGenerator struct {
	model Model
	topK  int
}

// NewCandidateGenerator creates a generator. topK <= 0 selects DefaultTopK.
func NewCandidateGenerator(model Model, topK int) *CandidateGenerator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &CandidateGenerator{model: model, topK: topK}
}

// Candidates returns n sentence candidates continuing contextText.
// The model may return fewer sequences than requested; all of them are kept.
func (g *CandidateGenerator) Candidates(ctx context.Context, contextText string, maxNewTokens, n int) ([]string, error) {
	texts, err := g.model.Generate(ctx, codec.GenerateRequest{
		Context:            contextText,
		MaxNewTokens:       maxNewTokens,
		DoSample:           true,
		TopK:               g.topK,
		NumReturnSequences: n,
	})
	if err != nil {
		return nil, fmt.Errorf("generate candidates: %w", err)
	}

	candidates := make([]string, len(texts))
	for i, text := range texts {
		candidates[i] = ExtractSentence(contextText, text)
	}
	return candidates, nil
}

// #endregion candidate-generator

// #region baseline-generator

// BaselineGenerator produces one unfiltered continuation for comparison.
type BaselineGenerator struct {
	model Model
}

// NewBaselineGenerator creates a baseline generator over model.
func NewBaselineGenerator(model Model) *BaselineGenerator {
	return &BaselineGenerator{model: model}
}

// Generate decodes up to maxLength total tokens greedily. The returned text
// includes the prompt, as the model decodes the full sequence.
func (b *BaselineGenerator) Generate(ctx context.Context, prompt string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = DefaultBaselineMaxLength
	}
	texts, err := b.model.Generate(ctx, codec.GenerateRequest{
		Context:            prompt,
		MaxLength:          maxLength,
		NumReturnSequences: 1,
	})
	if err != nil {
		return "", fmt.Errorf("generate baseline: %w", err)
	}
	if len(texts) == 0 {
		return "", nil
	}
	return texts[0], nil
}

// #endregion baseline-generator

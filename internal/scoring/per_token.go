package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/codec"
)

// PerToken scores a candidate as the mean of independent scores for each of
// its whitespace tokens. It issues one forward pass per token.
type PerToken struct {
	svc Service
}

// NewPerToken creates a per-token scorer.
func NewPerToken(svc Service) *PerToken {
	return &PerToken{svc: svc}
}

// Name implements Scorer.
func (p *PerToken) Name() string { return string(StrategyPerToken) }

// Score implements Scorer.
func (p *PerToken) Score(ctx context.Context, prompt string, candidates []string) ([]float64, error) {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		s, err := p.scoreOne(ctx, prompt, c)
		if err != nil {
			return nil, fmt.Errorf("per-token score candidate %d: %w", i, err)
		}
		scores[i] = s
	}
	return scores, nil
}

// candidateTokens removes the prompt and newlines and splits on whitespace.
func candidateTokens(prompt, candidate string) []string {
	text := candidate
	if prompt != "" {
		text = strings.ReplaceAll(text, prompt, "")
	}
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.Fields(text)
}

// scoreOne returns 0 for a candidate with no tokens left. A token that
// encodes to no positions contributes 0 to the mean.
func (p *PerToken) scoreOne(ctx context.Context, prompt, candidate string) (float64, error) {
	tokens := candidateTokens(prompt, candidate)
	if len(tokens) == 0 {
		return 0, nil
	}

	var sum float64
	for _, tok := range tokens {
		enc, err := p.svc.Tokenize(ctx, []string{tok}, codec.TokenizeOptions{})
		if err != nil {
			return 0, err
		}
		hs, err := p.svc.Forward(ctx, enc, featureLayers)
		if err != nil {
			return 0, err
		}
		features, err := FinalPositionFeatures(hs)
		if errors.Is(err, ErrEmptySequence) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("token %q: %w", tok, err)
		}
		if len(features) == 0 {
			return 0, fmt.Errorf("token %q: no feature rows", tok)
		}
		logits, err := p.svc.Classify(ctx, features[:1])
		if err != nil {
			return 0, err
		}
		probs, err := hallucinationProbs(logits)
		if err != nil {
			return 0, err
		}
		if len(probs) == 0 {
			return 0, fmt.Errorf("token %q: classifier returned no rows", tok)
		}
		sum += probs[0]
	}
	return sum / float64(len(tokens)), nil
}

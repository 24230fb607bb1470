package scoring

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/codec"
)

// Batched scores all candidates with a single padded forward pass. Each
// candidate is judged on its own text; the prompt is not consulted.
type Batched struct {
	svc Service
}

// NewBatched creates a batched scorer.
func NewBatched(svc Service) *Batched {
	return &Batched{svc: svc}
}

// Name implements Scorer.
func (b *Batched) Name() string { return string(StrategyBatched) }

// Score implements Scorer.
func (b *Batched) Score(ctx context.Context, _ string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	enc, err := b.svc.Tokenize(ctx, candidates, codec.TokenizeOptions{Padding: true, Truncation: true})
	if err != nil {
		return nil, fmt.Errorf("batched score: %w", err)
	}
	hs, err := b.svc.Forward(ctx, enc, featureLayers)
	if err != nil {
		return nil, fmt.Errorf("batched score: %w", err)
	}
	features, err := FinalPositionFeatures(hs)
	if errors.Is(err, ErrEmptySequence) {
		log.Printf("[SCORE] batched: empty sequence, scoring %d candidates as 0", len(candidates))
		return make([]float64, len(candidates)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("batched score: %w", err)
	}
	if len(features) != len(candidates) {
		return nil, fmt.Errorf("batched score: %d feature rows for %d candidates", len(features), len(candidates))
	}
	logits, err := b.svc.Classify(ctx, features)
	if err != nil {
		return nil, fmt.Errorf("batched score: %w", err)
	}
	scores, err := hallucinationProbs(logits)
	if err != nil {
		return nil, fmt.Errorf("batched score: %w", err)
	}

	log.Printf("[SCORE] batched: %d candidates scored", len(scores))
	return scores, nil
}

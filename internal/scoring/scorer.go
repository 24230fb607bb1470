// Package scoring turns candidate sentences into hallucination risk scores in
// [0,1], where lower is safer. Two strategies share the Scorer interface:
// Batched scores every candidate from one forward pass over the batch, and
// PerToken averages independent per-token scores.
package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/codec"
)

// #region strategy

// Strategy names a scoring implementation in configuration.
type Strategy string

const (
	StrategyBatched  Strategy = "batched"
	StrategyPerToken Strategy = "per_token"
)

// ErrUnknownStrategy is returned by New for an unrecognised strategy name.
var ErrUnknownStrategy = errors.New("unknown scoring strategy")

// #endregion strategy

// #region interfaces

// Scorer assigns one risk score per candidate. prompt is the original user
// prompt; strategies that score candidates in isolation ignore it.
type Scorer interface {
	Score(ctx context.Context, prompt string, candidates []string) ([]float64, error)
	Name() string
}

// Service is the slice of the inference sidecar the scorers need.
// *codec.CodecClient satisfies it.
type Service interface {
	Tokenize(ctx context.Context, texts []string, opts codec.TokenizeOptions) (codec.Encoding, error)
	Forward(ctx context.Context, enc codec.Encoding, layers []int) (codec.HiddenStates, error)
	Classify(ctx context.Context, features [][]float32) ([][]float32, error)
}

// #endregion interfaces

// #region factory

// New builds the scorer selected by strategy. An empty strategy selects Batched.
func New(strategy Strategy, svc Service) (Scorer, error) {
	switch strategy {
	case StrategyBatched, "":
		return NewBatched(svc), nil
	case StrategyPerToken:
		return NewPerToken(svc), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// #endregion factory

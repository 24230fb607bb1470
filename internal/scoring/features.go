package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/codec"
)

// featureLayers selects the last and second-to-last hidden layers, in that order.
var featureLayers = []int{-1, -2}

// hallucinatedClass is the classifier output index for "hallucinated".
const hallucinatedClass = 1

// ErrEmptySequence reports hidden states with no positions to read. Scorers
// treat it as a zero score.
var ErrEmptySequence = errors.New("features: empty sequence")

// FinalPositionFeatures builds one classifier input per sequence by
// concatenating the final-position vectors of the captured layers.
func FinalPositionFeatures(hs codec.HiddenStates) ([][]float32, error) {
	if len(hs.Layers) == 0 {
		return nil, fmt.Errorf("features: no hidden layers")
	}
	batch, seqLen := hs.Layers[0].Shape[0], hs.Layers[0].Shape[1]
	if seqLen == 0 {
		return nil, ErrEmptySequence
	}

	width := 0
	for i, l := range hs.Layers {
		if l.Shape[0] != batch || l.Shape[1] != seqLen {
			return nil, fmt.Errorf("features: layer %d shape %v disagrees with %v", i, l.Shape, hs.Layers[0].Shape)
		}
		width += l.Shape[2]
	}

	out := make([][]float32, batch)
	for b := range batch {
		row := make([]float32, 0, width)
		for _, l := range hs.Layers {
			row = append(row, l.Vector(b, seqLen-1)...)
		}
		out[b] = row
	}
	return out, nil
}

// Softmax returns the normalized probabilities of logits.
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, float64(l))
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(float64(l) - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// hallucinationProbs maps classifier logits to P(hallucinated) per row.
func hallucinationProbs(logits [][]float32) ([]float64, error) {
	scores := make([]float64, len(logits))
	for i, row := range logits {
		if len(row) != 2 {
			return nil, fmt.Errorf("classifier row %d has %d logits, want 2", i, len(row))
		}
		scores[i] = Softmax(row)[hallucinatedClass]
	}
	return scores, nil
}

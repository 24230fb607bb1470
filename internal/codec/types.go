package codec

import "errors"

// #region errors

// ErrShape reports a response whose fields do not have the expected layout.
var ErrShape = errors.New("unexpected response shape")

// #endregion errors

// #region request-types

// GenerateRequest carries the sampling parameters for a Generate RPC call.
// MaxNewTokens and MaxLength are mutually exclusive; zero means unset.
type GenerateRequest struct {
	Context            string
	MaxNewTokens       int
	MaxLength          int
	DoSample           bool
	TopK               int
	NumReturnSequences int
}

// TokenizeOptions mirrors the tokenizer call flags used for batching.
type TokenizeOptions struct {
	Padding    bool
	Truncation bool
}

// #endregion request-types

// #region result-types

// Encoding holds token IDs for a batch of texts.
type Encoding struct {
	InputIDs      [][]int64
	AttentionMask [][]int64
}

// Tensor is a dense [batch, position, dim] block of activations.
type Tensor struct {
	Shape [3]int
	Data  []float32
}

// Vector returns the hidden vector at (batch, pos). The slice aliases Data.
func (t Tensor) Vector(batch, pos int) []float32 {
	dim := t.Shape[2]
	off := (batch*t.Shape[1] + pos) * dim
	return t.Data[off : off+dim]
}

// HiddenStates holds the layers returned by a Forward call, in request order.
type HiddenStates struct {
	Layers []Tensor
}

// #endregion result-types

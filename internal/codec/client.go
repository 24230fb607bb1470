package codec

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct

// CodecClient wraps the gRPC connection to the Python inference service that
// hosts the language model, its tokenizer and the hallucination classifier.
// The sidecar serves one request at a time; callers that fan out must serialize.
type CodecClient struct {
	conn    *grpc.ClientConn
	client  InferenceServiceClient
	timeout time.Duration
}

// #endregion client-struct

// #region constructor

// NewCodecClient connects to the Python inference gRPC server.
// timeout bounds each RPC; zero disables the per-call deadline.
func NewCodecClient(addr string, timeout time.Duration) (*CodecClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &CodecClient{
		conn:    conn,
		client:  NewInferenceServiceClient(conn),
		timeout: timeout,
	}, nil
}

// NewCodecClientWithService creates a CodecClient with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewCodecClientWithService(svc InferenceServiceClient) *CodecClient {
	return &CodecClient{client: svc}
}

// #endregion constructor

// #region close

// Close shuts down the gRPC connection.
func (c *CodecClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

func (c *CodecClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// #region generate

// Generate asks the model for continuations of req.Context and returns the
// decoded texts with special tokens skipped.
func (c *CodecClient) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	fields := map[string]*structpb.Value{
		"context":              structpb.NewStringValue(req.Context),
		"do_sample":            structpb.NewBoolValue(req.DoSample),
		"num_return_sequences": structpb.NewNumberValue(float64(max(req.NumReturnSequences, 1))),
	}
	if req.MaxNewTokens > 0 {
		fields["max_new_tokens"] = structpb.NewNumberValue(float64(req.MaxNewTokens))
	}
	if req.MaxLength > 0 {
		fields["max_length"] = structpb.NewNumberValue(float64(req.MaxLength))
	}
	if req.TopK > 0 {
		fields["top_k"] = structpb.NewNumberValue(float64(req.TopK))
	}

	resp, err := c.client.Generate(ctx, &structpb.Struct{Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("generate rpc: %w", err)
	}
	texts, err := listField(resp, "texts")
	if err != nil {
		return nil, fmt.Errorf("generate rpc: %w", err)
	}
	return decodeStrings(texts), nil
}

// #endregion generate

// #region tokenize

// Tokenize encodes a batch of texts. With Padding set every row has the same length.
func (c *CodecClient) Tokenize(ctx context.Context, texts []string, opts TokenizeOptions) (Encoding, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	resp, err := c.client.Tokenize(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"texts":      stringList(texts),
		"padding":    structpb.NewBoolValue(opts.Padding),
		"truncation": structpb.NewBoolValue(opts.Truncation),
	}})
	if err != nil {
		return Encoding{}, fmt.Errorf("tokenize rpc: %w", err)
	}

	ids, err := listField(resp, "input_ids")
	if err != nil {
		return Encoding{}, fmt.Errorf("tokenize rpc: %w", err)
	}
	enc := Encoding{}
	if enc.InputIDs, err = decodeInt64Matrix(ids); err != nil {
		return Encoding{}, fmt.Errorf("tokenize rpc: %w", err)
	}
	if len(enc.InputIDs) != len(texts) {
		return Encoding{}, fmt.Errorf("tokenize rpc: %w: %d rows for %d texts", ErrShape, len(enc.InputIDs), len(texts))
	}

	// attention_mask is optional; an unpadded batch does not need one.
	if _, ok := resp.GetFields()["attention_mask"]; ok {
		mask, err := listField(resp, "attention_mask")
		if err != nil {
			return Encoding{}, fmt.Errorf("tokenize rpc: %w", err)
		}
		if enc.AttentionMask, err = decodeInt64Matrix(mask); err != nil {
			return Encoding{}, fmt.Errorf("tokenize rpc: %w", err)
		}
	}
	return enc, nil
}

// #endregion tokenize

// #region detokenize

// Detokenize decodes token IDs back to text.
func (c *CodecClient) Detokenize(ctx context.Context, ids []int64) (string, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	resp, err := c.client.Detokenize(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"ids": int64List(ids),
	}})
	if err != nil {
		return "", fmt.Errorf("detokenize rpc: %w", err)
	}
	text, err := field(resp, "text")
	if err != nil {
		return "", fmt.Errorf("detokenize rpc: %w", err)
	}
	return text.GetStringValue(), nil
}

// #endregion detokenize

// #region forward

// Forward runs the model over enc with hidden-state capture and returns the
// requested layers. Negative layer indices count from the last layer.
func (c *CodecClient) Forward(ctx context.Context, enc Encoding, layers []int) (HiddenStates, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	layerIdx := make([]float64, len(layers))
	for i, l := range layers {
		layerIdx[i] = float64(l)
	}
	fields := map[string]*structpb.Value{
		"input_ids": int64Matrix(enc.InputIDs),
		"layers":    numberList(layerIdx),
	}
	if enc.AttentionMask != nil {
		fields["attention_mask"] = int64Matrix(enc.AttentionMask)
	}

	resp, err := c.client.Forward(ctx, &structpb.Struct{Fields: fields})
	if err != nil {
		return HiddenStates{}, fmt.Errorf("forward rpc: %w", err)
	}
	raw, err := listField(resp, "layers")
	if err != nil {
		return HiddenStates{}, fmt.Errorf("forward rpc: %w", err)
	}
	if len(raw) != len(layers) {
		return HiddenStates{}, fmt.Errorf("forward rpc: %w: %d layers for %d requested", ErrShape, len(raw), len(layers))
	}

	hs := HiddenStates{Layers: make([]Tensor, len(raw))}
	for i, v := range raw {
		if hs.Layers[i], err = decodeTensor(v); err != nil {
			return HiddenStates{}, fmt.Errorf("forward rpc: layer %d: %w", layers[i], err)
		}
	}
	return hs, nil
}

// #endregion forward

// #region classify

// Classify sends feature vectors to the hallucination classifier and returns
// the raw class logits for each row.
func (c *CodecClient) Classify(ctx context.Context, features [][]float32) ([][]float32, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	resp, err := c.client.Classify(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"features": float32Matrix(features),
	}})
	if err != nil {
		return nil, fmt.Errorf("classify rpc: %w", err)
	}
	raw, err := listField(resp, "logits")
	if err != nil {
		return nil, fmt.Errorf("classify rpc: %w", err)
	}
	logits, err := decodeFloat32Matrix(raw)
	if err != nil {
		return nil, fmt.Errorf("classify rpc: %w", err)
	}
	if len(logits) != len(features) {
		return nil, fmt.Errorf("classify rpc: %w: %d rows for %d features", ErrShape, len(logits), len(features))
	}
	return logits, nil
}

// #endregion classify

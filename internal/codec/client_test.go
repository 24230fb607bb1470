package codec

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region mock
type mockInferenceService struct {
	InferenceServiceClient

	lastReq *structpb.Struct

	generateResp *structpb.Struct
	generateErr  error

	tokenizeResp *structpb.Struct
	tokenizeErr  error

	detokenizeResp *structpb.Struct
	detokenizeErr  error

	forwardResp *structpb.Struct
	forwardErr  error

	classifyResp *structpb.Struct
	classifyErr  error
}

func (m *mockInferenceService) Generate(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.lastReq = in
	return m.generateResp, m.generateErr
}

func (m *mockInferenceService) Tokenize(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.lastReq = in
	return m.tokenizeResp, m.tokenizeErr
}

func (m *mockInferenceService) Detokenize(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.lastReq = in
	return m.detokenizeResp, m.detokenizeErr
}

func (m *mockInferenceService) Forward(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.lastReq = in
	return m.forwardResp, m.forwardErr
}

func (m *mockInferenceService) Classify(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.lastReq = in
	return m.classifyResp, m.classifyErr
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

// #endregion mock

// #region constructor-tests
func TestNewCodecClientInvalidAddr(t *testing.T) {
	client, err := NewCodecClient("localhost:0", time.Second)
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	defer client.Close()
}

func TestNewCodecClientWithService(t *testing.T) {
	c := NewCodecClientWithService(&mockInferenceService{})
	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.client == nil {
		t.Fatal("expected non-nil internal client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close without connection: %v", err)
	}
}

// #endregion constructor-tests

// #region generate-tests
func TestGenerate_Success(t *testing.T) {
	mock := &mockInferenceService{
		generateResp: mustStruct(t, map[string]any{
			"texts": []any{"The moon orbits Earth.", "The moon is made of cheese."},
		}),
	}
	c := NewCodecClientWithService(mock)

	texts, err := c.Generate(context.Background(), GenerateRequest{
		Context:            "Tell me about the moon.",
		MaxNewTokens:       60,
		DoSample:           true,
		TopK:               50,
		NumReturnSequences: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(texts) != 2 || texts[1] != "The moon is made of cheese." {
		t.Errorf("unexpected texts: %v", texts)
	}

	f := mock.lastReq.GetFields()
	if f["num_return_sequences"].GetNumberValue() != 2 {
		t.Errorf("expected num_return_sequences=2, got %v", f["num_return_sequences"])
	}
	if f["top_k"].GetNumberValue() != 50 {
		t.Errorf("expected top_k=50, got %v", f["top_k"])
	}
	if _, ok := f["max_length"]; ok {
		t.Error("max_length should be omitted when unset")
	}
}

func TestGenerate_Error(t *testing.T) {
	mock := &mockInferenceService{generateErr: errors.New("rpc failed")}
	c := NewCodecClientWithService(mock)

	_, err := c.Generate(context.Background(), GenerateRequest{Context: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, mock.generateErr) {
		t.Errorf("expected wrapped rpc error, got: %v", err)
	}
}

func TestGenerate_MissingTexts(t *testing.T) {
	mock := &mockInferenceService{generateResp: mustStruct(t, map[string]any{})}
	c := NewCodecClientWithService(mock)

	_, err := c.Generate(context.Background(), GenerateRequest{Context: "x"})
	if !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

// #endregion generate-tests

// #region tokenize-tests
func TestTokenize_Success(t *testing.T) {
	mock := &mockInferenceService{
		tokenizeResp: mustStruct(t, map[string]any{
			"input_ids":      []any{[]any{1, 5, 7}, []any{1, 9, 0}},
			"attention_mask": []any{[]any{1, 1, 1}, []any{1, 1, 0}},
		}),
	}
	c := NewCodecClientWithService(mock)

	enc, err := c.Tokenize(context.Background(), []string{"a b", "c"}, TokenizeOptions{Padding: true, Truncation: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enc.InputIDs[0][2] != 7 || enc.AttentionMask[1][2] != 0 {
		t.Errorf("unexpected encoding: %+v", enc)
	}
	if !mock.lastReq.GetFields()["padding"].GetBoolValue() {
		t.Error("expected padding flag on request")
	}
}

func TestTokenize_RowMismatch(t *testing.T) {
	mock := &mockInferenceService{
		tokenizeResp: mustStruct(t, map[string]any{"input_ids": []any{[]any{1}}}),
	}
	c := NewCodecClientWithService(mock)

	_, err := c.Tokenize(context.Background(), []string{"a", "b"}, TokenizeOptions{})
	if !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestDetokenize_Success(t *testing.T) {
	mock := &mockInferenceService{detokenizeResp: mustStruct(t, map[string]any{"text": "hello"})}
	c := NewCodecClientWithService(mock)

	text, err := c.Detokenize(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Errorf("expected 'hello', got %q", text)
	}
	if n := len(mock.lastReq.GetFields()["ids"].GetListValue().GetValues()); n != 2 {
		t.Errorf("expected 2 ids on request, got %d", n)
	}
}

// #endregion tokenize-tests

// #region forward-tests
func TestForward_Success(t *testing.T) {
	mock := &mockInferenceService{
		forwardResp: mustStruct(t, map[string]any{
			"layers": []any{
				map[string]any{"shape": []any{1, 2, 2}, "data": []any{1, 2, 3, 4}},
				map[string]any{"shape": []any{1, 2, 2}, "data": []any{5, 6, 7, 8}},
			},
		}),
	}
	c := NewCodecClientWithService(mock)

	hs, err := c.Forward(context.Background(), Encoding{InputIDs: [][]int64{{1, 2}}}, []int{-1, -2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hs.Layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(hs.Layers))
	}
	v := hs.Layers[1].Vector(0, 1)
	if v[0] != 7 || v[1] != 8 {
		t.Errorf("expected [7 8], got %v", v)
	}
	if _, ok := mock.lastReq.GetFields()["attention_mask"]; ok {
		t.Error("attention_mask should be omitted when nil")
	}
}

func TestForward_BadShape(t *testing.T) {
	mock := &mockInferenceService{
		forwardResp: mustStruct(t, map[string]any{
			"layers": []any{map[string]any{"shape": []any{1, 2, 2}, "data": []any{1, 2, 3}}},
		}),
	}
	c := NewCodecClientWithService(mock)

	_, err := c.Forward(context.Background(), Encoding{InputIDs: [][]int64{{1, 2}}}, []int{-1})
	if !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestForward_NegativeDimension(t *testing.T) {
	mock := &mockInferenceService{
		forwardResp: mustStruct(t, map[string]any{
			"layers": []any{map[string]any{"shape": []any{-1, -1, 1}, "data": []any{1}}},
		}),
	}
	c := NewCodecClientWithService(mock)

	_, err := c.Forward(context.Background(), Encoding{InputIDs: [][]int64{{1}}}, []int{-1})
	if !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestForward_LayerCountMismatch(t *testing.T) {
	mock := &mockInferenceService{
		forwardResp: mustStruct(t, map[string]any{"layers": []any{}}),
	}
	c := NewCodecClientWithService(mock)

	_, err := c.Forward(context.Background(), Encoding{InputIDs: [][]int64{{1}}}, []int{-1, -2})
	if !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

// #endregion forward-tests

// #region classify-tests
func TestClassify_Success(t *testing.T) {
	mock := &mockInferenceService{
		classifyResp: mustStruct(t, map[string]any{
			"logits": []any{[]any{2.0, -1.0}},
		}),
	}
	c := NewCodecClientWithService(mock)

	logits, err := c.Classify(context.Background(), [][]float32{{0.1, 0.2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logits[0][0] != 2 || logits[0][1] != -1 {
		t.Errorf("unexpected logits: %v", logits)
	}
}

func TestClassify_Error(t *testing.T) {
	mock := &mockInferenceService{classifyErr: errors.New("classifier down")}
	c := NewCodecClientWithService(mock)

	_, err := c.Classify(context.Background(), [][]float32{{0}})
	if !errors.Is(err, mock.classifyErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

// #endregion classify-tests

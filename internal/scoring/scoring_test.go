package scoring

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/codec"
)

// #region fake-service

// fakeService encodes each text as a single "token" whose hidden vector is
// the text length, and whose classifier logits come from logitsFor.
type fakeService struct {
	logitsFor func(feature []float32) []float32

	tokenizeCalls int
	forwardCalls  int
	classifyCalls int
	texts         []string

	forwardErr error
}

func (f *fakeService) Tokenize(_ context.Context, texts []string, _ codec.TokenizeOptions) (codec.Encoding, error) {
	f.tokenizeCalls++
	f.texts = append(f.texts, texts...)
	enc := codec.Encoding{}
	for _, t := range texts {
		enc.InputIDs = append(enc.InputIDs, []int64{int64(len(t))})
	}
	return enc, nil
}

func (f *fakeService) Forward(_ context.Context, enc codec.Encoding, layers []int) (codec.HiddenStates, error) {
	f.forwardCalls++
	if f.forwardErr != nil {
		return codec.HiddenStates{}, f.forwardErr
	}
	hs := codec.HiddenStates{}
	for li := range layers {
		t := codec.Tensor{Shape: [3]int{len(enc.InputIDs), 1, 1}}
		for _, row := range enc.InputIDs {
			t.Data = append(t.Data, float32(row[0])+float32(li)*1000)
		}
		hs.Layers = append(hs.Layers, t)
	}
	return hs, nil
}

func (f *fakeService) Classify(_ context.Context, features [][]float32) ([][]float32, error) {
	f.classifyCalls++
	out := make([][]float32, len(features))
	for i, feat := range features {
		out[i] = f.logitsFor(feat)
	}
	return out, nil
}

// logitsForProb returns logits whose softmax puts p on the hallucinated class.
func logitsForProb(p float64) []float32 {
	return []float32{0, float32(math.Log(p / (1 - p)))}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

// emptySeqService tokenizes every text to no ids and answers Forward with
// [n, 0, d] layers, like a tokenizer that adds no BOS token.
type emptySeqService struct {
	classifyCalls int
}

func (e *emptySeqService) Tokenize(_ context.Context, texts []string, _ codec.TokenizeOptions) (codec.Encoding, error) {
	enc := codec.Encoding{}
	for range texts {
		enc.InputIDs = append(enc.InputIDs, []int64{})
		enc.AttentionMask = append(enc.AttentionMask, []int64{})
	}
	return enc, nil
}

func (e *emptySeqService) Forward(_ context.Context, enc codec.Encoding, layers []int) (codec.HiddenStates, error) {
	hs := codec.HiddenStates{}
	for range layers {
		hs.Layers = append(hs.Layers, codec.Tensor{Shape: [3]int{len(enc.InputIDs), 0, 4}})
	}
	return hs, nil
}

func (e *emptySeqService) Classify(_ context.Context, features [][]float32) ([][]float32, error) {
	e.classifyCalls++
	return nil, errors.New("classify should not be reached")
}

// #endregion fake-service

// #region feature-tests
func TestFinalPositionFeatures_ConcatenatesLastPosition(t *testing.T) {
	hs := codec.HiddenStates{Layers: []codec.Tensor{
		{Shape: [3]int{2, 2, 2}, Data: []float32{1, 1, 2, 2, 3, 3, 4, 4}},
		{Shape: [3]int{2, 2, 2}, Data: []float32{5, 5, 6, 6, 7, 7, 8, 8}},
	}}
	got, err := FinalPositionFeatures(hs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]float32{{2, 2, 6, 6}, {4, 4, 8, 8}}
	for b := range want {
		for i := range want[b] {
			if got[b][i] != want[b][i] {
				t.Fatalf("row %d: got %v, want %v", b, got[b], want[b])
			}
		}
	}
}

func TestFinalPositionFeatures_Errors(t *testing.T) {
	if _, err := FinalPositionFeatures(codec.HiddenStates{}); err == nil {
		t.Error("expected error for no layers")
	}
	mismatched := codec.HiddenStates{Layers: []codec.Tensor{
		{Shape: [3]int{1, 2, 1}, Data: []float32{1, 2}},
		{Shape: [3]int{1, 1, 1}, Data: []float32{1}},
	}}
	if _, err := FinalPositionFeatures(mismatched); err == nil {
		t.Error("expected error for mismatched layers")
	}
	empty := codec.HiddenStates{Layers: []codec.Tensor{{Shape: [3]int{2, 0, 3}}}}
	if _, err := FinalPositionFeatures(empty); !errors.Is(err, ErrEmptySequence) {
		t.Errorf("expected ErrEmptySequence, got %v", err)
	}
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float32{0, 0})
	if !near(p[0], 0.5) || !near(p[1], 0.5) {
		t.Errorf("expected uniform, got %v", p)
	}
	p = Softmax([]float32{1000, 0})
	if !near(p[0], 1) || math.IsNaN(p[1]) {
		t.Errorf("expected stable softmax, got %v", p)
	}
	if Softmax(nil) != nil {
		t.Error("expected nil for empty logits")
	}
}

// #endregion feature-tests

// #region factory-tests
func TestNew(t *testing.T) {
	svc := &fakeService{}
	for _, tc := range []struct {
		strategy Strategy
		want     string
	}{
		{"", "batched"},
		{StrategyBatched, "batched"},
		{StrategyPerToken, "per_token"},
	} {
		s, err := New(tc.strategy, svc)
		if err != nil {
			t.Fatalf("New(%q): %v", tc.strategy, err)
		}
		if s.Name() != tc.want {
			t.Errorf("New(%q).Name() = %q, want %q", tc.strategy, s.Name(), tc.want)
		}
	}
	if _, err := New("oracle", svc); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}

// #endregion factory-tests

// #region batched-tests
func TestBatched_OnePassForAllCandidates(t *testing.T) {
	svc := &fakeService{logitsFor: func(f []float32) []float32 {
		// feature[0] is the candidate length; longer is riskier here.
		if f[0] > 5 {
			return logitsForProb(0.9)
		}
		return logitsForProb(0.2)
	}}
	b := NewBatched(svc)

	scores, err := b.Score(context.Background(), "ignored", []string{"short", "much longer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !near(scores[0], 0.2) || !near(scores[1], 0.9) {
		t.Errorf("unexpected scores: %v", scores)
	}
	if svc.tokenizeCalls != 1 || svc.forwardCalls != 1 || svc.classifyCalls != 1 {
		t.Errorf("expected one call each, got tokenize=%d forward=%d classify=%d",
			svc.tokenizeCalls, svc.forwardCalls, svc.classifyCalls)
	}
}

func TestBatched_NoCandidates(t *testing.T) {
	svc := &fakeService{}
	scores, err := NewBatched(svc).Score(context.Background(), "p", nil)
	if err != nil || scores != nil {
		t.Fatalf("expected nil, nil; got %v, %v", scores, err)
	}
	if svc.tokenizeCalls != 0 {
		t.Error("expected no service calls")
	}
}

func TestBatched_BadLogitWidth(t *testing.T) {
	svc := &fakeService{logitsFor: func([]float32) []float32 { return []float32{1, 2, 3} }}
	if _, err := NewBatched(svc).Score(context.Background(), "", []string{"a"}); err == nil {
		t.Fatal("expected error for three-class logits")
	}
}

func TestBatched_ForwardError(t *testing.T) {
	svc := &fakeService{forwardErr: errors.New("cuda oom")}
	_, err := NewBatched(svc).Score(context.Background(), "", []string{"a"})
	if !errors.Is(err, svc.forwardErr) {
		t.Fatalf("expected wrapped forward error, got %v", err)
	}
}

func TestBatched_EmptySequenceScoresZero(t *testing.T) {
	svc := &emptySeqService{}
	scores, err := NewBatched(svc).Score(context.Background(), "p", []string{"", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 2 || scores[0] != 0 || scores[1] != 0 {
		t.Errorf("expected [0 0], got %v", scores)
	}
	if svc.classifyCalls != 0 {
		t.Errorf("expected no classifier call, got %d", svc.classifyCalls)
	}
}

// #endregion batched-tests

// #region per-token-tests
func TestPerToken_EmptyCandidateScoresZero(t *testing.T) {
	svc := &fakeService{}
	p := NewPerToken(svc)

	scores, err := p.Score(context.Background(), "Tell me about the moon.", []string{
		"",
		"Tell me about the moon.",
		" \n\n ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range scores {
		if s != 0.0 {
			t.Errorf("candidate %d: expected 0.0, got %v", i, s)
		}
	}
	if svc.forwardCalls != 0 {
		t.Errorf("expected no forward passes, got %d", svc.forwardCalls)
	}
}

func TestPerToken_MeanOverTokens(t *testing.T) {
	svc := &fakeService{logitsFor: func(f []float32) []float32 {
		if f[0] == 4 { // "moon"
			return logitsForProb(0.8)
		}
		return logitsForProb(0.2)
	}}
	p := NewPerToken(svc)

	scores, err := p.Score(context.Background(), "Prompt:", []string{"Prompt: the\nmoon"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !near(scores[0], 0.5) {
		t.Errorf("expected mean 0.5, got %v", scores[0])
	}
	if svc.forwardCalls != 2 {
		t.Errorf("expected one forward pass per token, got %d", svc.forwardCalls)
	}
	if strings.Join(svc.texts, "|") != "the|moon" {
		t.Errorf("unexpected tokens sent: %v", svc.texts)
	}
}

func TestPerToken_Error(t *testing.T) {
	svc := &fakeService{forwardErr: errors.New("boom")}
	_, err := NewPerToken(svc).Score(context.Background(), "", []string{"a b"})
	if !errors.Is(err, svc.forwardErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestPerToken_EmptyEncodingScoresZero(t *testing.T) {
	svc := &emptySeqService{}
	scores, err := NewPerToken(svc).Score(context.Background(), "", []string{"a b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 1 || scores[0] != 0 {
		t.Errorf("expected [0], got %v", scores)
	}
	if svc.classifyCalls != 0 {
		t.Errorf("expected no classifier call, got %d", svc.classifyCalls)
	}
}

// #endregion per-token-tests

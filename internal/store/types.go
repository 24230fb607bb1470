package store

import (
	"time"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/decoding"
)

// #region run-record
// RunRecord is one batch run over a prompt file.
type RunRecord struct {
	RunID        string
	Scorer       string
	Config       decoding.Config
	StartedAt    time.Time
	FinishedAt   time.Time // zero while the run is in progress
	PromptCount  int
	FailureCount int
}

// #endregion run-record

// #region prompt-record
// PromptRecord is the outcome for one prompt of a run. Error is set when
// processing failed; the text fields then hold whatever was produced.
type PromptRecord struct {
	RunID       string
	PromptIndex int
	Prompt      string
	Baseline    string
	Passage     string
	WordCount   int
	StopReason  string
	Rejected    []string
	Error       string
	Positions   []decoding.Position
	CreatedAt   time.Time
}

// #endregion prompt-record

// #region attempt-record
// AttemptRecord is one regeneration attempt for one sentence position.
type AttemptRecord struct {
	RunID         string
	PromptIndex   int
	SentenceIndex int
	AttemptNum    int
	Candidates    []decoding.ScoredCandidate
	BestCandidate string
	BestScore     float64
	Accepted      bool
}

// #endregion attempt-record

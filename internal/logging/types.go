package logging

import "time"

// #region decision-entry
// DecisionEntry is a single row in the decision_log table: how one sentence
// position of one prompt was resolved.
type DecisionEntry struct {
	RunID         string
	PromptIndex   int
	SentenceIndex int
	Decision      string // "accept" | "fallback" | "stall"
	Sentence      string
	Score         float64
	Attempts      int
	Reason        string
	CreatedAt     time.Time
}

// #endregion decision-entry

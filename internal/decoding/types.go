package decoding

// #region imports
import (
	"context"
	"math"
	"strings"
)

// #endregion

// #region state

// State is the controller's position in the decoding state machine.
type State string

const (
	StateAccumulating State = "accumulating"
	StateAttempting   State = "attempting"
	StateDone         State = "done"
)

// #endregion

// #region stop-reason

// StopReason records why a passage stopped growing.
type StopReason string

const (
	StopWordCount StopReason = "word_count"
	StopStalled   StopReason = "stalled"
)

// #endregion

// #region decision

// Decision records how a sentence position was resolved.
type Decision string

const (
	// DecisionAccept means a candidate scored strictly below the threshold.
	DecisionAccept Decision = "accept"
	// DecisionFallback means the attempt budget ran out and the lowest-scored
	// candidate seen was used anyway.
	DecisionFallback Decision = "fallback"
)

// #endregion

// #region config

// Config holds the passage-level decoding parameters.
type Config struct {
	DesiredWordCount  int     `json:"desired_word_count"`
	SentenceMaxLength int     `json:"sentence_max_length"`
	MaxRegenAttempts  int     `json:"max_regen_attempts"`
	NumCandidates     int     `json:"num_candidates"`
	Threshold         float64 `json:"threshold"`
}

// DefaultConfig returns the standard decoding parameters.
func DefaultConfig() Config {
	return Config{
		DesiredWordCount:  250,
		SentenceMaxLength: 60,
		MaxRegenAttempts:  5,
		NumCandidates:     3,
		Threshold:         0.5,
	}
}

// #endregion

// #region trace

// ScoredCandidate pairs a candidate sentence with its hallucination score.
type ScoredCandidate struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Attempt records one regeneration round for a sentence position.
// BestCandidate and BestScore are the running minimum across all attempts so
// far for the position, not just this batch.
type Attempt struct {
	Number        int               `json:"number"`
	Candidates    []ScoredCandidate `json:"candidates"`
	BestCandidate string            `json:"best_candidate"`
	BestScore     float64           `json:"best_score"`
}

// Position is the resolved outcome for one sentence of the passage.
type Position struct {
	Index    int       `json:"index"`
	Sentence string    `json:"sentence"`
	Score    float64   `json:"score"`
	Decision Decision  `json:"decision"`
	Attempts []Attempt `json:"attempts"`
}

// Result is the outcome of one filtered generation.
type Result struct {
	Passage    string     `json:"passage"`
	Sentences  []string   `json:"sentences"`
	Rejected   []string   `json:"rejected"`
	Positions  []Position `json:"positions"`
	StopReason StopReason `json:"stop_reason"`
	WordCount  int        `json:"word_count"`
}

// #endregion

// #region collaborators

// Generator produces n single-sentence candidates continuing a context.
type Generator interface {
	Candidates(ctx context.Context, contextText string, maxNewTokens, n int) ([]string, error)
}

// #endregion

// #region context

// Context is the growing generation context: the prompt followed by every
// accepted sentence. It is a value; Append returns a new Context.
type Context struct {
	text string
}

// NewContext starts a context at prompt.
func NewContext(prompt string) Context {
	return Context{text: prompt}
}

// Append returns the context extended by one sentence.
func (c Context) Append(sentence string) Context {
	return Context{text: c.text + " " + sentence}
}

// String returns the context text.
func (c Context) String() string {
	return c.text
}

// #endregion

// #region helpers

// WordCount counts whitespace-separated tokens in the joined passage.
func WordCount(sentences []string) int {
	return len(strings.Fields(strings.Join(sentences, " ")))
}

// noScore is the running-best sentinel before any candidate is seen.
var noScore = math.Inf(1)

// #endregion

package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/decoding"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/store"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string           `json:"description"`
	Config      decoding.Config  `json:"config"`
	Prompt      string           `json:"prompt"`
	Attempts    []FixtureAttempt `json:"attempts"`
	Expected    FixtureExpected  `json:"expected"`
}

// FixtureAttempt is one recorded candidate set with its scores. Attempts are
// stored flat, in the order the controller requested them.
type FixtureAttempt struct {
	Sentence   int                        `json:"sentence"`
	Attempt    int                        `json:"attempt"`
	Candidates []decoding.ScoredCandidate `json:"candidates"`
}

// FixtureExpected is the recorded outcome.
type FixtureExpected struct {
	Passage    string   `json:"passage"`
	Rejected   []string `json:"rejected"`
	StopReason string   `json:"stop_reason"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(f *Fixture, path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-loader

// #region from-store

// FromStore builds a fixture from one recorded prompt of a run.
func FromStore(st *store.Store, runID string, promptIndex int) (*Fixture, error) {
	run, err := st.GetRun(runID)
	if err != nil {
		return nil, err
	}
	prompts, err := st.ListPrompts(runID)
	if err != nil {
		return nil, err
	}
	var rec *store.PromptRecord
	for i := range prompts {
		if prompts[i].PromptIndex == promptIndex {
			rec = &prompts[i]
			break
		}
	}
	if rec == nil {
		return nil, fmt.Errorf("prompt %d not found in run %s", promptIndex, runID)
	}
	if rec.Error != "" {
		return nil, fmt.Errorf("prompt %d of run %s failed: %s", promptIndex, runID, rec.Error)
	}

	attempts, err := st.ListAttempts(runID, promptIndex)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, fmt.Errorf("no attempts recorded for prompt %d of run %s", promptIndex, runID)
	}

	f := &Fixture{
		Description: fmt.Sprintf("Export of run %s prompt %d (%s scorer, %d attempts)", runID, promptIndex, run.Scorer, len(attempts)),
		Config:      run.Config,
		Prompt:      rec.Prompt,
		Attempts:    make([]FixtureAttempt, len(attempts)),
		Expected: FixtureExpected{
			Passage:    rec.Passage,
			Rejected:   rec.Rejected,
			StopReason: rec.StopReason,
		},
	}
	for i, a := range attempts {
		f.Attempts[i] = FixtureAttempt{Sentence: a.SentenceIndex, Attempt: a.AttemptNum, Candidates: a.Candidates}
	}
	return f, nil
}

// #endregion from-store

// Package replay re-runs the decoding controller against recorded candidate
// sets and scores, without a model, and compares the outcome to the record.
package replay

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/decoding"
)

// #region script

// Script serves recorded attempts in order. It is both the generator and the
// scorer for a replayed controller. Once exhausted it returns no candidates,
// which makes the controller stall.
type Script struct {
	attempts []FixtureAttempt
	next     int
	served   *FixtureAttempt
}

// NewScript creates a script over attempts.
func NewScript(attempts []FixtureAttempt) *Script {
	return &Script{attempts: attempts}
}

// Candidates returns the texts of the next recorded attempt.
func (s *Script) Candidates(_ context.Context, _ string, _, _ int) ([]string, error) {
	if s.next >= len(s.attempts) {
		s.served = nil
		return nil, nil
	}
	s.served = &s.attempts[s.next]
	s.next++

	texts := make([]string, len(s.served.Candidates))
	for i, c := range s.served.Candidates {
		texts[i] = c.Text
	}
	return texts, nil
}

// Score returns the recorded scores of the attempt last served.
func (s *Script) Score(_ context.Context, _ string, candidates []string) ([]float64, error) {
	if s.served == nil {
		if len(candidates) > 0 {
			return nil, fmt.Errorf("replay: %d candidates scored with no attempt served", len(candidates))
		}
		return nil, nil
	}
	if len(candidates) != len(s.served.Candidates) {
		return nil, fmt.Errorf("replay: attempt %d has %d candidates, asked to score %d",
			s.next, len(s.served.Candidates), len(candidates))
	}
	scores := make([]float64, len(candidates))
	for i, c := range s.served.Candidates {
		if candidates[i] != c.Text {
			return nil, fmt.Errorf("replay: candidate %d of attempt %d is %q, recorded %q", i, s.next, candidates[i], c.Text)
		}
		scores[i] = c.Score
	}
	return scores, nil
}

// Name identifies the scorer in logs.
func (s *Script) Name() string { return "replay" }

// Remaining reports how many recorded attempts were never requested.
func (s *Script) Remaining() int { return len(s.attempts) - s.next }

// #endregion script

// #region run

// Mismatch is one field whose replayed value differs from the record.
type Mismatch struct {
	Field    string
	Expected string
	Actual   string
}

// Run replays f through a fresh controller. An error means the controller
// itself failed; divergence from the record is reported as mismatches.
func Run(ctx context.Context, f *Fixture) (decoding.Result, []Mismatch, error) {
	script := NewScript(f.Attempts)
	ctrl := decoding.NewController(script, script, f.Config)

	res, err := ctrl.GenerateFiltered(ctx, f.Prompt)
	if err != nil {
		return res, nil, err
	}

	mismatches := Compare(f.Expected, res)
	if n := script.Remaining(); n > 0 {
		mismatches = append(mismatches, Mismatch{Field: "unused_attempts", Expected: "0", Actual: fmt.Sprint(n)})
	}
	return res, mismatches, nil
}

// Compare lists the fields of res that differ from expected.
func Compare(expected FixtureExpected, res decoding.Result) []Mismatch {
	var out []Mismatch
	if expected.Passage != res.Passage {
		out = append(out, Mismatch{Field: "passage", Expected: expected.Passage, Actual: res.Passage})
	}
	if expected.StopReason != string(res.StopReason) {
		out = append(out, Mismatch{Field: "stop_reason", Expected: expected.StopReason, Actual: string(res.StopReason)})
	}
	exp, act := strings.Join(expected.Rejected, " | "), strings.Join(res.Rejected, " | ")
	if len(expected.Rejected) != len(res.Rejected) || exp != act {
		out = append(out, Mismatch{Field: "rejected", Expected: exp, Actual: act})
	}
	return out
}

// #endregion run

package decoding

// #region imports
import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/scoring"
)

// #endregion

// #region controller-struct

// Controller builds a passage one sentence at a time, regenerating candidates
// until one scores below the threshold or the attempt budget is spent.
//
// A Controller is single-threaded: it assumes exclusive use of the generator
// and scorer for the duration of a call. Concurrent callers must serialize
// access to the underlying model service.
type Controller struct {
	gen    Generator
	scorer scoring.Scorer
	cfg    Config
}

// NewController creates a controller with the given collaborators.
func NewController(gen Generator, scorer scoring.Scorer, cfg Config) *Controller {
	return &Controller{gen: gen, scorer: scorer, cfg: cfg}
}

// Config returns the controller's default parameters.
func (c *Controller) Config() Config {
	return c.cfg
}

// #endregion

// #region generate-filtered

// GenerateFiltered runs the filtered decoding loop for prompt with the
// controller's configuration.
func (c *Controller) GenerateFiltered(ctx context.Context, prompt string) (Result, error) {
	return c.GenerateFilteredWith(ctx, prompt, c.cfg)
}

// GenerateFilteredWith runs the filtered decoding loop with cfg.
// The loop stops when the passage reaches cfg.DesiredWordCount words or when
// the selected sentence is empty. On a generator or scorer error the partial
// result built so far is returned with the error.
func (c *Controller) GenerateFilteredWith(ctx context.Context, prompt string, cfg Config) (Result, error) {
	var res Result
	genCtx := NewContext(prompt)
	state := StateAccumulating

	for state != StateDone {
		if WordCount(res.Sentences) >= cfg.DesiredWordCount {
			res.StopReason = StopWordCount
			state = StateDone
			continue
		}

		state = StateAttempting
		pos, rejected, err := c.resolvePosition(ctx, prompt, genCtx, len(res.Positions), cfg)
		res.Rejected = append(res.Rejected, rejected...)
		if err != nil {
			res.finish()
			return res, fmt.Errorf("sentence %d: %w", len(res.Positions), err)
		}

		res.Positions = append(res.Positions, pos)
		res.Sentences = append(res.Sentences, pos.Sentence)
		genCtx = genCtx.Append(pos.Sentence)
		state = StateAccumulating

		if strings.TrimSpace(pos.Sentence) == "" {
			log.Printf("[DECODE] sentence %d is empty, stopping", pos.Index)
			res.StopReason = StopStalled
			state = StateDone
		}
	}

	res.finish()
	log.Printf("[DECODE] passage done: sentences=%d words=%d rejected=%d stop=%s",
		len(res.Sentences), res.WordCount, len(res.Rejected), res.StopReason)
	return res, nil
}

func (r *Result) finish() {
	r.Passage = strings.Join(r.Sentences, " ")
	r.WordCount = WordCount(r.Sentences)
}

// #endregion

// #region resolve-position

// resolvePosition is the bounded retry loop for one sentence. It tracks the
// minimum-score candidate across every attempt; ties keep the first seen.
// rejected holds the running best of each attempt that missed the threshold.
// If no attempt produced any candidate the position resolves to an empty
// sentence with score 0.
func (c *Controller) resolvePosition(ctx context.Context, prompt string, genCtx Context, index int, cfg Config) (pos Position, rejected []string, err error) {
	pos = Position{Index: index, Decision: DecisionFallback}
	bestScore := noScore
	bestCandidate := ""

	for attempt := 1; attempt <= cfg.MaxRegenAttempts; attempt++ {
		candidates, err := c.gen.Candidates(ctx, genCtx.String(), cfg.SentenceMaxLength, cfg.NumCandidates)
		if err != nil {
			return pos, rejected, err
		}
		scores, err := c.scorer.Score(ctx, prompt, candidates)
		if err != nil {
			return pos, rejected, err
		}
		if len(scores) != len(candidates) {
			return pos, rejected, fmt.Errorf("scorer %s returned %d scores for %d candidates", c.scorer.Name(), len(scores), len(candidates))
		}

		rec := Attempt{Number: attempt, Candidates: make([]ScoredCandidate, len(candidates))}
		for i, cand := range candidates {
			rec.Candidates[i] = ScoredCandidate{Text: cand, Score: scores[i]}
			if scores[i] < bestScore {
				bestScore = scores[i]
				bestCandidate = cand
			}
		}
		seen := bestScore != noScore
		if seen {
			rec.BestCandidate = bestCandidate
			rec.BestScore = bestScore
		}
		pos.Attempts = append(pos.Attempts, rec)

		if bestScore < cfg.Threshold {
			pos.Decision = DecisionAccept
			break
		}
		if seen {
			rejected = append(rejected, bestCandidate)
		}
		log.Printf("[DECODE] attempt %d: best candidate score %.3f not below threshold %.3f, regenerating",
			attempt, bestScore, cfg.Threshold)
	}

	pos.Sentence = bestCandidate
	if bestScore != noScore {
		pos.Score = bestScore
	}
	if pos.Decision == DecisionFallback {
		log.Printf("[DECODE] sentence %d: no candidate below threshold after %d attempts, using best (score %.3f)",
			index, len(pos.Attempts), pos.Score)
	}
	return pos, rejected, nil
}

// #endregion

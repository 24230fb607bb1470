// Package batch runs baseline and filtered generation over a list of prompts,
// one prompt at a time, and persists the outputs.
package batch

// #region imports
import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/decoding"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/metrics"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/store"
)

// #endregion

// #region interfaces

// Baseline produces an unfiltered passage.
type Baseline interface {
	Generate(ctx context.Context, prompt string, maxLength int) (string, error)
}

// Filtered produces a hallucination-filtered passage.
type Filtered interface {
	GenerateFiltered(ctx context.Context, prompt string) (decoding.Result, error)
}

// Recorder persists run history. *store.Store satisfies it.
type Recorder interface {
	BeginRun(scorer string, cfg decoding.Config) (store.RunRecord, error)
	RecordPrompt(rec store.PromptRecord) error
	FinishRun(runID string, promptCount, failureCount int) error
}

// #endregion

// #region types

// Options configures a Runner. Recorder and Metrics are optional.
type Options struct {
	BaselineMaxLength int
	ScorerName        string
	Config            decoding.Config
	Recorder          Recorder
	Metrics           *metrics.Metrics
}

// PromptResult is the successful output for one prompt.
type PromptResult struct {
	Index    int
	Prompt   string
	Baseline string
	Filtered decoding.Result
}

// Failure records a prompt that could not be processed.
type Failure struct {
	Index  int
	Prompt string
	Err    error
}

// Report is the outcome of a batch run, in prompt order.
type Report struct {
	RunID    string
	Results  []PromptResult
	Failures []Failure
}

// #endregion

// #region runner

// Runner drives baseline and filtered generation for each prompt in turn.
type Runner struct {
	baseline Baseline
	filtered Filtered
	opts     Options
}

// NewRunner creates a runner.
func NewRunner(baseline Baseline, filtered Filtered, opts Options) *Runner {
	return &Runner{baseline: baseline, filtered: filtered, opts: opts}
}

// Run processes prompts sequentially. A failing prompt is logged and recorded
// as a Failure; the remaining prompts still run. Failures are not retried.
func (r *Runner) Run(ctx context.Context, prompts []string) Report {
	var rep Report
	if r.opts.Recorder != nil {
		run, err := r.opts.Recorder.BeginRun(r.opts.ScorerName, r.opts.Config)
		if err != nil {
			log.Printf("[BATCH] failed to begin run record: %v", err)
		} else {
			rep.RunID = run.RunID
		}
	}

	attempted := 0
	for i, prompt := range prompts {
		if err := ctx.Err(); err != nil {
			log.Printf("[BATCH] stopping after %d/%d prompts: %v", attempted, len(prompts), err)
			break
		}
		attempted++
		log.Printf("[BATCH] (%d/%d) generating for prompt: %s", i+1, len(prompts), prompt)
		start := time.Now()

		res, err := r.processPrompt(ctx, i, prompt)
		status := metrics.StatusOK
		if err != nil {
			status = metrics.StatusFailed
			log.Printf("[BATCH] error processing prompt %q: %v", prompt, err)
			rep.Failures = append(rep.Failures, Failure{Index: i, Prompt: prompt, Err: err})
		} else {
			rep.Results = append(rep.Results, res)
		}

		if r.opts.Metrics != nil {
			r.opts.Metrics.ObservePrompt(status, time.Since(start))
			if err == nil {
				r.opts.Metrics.ObservePassage(res.Filtered)
			}
		}
		r.record(rep.RunID, res, err)
	}

	if r.opts.Recorder != nil && rep.RunID != "" {
		if err := r.opts.Recorder.FinishRun(rep.RunID, attempted, len(rep.Failures)); err != nil {
			log.Printf("[BATCH] failed to finish run record: %v", err)
		}
	}
	log.Printf("[BATCH] done: %d succeeded, %d failed", len(rep.Results), len(rep.Failures))
	return rep
}

// processPrompt runs baseline then filtered generation. A panic in either is
// converted to an error so one prompt cannot abort the batch.
func (r *Runner) processPrompt(ctx context.Context, index int, prompt string) (res PromptResult, err error) {
	res = PromptResult{Index: index, Prompt: prompt}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	res.Baseline, err = r.baseline.Generate(ctx, prompt, r.opts.BaselineMaxLength)
	if err != nil {
		return res, fmt.Errorf("baseline: %w", err)
	}
	res.Filtered, err = r.filtered.GenerateFiltered(ctx, prompt)
	if err != nil {
		return res, fmt.Errorf("filtered: %w", err)
	}
	return res, nil
}

func (r *Runner) record(runID string, res PromptResult, procErr error) {
	if r.opts.Recorder == nil || runID == "" {
		return
	}
	rec := store.PromptRecord{
		RunID:       runID,
		PromptIndex: res.Index,
		Prompt:      res.Prompt,
		Baseline:    res.Baseline,
		Passage:     res.Filtered.Passage,
		WordCount:   res.Filtered.WordCount,
		StopReason:  string(res.Filtered.StopReason),
		Rejected:    res.Filtered.Rejected,
		Positions:   res.Filtered.Positions,
	}
	if procErr != nil {
		rec.Error = procErr.Error()
	}
	if err := r.opts.Recorder.RecordPrompt(rec); err != nil {
		log.Printf("[BATCH] failed to record prompt %d: %v", res.Index, err)
	}
}

// #endregion

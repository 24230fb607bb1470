package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/logging"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/store"
)

// #region main

var rootCmd = &cobra.Command{
	Use:          "inspect",
	Short:        "Inspect recorded decoding runs",
	SilenceUsage: true,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the most recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		last, _ := cmd.Flags().GetInt("last")
		return withStore(cmd, func(st *store.Store, jsonOut bool) error {
			return runListMode(st, last, jsonOut)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Show per-prompt outcomes of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(st *store.Store, jsonOut bool) error {
			return runDetailMode(st, args[0], jsonOut)
		})
	},
}

var attemptsCmd = &cobra.Command{
	Use:   "attempts <run-id> <prompt-index>",
	Short: "Show every regeneration attempt for one prompt",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("prompt index: %w", err)
		}
		return withStore(cmd, func(st *store.Store, jsonOut bool) error {
			return runAttemptsMode(st, args[0], idx, jsonOut)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "path to halluguard.db")
	rootCmd.PersistentFlags().Bool("json", false, "output as JSON instead of table")
	_ = rootCmd.MarkPersistentFlagRequired("db")
	runsCmd.Flags().Int("last", 20, "show N most recent runs")

	rootCmd.AddCommand(runsCmd, runCmd, attemptsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func withStore(cmd *cobra.Command, fn func(st *store.Store, jsonOut bool) error) error {
	dbPath, _ := cmd.Flags().GetString("db")
	jsonOut, _ := cmd.Flags().GetBool("json")

	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()
	return fn(st, jsonOut)
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID      string `json:"run_id"`
	Scorer     string `json:"scorer"`
	Prompts    int    `json:"prompts"`
	Failures   int    `json:"failures"`
	Threshold  string `json:"threshold"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

func runListMode(st *store.Store, last int, jsonOut bool) error {
	runs, err := st.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[i] = listRow{
			RunID:     r.RunID,
			Scorer:    r.Scorer,
			Prompts:   r.PromptCount,
			Failures:  r.FailureCount,
			Threshold: fmt.Sprintf("%.2f", r.Config.Threshold),
			StartedAt: r.StartedAt.Format("2006-01-02T15:04:05Z"),
		}
		if !r.FinishedAt.IsZero() {
			rows[i].FinishedAt = r.FinishedAt.Format("2006-01-02T15:04:05Z")
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %-10s  %7s  %8s  %9s  %s\n", "Run", "Scorer", "Prompts", "Failures", "Threshold", "Started")
	fmt.Printf("%-12s+-%-10s+-%7s+-%8s+-%9s+-%s\n",
		"------------", "----------", "-------", "--------", "---------", "--------------------")
	for _, r := range rows {
		prompts := strconv.Itoa(r.Prompts)
		if r.FinishedAt == "" {
			prompts = "running"
		}
		fmt.Printf("%-12s  %-10s  %7s  %8d  %9s  %s\n",
			shortID(r.RunID), r.Scorer, prompts, r.Failures, r.Threshold, r.StartedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type promptRow struct {
	Index      int      `json:"index"`
	Prompt     string   `json:"prompt"`
	StopReason string   `json:"stop_reason,omitempty"`
	Words      int      `json:"words"`
	Rejected   []string `json:"rejected"`
	Error      string   `json:"error,omitempty"`
}

type detailOutput struct {
	RunID     string         `json:"run_id"`
	Scorer    string         `json:"scorer"`
	Decisions map[string]int `json:"decisions"`
	Prompts   []promptRow    `json:"prompts"`
}

func runDetailMode(st *store.Store, runID string, jsonOut bool) error {
	run, err := st.GetRun(runID)
	if err != nil {
		return err
	}
	prompts, err := st.ListPrompts(runID)
	if err != nil {
		return err
	}
	decisions, err := logging.CountDecisions(st.DB(), runID)
	if err != nil {
		return err
	}

	out := detailOutput{RunID: run.RunID, Scorer: run.Scorer, Decisions: decisions}
	for _, p := range prompts {
		out.Prompts = append(out.Prompts, promptRow{
			Index:      p.PromptIndex,
			Prompt:     p.Prompt,
			StopReason: p.StopReason,
			Words:      p.WordCount,
			Rejected:   p.Rejected,
			Error:      p.Error,
		})
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Run:       %s\n", out.RunID)
	fmt.Printf("Scorer:    %s\n", out.Scorer)
	fmt.Printf("Config:    words=%d attempts=%d candidates=%d threshold=%.2f\n",
		run.Config.DesiredWordCount, run.Config.MaxRegenAttempts, run.Config.NumCandidates, run.Config.Threshold)
	fmt.Printf("Decisions: accept=%d fallback=%d stall=%d\n\n",
		decisions["accept"], decisions["fallback"], decisions["stall"])

	fmt.Printf("%5s  %-10s  %5s  %8s  %s\n", "#", "Stop", "Words", "Rejected", "Prompt")
	fmt.Printf("%5s+-%-10s+-%5s+-%8s+-%s\n", "-----", "----------", "-----", "--------", "--------------------")
	for _, p := range out.Prompts {
		stop := p.StopReason
		if p.Error != "" {
			stop = "FAILED"
		}
		fmt.Printf("%5d  %-10s  %5d  %8d  %s\n", p.Index, stop, p.Words, len(p.Rejected), truncate(p.Prompt, 60))
		if p.Error != "" {
			fmt.Printf("       error: %s\n", p.Error)
		}
	}
	return nil
}

// #endregion detail-mode

// #region attempts-mode

func runAttemptsMode(st *store.Store, runID string, promptIndex int, jsonOut bool) error {
	attempts, err := st.ListAttempts(runID, promptIndex)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Fprintf(os.Stderr, "no attempts recorded for prompt %d of run %s\n", promptIndex, runID)
		return nil
	}
	if jsonOut {
		return printJSON(attempts)
	}

	sentence := -1
	for _, a := range attempts {
		if a.SentenceIndex != sentence {
			sentence = a.SentenceIndex
			fmt.Printf("\nSentence %d\n", sentence)
		}
		mark := " "
		if a.Accepted {
			mark = "*"
		}
		fmt.Printf("  %s attempt %d  best %.3f  %s\n", mark, a.AttemptNum, a.BestScore, truncate(a.BestCandidate, 70))
		for _, c := range a.Candidates {
			fmt.Printf("        %.3f  %s\n", c.Score, truncate(c.Text, 70))
		}
	}
	return nil
}

// #endregion attempts-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

// #endregion output

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/replay"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/store"
)

// #region main

var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded attempts through the decoding controller",
	Long: "replay re-runs the controller against recorded candidates and scores, either\n" +
		"from a fixture file (--fixture) or straight from the run history (--db --run --prompt).\n" +
		"Exit status is 1 when the replay diverges from the record.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runReplay,
}

func init() {
	rootCmd.Flags().String("fixture", "", "path to fixture JSON (fixture mode)")
	rootCmd.Flags().String("db", "", "path to halluguard.db (DB mode)")
	rootCmd.Flags().String("run", "", "run ID (DB mode)")
	rootCmd.Flags().Int("prompt", 0, "prompt index within the run (DB mode)")
	rootCmd.MarkFlagsMutuallyExclusive("fixture", "db")
	rootCmd.MarkFlagsOneRequired("fixture", "db")
	rootCmd.MarkFlagsRequiredTogether("db", "run")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

// #endregion main

// #region load

func runReplay(cmd *cobra.Command, _ []string) error {
	fixturePath, _ := cmd.Flags().GetString("fixture")

	var f *replay.Fixture
	var err error
	if fixturePath != "" {
		f, err = replay.LoadFixture(fixturePath)
	} else {
		f, err = fromDB(cmd)
	}
	if err != nil {
		return err
	}

	res, mismatches, err := replay.Run(context.Background(), f)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	fmt.Printf("%s\n\n", f.Description)
	fmt.Printf("Passage: %s\n", res.Passage)
	fmt.Printf("Stop:    %s (%d words, %d sentences, %d rejected)\n\n",
		res.StopReason, res.WordCount, len(res.Sentences), len(res.Rejected))

	if code := printComparison(mismatches); code != 0 {
		os.Exit(code)
	}
	return nil
}

func fromDB(cmd *cobra.Command) (*replay.Fixture, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	runID, _ := cmd.Flags().GetString("run")
	promptIndex, _ := cmd.Flags().GetInt("prompt")

	st, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer st.Close()
	return replay.FromStore(st, runID, promptIndex)
}

// #endregion load

// #region output

// printComparison outputs the mismatch table and returns the exit code.
func printComparison(mismatches []replay.Mismatch) int {
	if len(mismatches) == 0 {
		fmt.Println("Summary: replay matches the record")
		return 0
	}

	fmt.Printf("%-16s| %-30s| %s\n", "Field", "Expected", "Replayed")
	fmt.Printf("%-16s+%-31s+%s\n", "----------------", "-------------------------------", "-------------------------------")
	for _, m := range mismatches {
		fmt.Printf("%-16s| %-30s| %s\n", m.Field, clip(m.Expected, 30), clip(m.Actual, 30))
	}
	fmt.Printf("\nSummary: %d field(s) diverge\n", len(mismatches))
	return 1
}

func clip(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

// #endregion output

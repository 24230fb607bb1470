package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/replay"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/store"
)

// #region main

var rootCmd = &cobra.Command{
	Use:          "fixture-export",
	Short:        "Export one recorded prompt as a replay fixture",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		runID, _ := cmd.Flags().GetString("run")
		promptIndex, _ := cmd.Flags().GetInt("prompt")
		outPath, _ := cmd.Flags().GetString("out")
		return run(dbPath, runID, promptIndex, outPath)
	},
}

func init() {
	rootCmd.Flags().String("db", "", "path to halluguard.db")
	rootCmd.Flags().String("run", "", "run ID; defaults to the most recent run")
	rootCmd.Flags().Int("prompt", 0, "prompt index within the run")
	rootCmd.Flags().String("out", "", "output fixture JSON path")
	_ = rootCmd.MarkFlagRequired("db")
	_ = rootCmd.MarkFlagRequired("out")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, runID string, promptIndex int, outPath string) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	if runID == "" {
		runs, err := st.ListRuns(1)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return fmt.Errorf("no runs recorded in %s", dbPath)
		}
		runID = runs[0].RunID
	}

	f, err := replay.FromStore(st, runID, promptIndex)
	if err != nil {
		return err
	}
	if err := replay.WriteFixture(f, outPath); err != nil {
		return err
	}

	fmt.Printf("Wrote fixture to %s (%d attempts, prompt %q)\n", outPath, len(f.Attempts), f.Prompt)
	return nil
}

// #endregion extract

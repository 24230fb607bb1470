package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Generate one passage for a single prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().Bool("baseline", false, "also print the unfiltered baseline")
	generateCmd.Flags().Bool("json", false, "print the full decoding trace as JSON")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	prompt := strings.Join(args, " ")

	comps, err := build(cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	ctx := context.Background()
	withBaseline, _ := cmd.Flags().GetBool("baseline")
	if withBaseline {
		text, err := comps.baseline.Generate(ctx, prompt, cfg.Generation.BaselineMaxLength)
		if err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
		fmt.Printf("BASELINE OUTPUT:\n%s\n\n", text)
	}

	res, err := comps.controller.GenerateFiltered(ctx, prompt)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Printf("FILTERED OUTPUT:\n%s\n\n", res.Passage)
	fmt.Printf("FLAGGED SENTENCES: %s\n", strings.Join(res.Rejected, ", "))
	fmt.Printf("[%s] words=%d sentences=%d\n", res.StopReason, res.WordCount, len(res.Sentences))
	return nil
}

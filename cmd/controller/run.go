package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/batch"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/metrics"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run baseline and filtered generation over a prompt file",
	RunE:  runBatch,
}

func init() {
	runCmd.Flags().String("prompts", "", "prompt file, one prompt per line")
	runCmd.Flags().String("out", "", "directory for the output artifacts")
	runCmd.Flags().String("db", "", "SQLite run history path (overrides batch.db_path)")
	runCmd.Flags().String("metrics-file", "", "write Prometheus textfile metrics here after the run")
}

func runBatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("prompts"); v != "" {
		cfg.Batch.PromptsFile = v
	}
	if v, _ := cmd.Flags().GetString("out"); v != "" {
		cfg.Batch.OutputDir = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Batch.DBPath = v
	}
	if v, _ := cmd.Flags().GetString("metrics-file"); v != "" {
		cfg.Batch.MetricsFile = v
	}

	prompts, err := batch.ReadPrompts(cfg.Batch.PromptsFile)
	if err != nil {
		return err
	}
	log.Printf("[BATCH] loaded %d prompts from %s", len(prompts), cfg.Batch.PromptsFile)

	comps, err := build(cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	m := metrics.New()
	opts := batch.Options{
		BaselineMaxLength: cfg.Generation.BaselineMaxLength,
		ScorerName:        comps.scorer.Name(),
		Config:            cfg.DecodingParams(),
		Metrics:           m,
	}
	if cfg.Batch.DBPath != "" {
		st, err := store.NewStore(cfg.Batch.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Recorder = st
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := batch.NewRunner(comps.baseline, comps.controller, opts)
	rep := runner.Run(ctx, prompts)

	if err := batch.WriteArtifacts(cfg.Batch.OutputDir, rep); err != nil {
		return err
	}
	log.Printf("[BATCH] wrote artifacts to %s (run %s)", cfg.Batch.OutputDir, rep.RunID)

	if cfg.Batch.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.Batch.MetricsFile); err != nil {
			log.Printf("[BATCH] failed to write metrics textfile: %v", err)
		}
	}
	return nil
}

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/config"
)

// #region main

var rootCmd = &cobra.Command{
	Use:   "controller",
	Short: "Hallucination-filtered text generation",
	Long: "controller generates passages sentence by sentence, regenerating candidates a\n" +
		"hallucination classifier flags, alongside an unfiltered baseline.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to YAML config (env HALLUGUARD_* overrides it)")
	rootCmd.PersistentFlags().String("codec", "", "inference sidecar address (overrides config and CODEC_ADDR)")
	rootCmd.PersistentFlags().String("scorer", "", "scoring strategy: batched or per_token")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion main

// #region config

// loadConfig reads --config and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("codec"); v != "" {
		cfg.Inference.Addr = v
	}
	if v, _ := cmd.Flags().GetString("scorer"); v != "" {
		cfg.Scoring.Strategy = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	log.Printf("[CONFIG] codec=%s backend=%s scorer=%s threshold=%.2f attempts=%d candidates=%d words=%d",
		cfg.Inference.Addr, cfg.Generation.Backend, cfg.Scoring.Strategy, cfg.Decoding.Threshold,
		cfg.Decoding.MaxRegenAttempts, cfg.Decoding.NumCandidates, cfg.Decoding.DesiredWordCount)
	return cfg, nil
}

// #endregion config

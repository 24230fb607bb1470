package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/metrics"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve filtered and baseline generation over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().Bool("trace", false, "include per-sentence attempts in filtered responses")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	trace, _ := cmd.Flags().GetBool("trace")

	comps, err := build(cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	srv := server.New(comps.controller, comps.baseline, server.Options{
		BaselineMaxLength: cfg.Generation.BaselineMaxLength,
		IncludeTrace:      trace,
		Metrics:           metrics.New(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

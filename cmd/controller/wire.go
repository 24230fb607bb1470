package main

import (
	"fmt"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/codec"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/config"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/decoding"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/generation"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/openaigen"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/scoring"
)

// components is the wired generation pipeline.
type components struct {
	codec      *codec.CodecClient
	scorer     scoring.Scorer
	controller *decoding.Controller
	baseline   *generation.BaselineGenerator
}

// build connects to the sidecar and assembles the pipeline. The classifier
// always runs on the sidecar; text generation may use an OpenAI-compatible
// endpoint instead.
func build(cfg config.Config) (*components, error) {
	cc, err := codec.NewCodecClient(cfg.Inference.Addr, cfg.Inference.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to codec service at %s: %w", cfg.Inference.Addr, err)
	}

	var model generation.Model = cc
	if cfg.Generation.Backend == config.BackendOpenAI {
		oa, err := openaigen.New(openaigen.Config{
			BaseURL:  cfg.Generation.OpenAI.BaseURL,
			APIKey:   cfg.Generation.OpenAI.APIKey,
			Model:    cfg.Generation.OpenAI.Model,
			Encoding: cfg.Generation.OpenAI.Encoding,
		})
		if err != nil {
			cc.Close()
			return nil, err
		}
		model = oa
	}

	scorer, err := scoring.New(scoring.Strategy(cfg.Scoring.Strategy), cc)
	if err != nil {
		cc.Close()
		return nil, err
	}

	gen := generation.NewCandidateGenerator(model, cfg.Generation.TopK)
	return &components{
		codec:      cc,
		scorer:     scorer,
		controller: decoding.NewController(gen, scorer, cfg.DecodingParams()),
		baseline:   generation.NewBaselineGenerator(model),
	}, nil
}

func (c *components) Close() error {
	return c.codec.Close()
}

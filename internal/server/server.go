// Package server exposes filtered and baseline generation over HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/decoding"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/metrics"
)

// #region interfaces

// Filtered runs the decoding controller with a per-request configuration.
type Filtered interface {
	GenerateFilteredWith(ctx context.Context, prompt string, cfg decoding.Config) (decoding.Result, error)
	Config() decoding.Config
}

// Baseline produces an unfiltered passage.
type Baseline interface {
	Generate(ctx context.Context, prompt string, maxLength int) (string, error)
}

// #endregion interfaces

// #region wire-types

// FilteredRequest overrides decoding parameters for one call. Unset fields
// use the server's configuration.
type FilteredRequest struct {
	Prompt            string   `json:"prompt" binding:"required"`
	DesiredWordCount  *int     `json:"desired_word_count" binding:"omitempty,gte=0"`
	SentenceMaxLength *int     `json:"sentence_max_length" binding:"omitempty,gte=1"`
	MaxRegenAttempts  *int     `json:"max_regen_attempts" binding:"omitempty,gte=1"`
	NumCandidates     *int     `json:"num_candidates" binding:"omitempty,gte=1"`
	Threshold         *float64 `json:"threshold" binding:"omitempty,gte=0,lte=1"`
}

// FilteredResponse is the outcome of filtered generation.
type FilteredResponse struct {
	Passage            string              `json:"passage"`
	RejectedCandidates []string            `json:"rejected_candidates"`
	StopReason         decoding.StopReason `json:"stop_reason"`
	WordCount          int                 `json:"word_count"`
	Positions          []decoding.Position `json:"positions,omitempty"`
}

// BaselineRequest asks for one unfiltered continuation.
type BaselineRequest struct {
	Prompt    string `json:"prompt" binding:"required"`
	MaxLength *int   `json:"max_length" binding:"omitempty,gte=1"`
}

// BaselineResponse carries the baseline passage.
type BaselineResponse struct {
	Passage string `json:"passage"`
}

// #endregion wire-types

// #region server

// Options configures a Server. Metrics is optional.
type Options struct {
	BaselineMaxLength int
	IncludeTrace      bool
	Metrics           *metrics.Metrics
}

// Server serializes model access: the controller is single-threaded, so
// concurrent requests queue on mu.
type Server struct {
	filtered Filtered
	baseline Baseline
	opts     Options

	mu     sync.Mutex
	router *gin.Engine
}

// New creates a server and registers its routes.
func New(filtered Filtered, baseline Baseline, opts Options) *Server {
	s := &Server{filtered: filtered, baseline: baseline, opts: opts}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", s.handleHealth)
	r.POST("/v1/generate/filtered", s.handleFiltered)
	r.POST("/v1/generate/baseline", s.handleBaseline)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[SERVE] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		log.Printf("[SERVE] shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// #endregion server

// #region handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleFiltered(c *gin.Context) {
	var req FilteredRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	cfg := s.requestConfig(req)

	start := time.Now()
	var res decoding.Result
	err := s.serialized(func() error {
		var genErr error
		res, genErr = s.filtered.GenerateFilteredWith(c.Request.Context(), req.Prompt, cfg)
		return genErr
	})
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("[SERVE] filtered generation failed: %v", err)
		s.observe(metrics.StatusFailed, elapsed, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.observe(metrics.StatusOK, elapsed, &res)

	rejected := res.Rejected
	if rejected == nil {
		rejected = []string{}
	}
	resp := FilteredResponse{
		Passage:            res.Passage,
		RejectedCandidates: rejected,
		StopReason:         res.StopReason,
		WordCount:          res.WordCount,
	}
	if s.opts.IncludeTrace {
		resp.Positions = res.Positions
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBaseline(c *gin.Context) {
	var req BaselineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	maxLength := s.opts.BaselineMaxLength
	if req.MaxLength != nil {
		maxLength = *req.MaxLength
	}

	var text string
	err := s.serialized(func() error {
		var genErr error
		text, genErr = s.baseline.Generate(c.Request.Context(), req.Prompt, maxLength)
		return genErr
	})

	if err != nil {
		log.Printf("[SERVE] baseline generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, BaselineResponse{Passage: text})
}

// serialized runs fn holding mu. The lock is released even if fn panics.
func (s *Server) serialized(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Server) requestConfig(req FilteredRequest) decoding.Config {
	cfg := s.filtered.Config()
	if req.DesiredWordCount != nil {
		cfg.DesiredWordCount = *req.DesiredWordCount
	}
	if req.SentenceMaxLength != nil {
		cfg.SentenceMaxLength = *req.SentenceMaxLength
	}
	if req.MaxRegenAttempts != nil {
		cfg.MaxRegenAttempts = *req.MaxRegenAttempts
	}
	if req.NumCandidates != nil {
		cfg.NumCandidates = *req.NumCandidates
	}
	if req.Threshold != nil {
		cfg.Threshold = *req.Threshold
	}
	return cfg
}

func (s *Server) observe(status string, elapsed time.Duration, res *decoding.Result) {
	if s.opts.Metrics == nil {
		return
	}
	s.opts.Metrics.ObservePrompt(status, elapsed)
	if res != nil {
		s.opts.Metrics.ObservePassage(*res)
	}
}

// #endregion handlers

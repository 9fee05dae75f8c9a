package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"dinemate/internal/platform/config"
	"dinemate/pkg/platform/circuit"
	"dinemate/pkg/platform/sentinel"
)

// probeEvery is how often an open circuit lets a call through to test
// whether the service recovered.
const probeEvery = 10

// LLMAnalyzer calls the external analysis service. A circuit breaker guards
// the call so a down service fails fast instead of stalling the consumer
// behind timeouts; every probeEvery-th call probes for recovery.
type LLMAnalyzer struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker
	skipped atomic.Uint64
	logger  *slog.Logger
}

// NewLLMAnalyzer builds the LLM-backed analyzer. Returns nil when no base
// URL is configured.
func NewLLMAnalyzer(cfg config.Extraction, logger *slog.Logger) *LLMAnalyzer {
	if cfg.LLMBaseURL == "" {
		return nil
	}
	return &LLMAnalyzer{
		baseURL: cfg.LLMBaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: circuit.New("llm-analyzer",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(2),
		),
		logger: logger,
	}
}

type analyzeRequest struct {
	Content string `json:"content"`
}

type analyzeResponse struct {
	Signals []SignalDraft `json:"signals"`
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, content string) ([]SignalDraft, error) {
	if a.breaker.IsOpen() && a.skipped.Add(1)%probeEvery != 0 {
		return nil, sentinel.ErrUnavailable
	}

	body, err := json.Marshal(analyzeRequest{Content: content})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.recordFailure()
		return nil, fmt.Errorf("call analyze: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		a.recordFailure()
		return nil, fmt.Errorf("analyze returned status %d", resp.StatusCode)
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		a.recordFailure()
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}

	if _, change := a.breaker.RecordSuccess(); change.Closed {
		a.logger.Info("llm analyzer circuit closed", "breaker", a.breaker.Name())
	}
	return parsed.Signals, nil
}

func (a *LLMAnalyzer) recordFailure() {
	if _, change := a.breaker.RecordFailure(); change.Opened {
		a.logger.Warn("llm analyzer circuit opened", "breaker", a.breaker.Name())
	}
}

// FallbackAnalyzer tries the primary analyzer and degrades to the fallback
// on any error. With a nil primary it is just the fallback.
type FallbackAnalyzer struct {
	primary  Analyzer
	fallback Analyzer
	logger   *slog.Logger
}

// NewFallbackAnalyzer composes primary-with-fallback. primary may be nil.
func NewFallbackAnalyzer(primary, fallback Analyzer, logger *slog.Logger) *FallbackAnalyzer {
	return &FallbackAnalyzer{primary: primary, fallback: fallback, logger: logger}
}

func (a *FallbackAnalyzer) Analyze(ctx context.Context, content string) ([]SignalDraft, error) {
	if a.primary != nil {
		drafts, err := a.primary.Analyze(ctx, content)
		if err == nil {
			return drafts, nil
		}
		a.logger.WarnContext(ctx, "primary analyzer failed, using keyword fallback", "error", err)
	}
	return a.fallback.Analyze(ctx, content)
}

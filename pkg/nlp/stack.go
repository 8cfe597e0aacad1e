package nlp

import (
	"log/slog"

	"github.com/soundprediction/casegraph/pkg/config"
	"github.com/soundprediction/casegraph/pkg/metrics"
)

// NewFromConfig builds the client stack used for content extraction. Every request to
// the endpoint, retries included, passes the rate limiter; the circuit breaker sees
// one outcome per logical call after retries are exhausted.
func NewFromConfig(cfg config.LLMConfig, reg *metrics.Registry, logger *slog.Logger) (*TokenTrackingClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	temperature := cfg.Temperature
	maxTokens := cfg.MaxTokens
	base, err := NewOpenAIClient(cfg.APIKey, Config{
		Model:       cfg.Model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	var client Client = NewRateLimitedClient(base, cfg.RateLimitDelay)
	client = NewRetryClient(client, RetryConfigFrom(cfg.Retry), logger)
	client = WithCircuitBreaker(client, cfg.CircuitBreaker, "llm", logger)
	return NewTokenTrackingClient(client, nil, reg), nil
}

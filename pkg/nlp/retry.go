package nlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/soundprediction/casegraph/pkg/config"
)

// RetryConfig controls the backoff schedule of a RetryClient.
type RetryConfig struct {
	// MaxRetries counts attempts after the first call; zero disables retrying.
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigFrom converts the llm.retry configuration section.
func RetryConfigFrom(cfg config.RetryConfig) *RetryConfig {
	rc := DefaultRetryConfig()
	rc.MaxRetries = cfg.MaxRetries
	if cfg.InitialDelay > 0 {
		rc.InitialDelay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		rc.MaxDelay = cfg.MaxDelay
	}
	return rc
}

// RetryClient re-issues a chat completion while the failure looks transient:
// rate limiting, 5xx responses and network trouble. Anything else, including
// an open circuit or a cancelled context, is returned immediately.
type RetryClient struct {
	client Client
	config RetryConfig
	logger *slog.Logger
}

func NewRetryClient(client Client, cfg *RetryConfig, logger *slog.Logger) *RetryClient {
	rc := *DefaultRetryConfig()
	if cfg != nil {
		if cfg.MaxRetries >= 0 {
			rc.MaxRetries = cfg.MaxRetries
		}
		if cfg.InitialDelay > 0 {
			rc.InitialDelay = cfg.InitialDelay
		}
		if cfg.MaxDelay > 0 {
			rc.MaxDelay = cfg.MaxDelay
		}
		if cfg.BackoffMultiplier > 0 {
			rc.BackoffMultiplier = cfg.BackoffMultiplier
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryClient{client: client, config: rc, logger: logger}
}

func (r *RetryClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := r.client.Chat(ctx, messages)
		if err == nil {
			return resp, nil
		}

		reason, ok := transientReason(err)
		if !ok {
			return nil, err
		}
		if attempt == r.config.MaxRetries {
			return nil, fmt.Errorf("failed after %d retries: %w", attempt, err)
		}

		wait := r.backoff(attempt + 1)
		r.logger.Debug("Retrying chat completion",
			"attempt", attempt+1, "reason", reason, "delay", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
	}
}

func (r *RetryClient) Close() error {
	return r.client.Close()
}

// backoff returns InitialDelay * BackoffMultiplier^(retry-1), capped at MaxDelay.
func (r *RetryClient) backoff(retry int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(retry-1))
	if d > float64(r.config.MaxDelay) {
		return r.config.MaxDelay
	}
	return time.Duration(d)
}

// transientPatterns match transport errors that carry no HTTP status.
// Server codes come first so "504 gateway timeout" reports as server_error.
var transientPatterns = []struct {
	text   string
	reason string
}{
	{"429", "rate_limit"},
	{"too many requests", "rate_limit"},
	{"rate limit", "rate_limit"},
	{"500", "server_error"},
	{"internal server error", "server_error"},
	{"502", "server_error"},
	{"bad gateway", "server_error"},
	{"503", "server_error"},
	{"service unavailable", "server_error"},
	{"504", "server_error"},
	{"gateway timeout", "server_error"},
	{"timeout", "timeout"},
	{"connection reset", "network"},
	{"connection refused", "network"},
	{"temporary failure", "network"},
}

// transientReason reports whether err is worth retrying and a short label
// for the log line.
func transientReason(err error) (string, bool) {
	if err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		IsCircuitOpen(err) {
		return "", false
	}
	if KindOf(err) == KindRateLimit {
		return "rate_limit", true
	}
	if code, ok := httpStatus(err); ok {
		switch {
		case code == http.StatusTooManyRequests:
			return "rate_limit", true
		case code >= http.StatusInternalServerError:
			return "server_error", true
		default:
			return "", false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout", true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p.text) {
			return p.reason, true
		}
	}
	return "", false
}

func httpStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

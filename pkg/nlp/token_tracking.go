package nlp

import (
	"context"
	"sync"
	"time"

	"github.com/soundprediction/casegraph/pkg/metrics"
)

// Usage is a snapshot of the calls and tokens seen by a UsageTracker.
type Usage struct {
	Calls            int `json:"calls"`
	Failures         int `json:"failures"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageTracker accumulates call and token counts. It is safe for concurrent use.
type UsageTracker struct {
	mu    sync.Mutex
	usage Usage
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// AddCall records one completed call and its token usage, which may be nil.
func (t *UsageTracker) AddCall(usage *TokenUsage, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Calls++
	if failed {
		t.usage.Failures++
	}
	if usage != nil {
		t.usage.PromptTokens += usage.PromptTokens
		t.usage.CompletionTokens += usage.CompletionTokens
		t.usage.TotalTokens += usage.TotalTokens
	}
}

// Usage returns the totals so far.
func (t *UsageTracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// TokenTrackingClient wraps a Client to track usage in a tracker and, when set, the
// metrics registry.
type TokenTrackingClient struct {
	client  Client
	tracker *UsageTracker
	metrics *metrics.Registry
}

// NewTokenTrackingClient creates a wrapper client. reg may be nil.
func NewTokenTrackingClient(client Client, tracker *UsageTracker, reg *metrics.Registry) *TokenTrackingClient {
	if tracker == nil {
		tracker = NewUsageTracker()
	}
	return &TokenTrackingClient{
		client:  client,
		tracker: tracker,
		metrics: reg,
	}
}

// Chat implements Client
func (c *TokenTrackingClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	start := time.Now()
	resp, err := c.client.Chat(ctx, messages)
	if err != nil {
		c.tracker.AddCall(nil, true)
		c.metrics.RecordLLMCall("error", time.Since(start))
		return nil, err
	}

	c.tracker.AddCall(resp.TokensUsed, false)
	c.metrics.RecordLLMCall("ok", time.Since(start))
	if resp.TokensUsed != nil {
		c.metrics.RecordLLMTokens(resp.TokensUsed.PromptTokens, resp.TokensUsed.CompletionTokens)
	}
	return resp, nil
}

// Tracker returns the tracker this client reports to.
func (c *TokenTrackingClient) Tracker() *UsageTracker {
	return c.tracker
}

// Close implements Client
func (c *TokenTrackingClient) Close() error {
	return c.client.Close()
}

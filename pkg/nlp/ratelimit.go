package nlp

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedClient spaces calls to the wrapped client at least delay apart. One limiter
// is shared by every goroutine using the client.
type RateLimitedClient struct {
	client  Client
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps client. A non-positive delay disables limiting.
func NewRateLimitedClient(client Client, delay time.Duration) *RateLimitedClient {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &RateLimitedClient{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Chat waits for the limiter, then calls the wrapped client.
func (c *RateLimitedClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return c.client.Chat(ctx, messages)
}

// Close implements Client
func (c *RateLimitedClient) Close() error {
	return c.client.Close()
}

package nlp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/soundprediction/casegraph/pkg/config"
	"github.com/soundprediction/casegraph/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitedClient_SpacesCalls(t *testing.T) {
	mock := &mockClient{}
	client := NewRateLimitedClient(mock, 30*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Chat(context.Background(), testMessages)
		require.NoError(t, err)
	}
	// the first call passes immediately, the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
	assert.Equal(t, 3, mock.calls())
}

func TestRateLimitedClient_Disabled(t *testing.T) {
	mock := &mockClient{}
	client := NewRateLimitedClient(mock, 0)

	start := time.Now()
	for i := 0; i < 20; i++ {
		_, err := client.Chat(context.Background(), testMessages)
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimitedClient_Cancelled(t *testing.T) {
	mock := &mockClient{}
	client := NewRateLimitedClient(mock, time.Hour)

	_, err := client.Chat(context.Background(), testMessages)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Chat(ctx, testMessages)
	require.Error(t, err)
	assert.Equal(t, 1, mock.calls())
}

func TestCircuitBreakerClient_Trips(t *testing.T) {
	mock := &mockClient{failUntilCall: 100, errorToReturn: errors.New("503 service unavailable")}
	cb := NewCircuitBreakerClient(mock, config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         60,
		Timeout:          60,
		ReadyToTripRatio: 0.5,
	}, "test", nil)

	for i := 0; i < 3; i++ {
		_, err := cb.Chat(context.Background(), testMessages)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Chat(context.Background(), testMessages)
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, 3, mock.calls(), "open breaker does not reach the client")
}

func TestCircuitBreakerClient_RefusalsDoNotTrip(t *testing.T) {
	mock := &mockClient{failUntilCall: 100, errorToReturn: NewRefusalError("no")}
	cb := NewCircuitBreakerClient(mock, config.CircuitBreakerConfig{Enabled: true, ReadyToTripRatio: 0.5}, "test", nil)

	for i := 0; i < 5; i++ {
		_, err := cb.Chat(context.Background(), testMessages)
		assert.ErrorIs(t, err, ErrRefusal)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestWithCircuitBreaker_Disabled(t *testing.T) {
	mock := &mockClient{}
	assert.Same(t, Client(mock), WithCircuitBreaker(mock, config.CircuitBreakerConfig{}, "test", nil))
}

func TestTokenTrackingClient(t *testing.T) {
	reg := metrics.NewRegistry()
	mock := &mockClient{
		failUntilCall:    1,
		errorToReturn:    errors.New("boom"),
		responseToReturn: &Response{Content: "{}", TokensUsed: &TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}
	client := NewTokenTrackingClient(mock, nil, reg)

	_, err := client.Chat(context.Background(), testMessages)
	require.Error(t, err)
	_, err = client.Chat(context.Background(), testMessages)
	require.NoError(t, err)
	_, err = client.Chat(context.Background(), testMessages)
	require.NoError(t, err)

	assert.Equal(t, Usage{Calls: 3, Failures: 1, PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30}, client.Tracker().Usage())
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.LLMCallsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.LLMCallsTotal.WithLabelValues("error")))
	assert.Equal(t, 20.0, testutil.ToFloat64(reg.LLMTokensTotal.WithLabelValues("prompt")))
}

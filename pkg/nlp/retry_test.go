package nlp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"github.com/soundprediction/casegraph/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient is a mock LLM client for testing
type mockClient struct {
	mu               sync.Mutex
	callCount        int
	failUntilCall    int
	errorToReturn    error
	responseToReturn *Response
}

func (m *mockClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	if m.callCount <= m.failUntilCall {
		return nil, m.errorToReturn
	}
	if m.responseToReturn != nil {
		return m.responseToReturn, nil
	}
	return &Response{Content: "success"}, nil
}

func (m *mockClient) Close() error {
	return nil
}

func (m *mockClient) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          100 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

var testMessages = []Message{NewUserMessage("test")}

func TestRetryClient_SuccessOnFirstAttempt(t *testing.T) {
	mock := &mockClient{}
	retryClient := NewRetryClient(mock, fastRetryConfig(), nil)

	resp, err := retryClient.Chat(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Content)
	assert.Equal(t, 1, mock.calls())
}

func TestRetryClient_SuccessAfterRetries(t *testing.T) {
	mock := &mockClient{
		failUntilCall: 2,
		errorToReturn: errors.New("500 internal server error"),
	}
	retryClient := NewRetryClient(mock, fastRetryConfig(), nil)

	start := time.Now()
	resp, err := retryClient.Chat(context.Background(), testMessages)
	duration := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "success", resp.Content)
	assert.Equal(t, 3, mock.calls(), "1 initial + 2 retries")

	// First retry: 10ms, Second retry: 20ms
	assert.GreaterOrEqual(t, duration, 30*time.Millisecond)
}

func TestRetryClient_FailAfterMaxRetries(t *testing.T) {
	mock := &mockClient{
		failUntilCall: 10,
		errorToReturn: errors.New("503 service unavailable"),
	}
	retryClient := NewRetryClient(mock, fastRetryConfig(), nil)

	_, err := retryClient.Chat(context.Background(), testMessages)
	require.Error(t, err)
	assert.Equal(t, 4, mock.calls(), "1 initial + 3 retries")
	assert.ErrorIs(t, err, mock.errorToReturn)
}

func TestRetryClient_NonRetryableError(t *testing.T) {
	mock := &mockClient{
		failUntilCall: 10,
		errorToReturn: errors.New("400 bad request"),
	}
	retryClient := NewRetryClient(mock, fastRetryConfig(), nil)

	_, err := retryClient.Chat(context.Background(), testMessages)
	require.Error(t, err)
	assert.Equal(t, 1, mock.calls())
}

func TestRetryClient_RateLimitError(t *testing.T) {
	mock := &mockClient{
		failUntilCall: 2,
		errorToReturn: NewRateLimitError("rate limit exceeded"),
	}
	retryClient := NewRetryClient(mock, fastRetryConfig(), nil)

	resp, err := retryClient.Chat(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Content)
	assert.Equal(t, 3, mock.calls())
}

func TestRetryClient_ContextCancellation(t *testing.T) {
	mock := &mockClient{
		failUntilCall: 10,
		errorToReturn: errors.New("500 internal server error"),
	}
	retryClient := NewRetryClient(mock, &RetryConfig{
		MaxRetries:        5,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          1 * time.Second,
		BackoffMultiplier: 2.0,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := retryClient.Chat(ctx, testMessages)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, mock.calls(), 6)
}

func retryable(err error) bool {
	_, ok := transientReason(err)
	return ok
}

func TestTransientReason(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"500 error", errors.New("500 internal server error"), true},
		{"502 error", errors.New("502 bad gateway"), true},
		{"503 error", errors.New("503 service unavailable"), true},
		{"504 error", errors.New("504 gateway timeout"), true},
		{"timeout", errors.New("connection timeout"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"429 error", errors.New("429 too many requests"), true},
		{"400 error", errors.New("400 bad request"), false},
		{"401 error", errors.New("401 unauthorized"), false},
		{"rate limit error type", NewRateLimitError(), true},
		{"refusal error", NewRefusalError("refused"), false},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"context cancelled", context.Canceled, false},
		{"open circuit", gobreaker.ErrOpenState, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, retryable(tt.err))
		})
	}
}

func TestTransientReason_APIStatus(t *testing.T) {
	tests := []struct {
		statusCode int
		retryable  bool
	}{
		{500, true},
		{502, true},
		{503, true},
		{429, true},
		{400, false},
		{401, false},
		{404, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.statusCode), func(t *testing.T) {
			apiErr := &openai.APIError{HTTPStatusCode: tt.statusCode, Message: "upstream"}
			assert.Equal(t, tt.retryable, retryable(apiErr))

			reqErr := &openai.RequestError{HTTPStatusCode: tt.statusCode, Err: errors.New("upstream")}
			assert.Equal(t, tt.retryable, retryable(reqErr))
		})
	}
}

func TestRetryClient_ExponentialBackoff(t *testing.T) {
	retryClient := NewRetryClient(nil, &RetryConfig{
		MaxRetries:        5,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          1 * time.Second,
		BackoffMultiplier: 2.0,
	}, nil)

	expected := []time.Duration{
		100 * time.Millisecond,  // 100 * 2^0
		200 * time.Millisecond,  // 100 * 2^1
		400 * time.Millisecond,  // 100 * 2^2
		800 * time.Millisecond,  // 100 * 2^3
		1000 * time.Millisecond, // 100 * 2^4 = 1600, capped at MaxDelay
	}
	for i, want := range expected {
		assert.Equal(t, want, retryClient.backoff(i+1), "attempt %d", i+1)
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 1*time.Second, config.InitialDelay)
	assert.Equal(t, time.Minute, config.MaxDelay)
	assert.Equal(t, 2.0, config.BackoffMultiplier)
}

func TestRetryConfigFrom(t *testing.T) {
	rc := RetryConfigFrom(config.RetryConfig{MaxRetries: 5, InitialDelay: 2 * time.Second})
	assert.Equal(t, 5, rc.MaxRetries)
	assert.Equal(t, 2*time.Second, rc.InitialDelay)
	assert.Equal(t, 60*time.Second, rc.MaxDelay)
}

func TestTransientReason_Labels(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{NewRateLimitError(), "rate_limit"},
		{&openai.APIError{HTTPStatusCode: 429}, "rate_limit"},
		{&openai.APIError{HTTPStatusCode: 502}, "server_error"},
		{errors.New("504 gateway timeout"), "server_error"},
		{errors.New("i/o timeout"), "timeout"},
		{errors.New("dial tcp: connection refused"), "network"},
	}
	for _, tt := range tests {
		reason, ok := transientReason(tt.err)
		assert.True(t, ok, tt.err.Error())
		assert.Equal(t, tt.reason, reason, tt.err.Error())
	}
}

func TestRetryClient_ZeroRetries(t *testing.T) {
	mock := &mockClient{failUntilCall: 10, errorToReturn: errors.New("503 service unavailable")}
	retryClient := NewRetryClient(mock, &RetryConfig{MaxRetries: 0}, nil)

	_, err := retryClient.Chat(context.Background(), testMessages)
	require.Error(t, err)
	assert.Equal(t, 1, mock.calls())
}

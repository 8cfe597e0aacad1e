package nlp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_Chat(t *testing.T) {
	var req map[string]any
	srv := chatServer(t, http.StatusOK, `{
		"id": "x", "object": "chat.completion", "model": "qwen-test",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"decisions_made\": []}"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
	}`, &req)

	temp := float32(0.3)
	maxTokens := 1000
	client, err := NewOpenAIClient("test-key", Config{Model: "qwen-test", BaseURL: srv.URL, Temperature: &temp, MaxTokens: &maxTokens})
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), []Message{
		NewSystemMessage("system prompt"),
		NewUserMessage("body"),
	})
	require.NoError(t, err)

	assert.Equal(t, `{"decisions_made": []}`, resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	require.NotNil(t, resp.TokensUsed)
	assert.Equal(t, 16, resp.TokensUsed.TotalTokens)

	assert.Equal(t, "qwen-test", req["model"])
	assert.InDelta(t, 0.3, req["temperature"], 1e-6)
	assert.Equal(t, float64(1000), req["max_tokens"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAIClient_RateLimited(t *testing.T) {
	srv := chatServer(t, http.StatusTooManyRequests, `{"error": {"message": "slow down", "type": "rate_limit"}}`, nil)

	client, err := NewOpenAIClient("test-key", Config{Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []Message{NewUserMessage("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimit)
	reason, ok := transientReason(err)
	assert.True(t, ok)
	assert.Equal(t, "rate_limit", reason)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"id": "x", "choices": []}`, nil)

	client, err := NewOpenAIClient("test-key", Config{Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []Message{NewUserMessage("x")})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewOpenAIClient_Validation(t *testing.T) {
	_, err := NewOpenAIClient("k", Config{Model: "m", BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	_, err = NewOpenAIClient("k", Config{Model: "m", BaseURL: "http://"})
	assert.Error(t, err, "a base URL needs a host")

	_, err = NewOpenAIClient("k", Config{BaseURL: "https://openrouter.ai/api/v1"})
	assert.ErrorIs(t, err, ErrInvalidModel)

	client, err := NewOpenAIClient("", Config{Model: "m", BaseURL: "http://localhost:8000/"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestOpenAIClientConfig_BaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://openrouter.ai/api/v1", "https://openrouter.ai/api/v1"},
		{"https://openrouter.ai/api/v1/", "https://openrouter.ai/api/v1"},
		{"http://localhost:8000", "http://localhost:8000/v1"},
		{"http://localhost:8000/api", "http://localhost:8000/api"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cc, err := openAIClientConfig("", Config{Model: "m", BaseURL: tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, cc.BaseURL)
		})
	}
}

func TestHasAPIPath(t *testing.T) {
	assert.True(t, hasAPIPath("https://openrouter.ai/api/v1"))
	assert.True(t, hasAPIPath("http://localhost:8000/api"))
	assert.True(t, hasAPIPath("http://localhost:8000/v1/"))
	assert.False(t, hasAPIPath("http://localhost:8000"))
	assert.False(t, hasAPIPath("http://localhost:8000/v1beta"))
}

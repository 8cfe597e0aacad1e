package nlp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient speaks the chat completions API of OpenAI, OpenRouter or any
// compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
	config Config
}

func NewOpenAIClient(apiKey string, config Config) (*OpenAIClient, error) {
	if config.Model == "" {
		return nil, ErrInvalidModel
	}
	cc, err := openAIClientConfig(apiKey, config)
	if err != nil {
		return nil, err
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cc), config: config}, nil
}

// openAIClientConfig points the SDK at config.BaseURL, appending /v1 when the
// URL has no API path. Local endpoints often need no key; a placeholder is sent.
func openAIClientConfig(apiKey string, config Config) (openai.ClientConfig, error) {
	if config.BaseURL != "" && apiKey == "" {
		apiKey = "dummy-key"
	}
	cc := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		if err := validateBaseURL(config.BaseURL); err != nil {
			return cc, fmt.Errorf("invalid base URL: %w", err)
		}
		cc.BaseURL = strings.TrimRight(config.BaseURL, "/")
		if !hasAPIPath(cc.BaseURL) {
			cc.BaseURL += "/v1"
		}
	}
	if config.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	return cc, nil
}

// Chat returns the first choice. A refusal or an empty choice list is a
// classified CallError.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildChatRequest(messages))
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewEmptyResponseError("no choices returned from chat completion")
	}

	first := resp.Choices[0]
	if first.Message.Refusal != "" {
		return nil, NewRefusalError(first.Message.Refusal)
	}
	out := &Response{
		Content:      first.Message.Content,
		FinishReason: string(first.FinishReason),
		Model:        resp.Model,
	}
	// OpenRouter and local servers may leave usage empty
	if u := resp.Usage; u.TotalTokens > 0 {
		out.TokensUsed = &TokenUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) buildChatRequest(messages []Message) openai.ChatCompletionRequest {
	openaiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		openaiMessages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: openaiMessages,
	}

	if c.config.Temperature != nil {
		req.Temperature = *c.config.Temperature
	}
	if c.config.MaxTokens != nil {
		req.MaxTokens = *c.config.MaxTokens
	}
	if c.config.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return req
}

// classifyOpenAIError turns a 429 into a KindRateLimit CallError so the
// wrappers need not inspect status codes.
func classifyOpenAIError(err error) error {
	if code, ok := httpStatus(err); ok && code == http.StatusTooManyRequests {
		msg := ""
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.Message
		}
		return fmt.Errorf("chat completion failed: %w", NewRateLimitError(msg))
	}
	return fmt.Errorf("chat completion failed: %w", err)
}

func validateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", baseURL)
	}
	return nil
}

// hasAPIPath reports whether the last path segment is already v1 or api.
func hasAPIPath(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	p := strings.TrimRight(u.Path, "/")
	return strings.HasSuffix(p, "/v1") || strings.HasSuffix(p, "/api")
}

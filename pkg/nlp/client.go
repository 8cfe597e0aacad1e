package nlp

import (
	"context"
	"time"
)

// Role is the author of a chat message.
type Role string

// Message roles understood by chat completion endpoints.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenUsage reports the tokens consumed by one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of a chat completion.
type Response struct {
	Content      string      `json:"content"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Model        string      `json:"model,omitempty"`
	TokensUsed   *TokenUsage `json:"tokens_used,omitempty"`
}

// Client is a chat completion backend. Wrappers in this package decorate a Client with
// retries, circuit breaking, rate limiting and usage accounting.
type Client interface {
	Chat(ctx context.Context, messages []Message) (*Response, error)
	Close() error
}

// Config holds the completion parameters of an OpenAIClient.
type Config struct {
	Model       string
	Temperature *float32
	MaxTokens   *int
	BaseURL     string
	// JSONMode requests a JSON object response format.
	JSONMode bool
	// Timeout bounds each HTTP request; zero leaves it to the context.
	Timeout time.Duration
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Package nlp provides the chat completion client used for content extraction.
//
// OpenAIClient talks to OpenAI or any OpenAI-compatible endpoint, OpenRouter by
// default. Wrapper clients add behavior around any Client:
//   - RateLimitedClient: minimum delay between requests
//   - RetryClient: retries with exponential backoff on rate limits and 5xx responses
//   - CircuitBreakerClient: stops calling an endpoint that keeps failing
//   - TokenTrackingClient: counts calls and tokens, optionally into Prometheus metrics
//
// NewFromConfig assembles the full stack from configuration:
//
//	client, err := nlp.NewFromConfig(cfg.LLM, metrics.DefaultRegistry(), logger)
//	resp, err := client.Chat(ctx, []nlp.Message{nlp.NewUserMessage(prompt)})
//
// # Error Handling
//
// Classified failures are *CallError values that match their sentinel errors
// (ErrRateLimit, ErrRefusal, ErrEmptyResponse) with errors.Is.
package nlp

package nlp

import (
	"errors"

	"github.com/sony/gobreaker"
)

var (
	ErrRateLimit     = errors.New("rate limit exceeded. Please try again later")
	ErrRefusal       = errors.New("the LLM refused to respond to this prompt")
	ErrEmptyResponse = errors.New("the LLM returned an empty response")
	ErrInvalidModel  = errors.New("invalid model specified")

	errCallFailed = errors.New("chat completion failed")
)

// ErrorKind classifies a failed chat completion.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRateLimit
	KindRefusal
	KindEmptyResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindRefusal:
		return "refusal"
	case KindEmptyResponse:
		return "empty_response"
	default:
		return "unknown"
	}
}

// CallError is a classified chat completion failure. It matches the sentinel
// of its kind under errors.Is, so callers can test for ErrRateLimit without
// unwrapping.
type CallError struct {
	Kind    ErrorKind
	Message string
}

func (e *CallError) sentinel() error {
	switch e.Kind {
	case KindRateLimit:
		return ErrRateLimit
	case KindRefusal:
		return ErrRefusal
	case KindEmptyResponse:
		return ErrEmptyResponse
	default:
		return errCallFailed
	}
}

func (e *CallError) Error() string {
	if e.Message == "" {
		return e.sentinel().Error()
	}
	return e.Message
}

func (e *CallError) Is(target error) bool {
	return target == e.sentinel()
}

// NewRateLimitError builds a KindRateLimit error; the message is optional.
func NewRateLimitError(message ...string) *CallError {
	err := &CallError{Kind: KindRateLimit}
	if len(message) > 0 {
		err.Message = message[0]
	}
	return err
}

func NewRefusalError(message string) *CallError {
	return &CallError{Kind: KindRefusal, Message: message}
}

func NewEmptyResponseError(message string) *CallError {
	return &CallError{Kind: KindEmptyResponse, Message: message}
}

// KindOf returns the kind of the first CallError in err's chain.
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsCircuitOpen reports whether err was returned by an open or saturated breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

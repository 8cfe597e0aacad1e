package nlp_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/casegraph/pkg/nlp"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitError(t *testing.T) {
	t.Run("default message", func(t *testing.T) {
		err := nlp.NewRateLimitError()
		assert.Equal(t, "rate limit exceeded. Please try again later", err.Error())
	})

	t.Run("custom message", func(t *testing.T) {
		err := nlp.NewRateLimitError("slow down")
		assert.Equal(t, "slow down", err.Error())
	})

	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("chat completion failed: %w", nlp.NewRateLimitError("slow down"))
		assert.ErrorIs(t, err, nlp.ErrRateLimit)
		assert.NotErrorIs(t, err, nlp.ErrRefusal)
		assert.Equal(t, nlp.KindRateLimit, nlp.KindOf(err))

		var ce *nlp.CallError
		assert.True(t, errors.As(err, &ce))
		assert.Equal(t, "slow down", ce.Message)
	})
}

func TestRefusalError(t *testing.T) {
	err := nlp.NewRefusalError("I can't help with that.")
	assert.Equal(t, "I can't help with that.", err.Error())
	assert.ErrorIs(t, fmt.Errorf("wrap: %w", err), nlp.ErrRefusal)
	assert.Equal(t, "refusal", nlp.KindOf(err).String())

	// an empty refusal falls back to the sentinel text
	assert.Equal(t, nlp.ErrRefusal.Error(), nlp.NewRefusalError("").Error())
}

func TestEmptyResponseError(t *testing.T) {
	err := nlp.NewEmptyResponseError("no choices")
	assert.ErrorIs(t, err, nlp.ErrEmptyResponse)
	assert.NotErrorIs(t, err, nlp.ErrRefusal)
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, nlp.KindUnknown, nlp.KindOf(errors.New("boom")))
	assert.Equal(t, nlp.KindUnknown, nlp.KindOf(nil))
	assert.Equal(t, "unknown", (&nlp.CallError{}).Kind.String())
	assert.Equal(t, "chat completion failed", (&nlp.CallError{}).Error())
}

func TestIsCircuitOpen(t *testing.T) {
	assert.True(t, nlp.IsCircuitOpen(gobreaker.ErrOpenState))
	assert.True(t, nlp.IsCircuitOpen(fmt.Errorf("enrich: %w", gobreaker.ErrTooManyRequests)))
	assert.False(t, nlp.IsCircuitOpen(nlp.ErrRateLimit))
}

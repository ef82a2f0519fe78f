package services

import (
	"context"
	"errors"

	"skald/internal/models"
	"skald/internal/store"
)

// ErrProviderDisabled is returned by providers built without credentials.
// It is never retried.
var ErrProviderDisabled = errors.New("embedding provider is not configured")

// EmbeddingResult is one embedded text and what the provider billed for it.
// TokensUsed is zero when the provider does not report usage.
type EmbeddingResult struct {
	Vector     models.Embedding
	TokensUsed int
}

type EmbeddingProvider interface {
	Name() string
	ModelName() string
	Status() store.ProviderStatus
	Dimension() int
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

type RetryStrategy interface {
	NextBackoff(attempt int) int64 // ms, negative to stop
}

// SimpleRetryStrategy provides basic exponential backoff.
type SimpleRetryStrategy struct {
	MaxAttempts int // retries after the first call
	BaseDelayMs int64
}

// NextBackoff calculates the next backoff duration in milliseconds.
func (s *SimpleRetryStrategy) NextBackoff(attempt int) int64 {
	if s.MaxAttempts <= 0 || attempt >= s.MaxAttempts {
		return -1
	}
	backoff := s.BaseDelayMs * (1 << attempt)
	maxDelay := int64(30000)
	if backoff > maxDelay {
		backoff = maxDelay
	}
	return backoff
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"skald/internal/metrics"
	"skald/internal/models"
	"skald/internal/store"
)

// RetryingEmbeddingService bounds every provider call with a timeout,
// retries per its strategy and turns whatever still fails into a
// *models.EmbeddingProviderError. It never substitutes a vector.
type RetryingEmbeddingService struct {
	Provider      EmbeddingProvider
	RetryStrategy RetryStrategy
	Timeout       time.Duration
	Metrics       *metrics.Metrics
}

// NewRetryingEmbeddingService defaults to a single retry after 200ms and
// a 30s per-attempt timeout.
func NewRetryingEmbeddingService(p EmbeddingProvider, strategy RetryStrategy, timeout time.Duration, m *metrics.Metrics) (*RetryingEmbeddingService, error) {
	if p == nil {
		return nil, fmt.Errorf("an embedding provider is required")
	}
	if strategy == nil {
		strategy = &SimpleRetryStrategy{MaxAttempts: 1, BaseDelayMs: 200}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RetryingEmbeddingService{Provider: p, RetryStrategy: strategy, Timeout: timeout, Metrics: m}, nil
}

func (s *RetryingEmbeddingService) Name() string                 { return s.Provider.Name() }
func (s *RetryingEmbeddingService) ModelName() string            { return s.Provider.ModelName() }
func (s *RetryingEmbeddingService) Dimension() int               { return s.Provider.Dimension() }
func (s *RetryingEmbeddingService) Status() store.ProviderStatus { return s.Provider.Status() }

func (s *RetryingEmbeddingService) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	provider := s.Provider
	attempt := 0
	for {
		res, err := s.attempt(ctx, text)
		s.Metrics.EmbeddingRequest(provider.Name(), err)
		if err == nil {
			return res, nil
		}

		// Caller cancellation is not a provider failure.
		if ctx.Err() != nil {
			return EmbeddingResult{}, fmt.Errorf("embedding cancelled: %w", ctx.Err())
		}

		fields := log.Fields{"provider": provider.Name(), "model": provider.ModelName(), "attempt": attempt + 1}
		if errors.Is(err, ErrProviderDisabled) {
			return EmbeddingResult{}, &models.EmbeddingProviderError{Provider: provider.Name(), Err: err}
		}

		backoffMs := s.RetryStrategy.NextBackoff(attempt)
		if backoffMs < 0 {
			log.WithFields(fields).WithError(err).Error("Embedding provider failed, giving up")
			return EmbeddingResult{}, &models.EmbeddingProviderError{Provider: provider.Name(), Err: err}
		}

		log.WithFields(fields).WithError(err).Warnf("Embedding provider failed, retrying in %dms", backoffMs)
		select {
		case <-time.After(time.Duration(backoffMs) * time.Millisecond):
			attempt++
		case <-ctx.Done():
			return EmbeddingResult{}, fmt.Errorf("embedding cancelled while waiting to retry: %w", ctx.Err())
		}
	}
}

func (s *RetryingEmbeddingService) attempt(ctx context.Context, text string) (EmbeddingResult, error) {
	actx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	res, err := s.Provider.Embed(actx, text)
	if err != nil {
		return EmbeddingResult{}, err
	}
	if !res.Vector.Present() {
		return EmbeddingResult{}, fmt.Errorf("provider returned an empty embedding")
	}
	if dim := s.Provider.Dimension(); dim > 0 && res.Vector.Dim() != dim {
		return EmbeddingResult{}, fmt.Errorf("provider returned %d dimensions, want %d", res.Vector.Dim(), dim)
	}
	return res, nil
}

var _ EmbeddingProvider = (*RetryingEmbeddingService)(nil)

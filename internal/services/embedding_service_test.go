package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skald/internal/models"
)

func newRetrying(t *testing.T, p EmbeddingProvider, retries int, timeout time.Duration) *RetryingEmbeddingService {
	t.Helper()
	svc, err := NewRetryingEmbeddingService(p, &SimpleRetryStrategy{MaxAttempts: retries, BaseDelayMs: 1}, timeout, nil)
	require.NoError(t, err)
	return svc
}

func TestRetryingEmbeddingService_Success(t *testing.T) {
	p := new(mockProvider)
	p.On("Embed", mock.Anything, "hello").Return(EmbeddingResult{Vector: models.Embedding{1, 0, 0}, TokensUsed: 2}, nil).Once()

	res, err := newRetrying(t, p, 1, time.Second).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, res.TokensUsed)
	assert.Equal(t, models.Embedding{1, 0, 0}, res.Vector)
	p.AssertExpectations(t)
}

func TestRetryingEmbeddingService_RetriesOnce(t *testing.T) {
	p := new(mockProvider)
	p.On("Embed", mock.Anything, "hello").Return(EmbeddingResult{}, errors.New("503")).Once()
	p.On("Embed", mock.Anything, "hello").Return(EmbeddingResult{Vector: models.Embedding{0, 1, 0}}, nil).Once()

	res, err := newRetrying(t, p, 1, time.Second).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.Embedding{0, 1, 0}, res.Vector)
	p.AssertExpectations(t)
}

func TestRetryingEmbeddingService_GivesUpWithTypedError(t *testing.T) {
	p := new(mockProvider)
	p.On("Embed", mock.Anything, "hello").Return(EmbeddingResult{}, errors.New("503")).Twice()

	_, err := newRetrying(t, p, 1, time.Second).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)

	var perr *models.EmbeddingProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "mock", perr.Provider)
	p.AssertNumberOfCalls(t, "Embed", 2)
}

func TestRetryingEmbeddingService_DisabledIsNotRetried(t *testing.T) {
	p := new(mockProvider)
	p.On("Embed", mock.Anything, "hello").Return(EmbeddingResult{}, ErrProviderDisabled).Once()

	_, err := newRetrying(t, p, 1, time.Second).Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
	assert.ErrorIs(t, err, ErrProviderDisabled)
	p.AssertNumberOfCalls(t, "Embed", 1)
}

func TestRetryingEmbeddingService_RejectsWrongDimension(t *testing.T) {
	p := new(mockProvider)
	p.On("Embed", mock.Anything, "hello").Return(EmbeddingResult{Vector: models.Embedding{1, 0}}, nil)

	_, err := newRetrying(t, p, 0, time.Second).Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
}

func TestRetryingEmbeddingService_AttemptTimeout(t *testing.T) {
	p := new(mockProvider)
	p.On("Embed", mock.Anything, "slow").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(EmbeddingResult{}, context.DeadlineExceeded)

	start := time.Now()
	_, err := newRetrying(t, p, 0, 20*time.Millisecond).Embed(context.Background(), "slow")
	assert.ErrorIs(t, err, models.ErrEmbeddingProvider)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRetryingEmbeddingService_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := new(mockProvider)
	p.On("Embed", mock.Anything, "hello").
		Run(func(mock.Arguments) { cancel() }).
		Return(EmbeddingResult{}, context.Canceled)

	_, err := newRetrying(t, p, 1, time.Second).Embed(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrEmbeddingProvider)
	p.AssertNumberOfCalls(t, "Embed", 1)
}

func TestSimpleRetryStrategy(t *testing.T) {
	s := &SimpleRetryStrategy{MaxAttempts: 2, BaseDelayMs: 100}
	assert.Equal(t, int64(100), s.NextBackoff(0))
	assert.Equal(t, int64(200), s.NextBackoff(1))
	assert.Equal(t, int64(-1), s.NextBackoff(2))

	none := &SimpleRetryStrategy{}
	assert.Equal(t, int64(-1), none.NextBackoff(0))
}

package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"markyt-agent/internal/errors"
	"markyt-agent/internal/models"
	"markyt-agent/pkg/utils"
)

// RetryingProvider retries transient provider failures with exponential
// backoff. Not-found and validation errors are returned immediately.
type RetryingProvider struct {
	next   Provider
	config utils.RetryConfig
	logger zerolog.Logger
}

// NewRetryingProvider wraps next. attempts below 1 disable retries.
func NewRetryingProvider(next Provider, attempts int, initialDelay time.Duration, logger zerolog.Logger) *RetryingProvider {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingProvider{
		next: next,
		config: utils.RetryConfig{
			MaxAttempts:   attempts,
			InitialDelay:  initialDelay,
			MaxDelay:      10 * initialDelay,
			BackoffFactor: 2.0,
			Retryable:     isTransient,
		},
		logger: logger.With().Str("component", "marketdata_retry").Logger(),
	}
}

func isTransient(err error) bool {
	if errors.IsNotFound(err) || errors.Is(err, errors.ErrInputValidation) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Quote retries next.Quote.
func (r *RetryingProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	attempt := 0
	return utils.RetryWithResult(ctx, r.config, func() (*models.Quote, error) {
		attempt++
		q, err := r.next.Quote(ctx, symbol)
		r.logFailure("quote", symbol, attempt, err)
		return q, err
	})
}

// History retries next.History.
func (r *RetryingProvider) History(ctx context.Context, symbol, period, interval string) (models.PriceSeries, error) {
	attempt := 0
	return utils.RetryWithResult(ctx, r.config, func() (models.PriceSeries, error) {
		attempt++
		s, err := r.next.History(ctx, symbol, period, interval)
		r.logFailure("history", symbol, attempt, err)
		return s, err
	})
}

func (r *RetryingProvider) logFailure(op, symbol string, attempt int, err error) {
	if err == nil || attempt >= r.config.MaxAttempts || !isTransient(err) {
		return
	}
	r.logger.Warn().
		Err(err).
		Str("op", op).
		Str("symbol", symbol).
		Int("attempt", attempt).
		Msg("Retrying market data request")
}

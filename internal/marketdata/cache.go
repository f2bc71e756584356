package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"markyt-agent/internal/models"
	"markyt-agent/internal/store"
)

// CachedProvider serves History from a PriceCache while entries are younger
// than the TTL. Quotes always go to the wrapped provider.
type CachedProvider struct {
	next   Provider
	cache  store.PriceCache
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewCachedProvider wraps next with a read-through cache.
func NewCachedProvider(next Provider, cache store.PriceCache, ttl time.Duration, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "price_cache").Logger(),
		now:    time.Now,
	}
}

// Quote delegates to the wrapped provider.
func (c *CachedProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	return c.next.Quote(ctx, symbol)
}

// History returns cached bars when fresh and refreshes them otherwise.
// Cache failures are logged and never fail the request.
func (c *CachedProvider) History(ctx context.Context, symbol, period, interval string) (models.PriceSeries, error) {
	if period == "" {
		period = DefaultPeriod
	}
	if interval == "" {
		interval = DefaultInterval
	}
	key := store.SeriesKey{Symbol: NormalizeSymbol(symbol), Period: period, Interval: interval}

	cached, fetchedAt, err := c.cache.GetSeries(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", key.Symbol).Msg("Cache read failed")
	} else if len(cached) > 0 && c.now().Sub(fetchedAt) < c.ttl {
		c.logger.Debug().
			Str("symbol", key.Symbol).
			Str("period", period).
			Str("interval", interval).
			Msg("Cache hit")
		return cached, nil
	}

	series, err := c.next.History(ctx, symbol, period, interval)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SaveSeries(ctx, key, series, c.now()); err != nil {
		c.logger.Warn().Err(err).Str("symbol", key.Symbol).Msg("Cache write failed")
	}
	return series, nil
}

// Package marketdata fetches quotes and price history for ticker symbols.
package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"markyt-agent/internal/errors"
	"markyt-agent/internal/models"
	"markyt-agent/pkg/utils"
)

// Provider defines market data operations. Every failure is returned as an
// error value carrying the symbol; implementations never panic on bad data.
type Provider interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	History(ctx context.Context, symbol, period, interval string) (models.PriceSeries, error)
}

// ChartRequest describes a window of bars to fetch from a Source.
type ChartRequest struct {
	Symbol   string
	Start    time.Time
	End      time.Time
	Interval string
}

// SourceInfo holds quote metadata reported by a Source.
type SourceInfo struct {
	Symbol           string
	CompanyName      string
	Currency         string
	PreviousClose    float64
	HasPreviousClose bool
}

// Source is the vendor-specific data feed behind a Provider.
type Source interface {
	Chart(ctx context.Context, req ChartRequest) (models.PriceSeries, error)
	Info(ctx context.Context, symbol string) (*SourceInfo, error)
}

// QuoteLookback is wide enough to always contain the last trading session,
// including weekends and holidays.
const QuoteLookback = "5d"

// MarketProvider implements Provider on top of a Source.
type MarketProvider struct {
	source Source
	logger zerolog.Logger
	now    func() time.Time
}

// NewProvider creates a provider reading from source.
func NewProvider(source Source, logger zerolog.Logger) *MarketProvider {
	return &MarketProvider{
		source: source,
		logger: logger.With().Str("component", "marketdata").Logger(),
		now:    time.Now,
	}
}

// History returns the bars of symbol over period at the given interval.
func (p *MarketProvider) History(ctx context.Context, symbol, period, interval string) (models.PriceSeries, error) {
	if period == "" {
		period = DefaultPeriod
	}
	if interval == "" {
		interval = DefaultInterval
	}
	if err := ValidateInterval(interval); err != nil {
		return nil, err
	}

	end := p.now()
	start, err := PeriodStart(period, end)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	series, err := p.source.Chart(ctx, ChartRequest{
		Symbol:   symbol,
		Start:    start,
		End:      end,
		Interval: interval,
	})
	p.logger.Debug().
		Str("symbol", symbol).
		Str("period", period).
		Str("interval", interval).
		Int("bars", len(series)).
		Dur("duration", time.Since(began)).
		Err(err).
		Msg("History fetched")

	if err != nil {
		return nil, errors.NewDataError("history", symbol, "fetch failed", err)
	}
	if len(series) == 0 {
		return nil, errors.NewNotFoundError("history", symbol)
	}

	out := make(models.PriceSeries, len(series))
	copy(out, series)
	return out, nil
}

// Quote returns the latest close of symbol and its change against the
// previous close.
func (p *MarketProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	series, err := p.History(ctx, symbol, QuoteLookback, DefaultInterval)
	if err != nil {
		return nil, err
	}
	current := series.Last().Close

	// Metadata is optional; the price alone still makes a quote.
	info, err := p.source.Info(ctx, symbol)
	if err != nil {
		p.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote metadata unavailable, using defaults")
		info = nil
	}

	previous := current
	currency := "USD"
	name := symbol
	if info != nil {
		if info.HasPreviousClose {
			previous = info.PreviousClose
		}
		if info.Currency != "" {
			currency = info.Currency
		}
		if info.CompanyName != "" {
			name = info.CompanyName
		}
	}

	return &models.Quote{
		Symbol:        strings.ToUpper(symbol),
		CurrentPrice:  utils.Round2(current),
		PreviousClose: utils.Round2(previous),
		Change:        utils.Round2(current - previous),
		ChangePercent: utils.Round2(utils.PercentChange(previous, current)),
		Currency:      currency,
		CompanyName:   name,
		Timestamp:     p.now().Format(time.RFC3339),
	}, nil
}

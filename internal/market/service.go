// Package market exposes the market operations used by the advisor tools
// and the HTTP API.
package market

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	"markyt-agent/internal/analysis"
	"markyt-agent/internal/errors"
	"markyt-agent/internal/logging"
	"markyt-agent/internal/marketdata"
	"markyt-agent/internal/models"
	"markyt-agent/internal/security"
	"markyt-agent/pkg/utils"
)

// Options configures a Service.
type Options struct {
	DefaultPeriod   string
	DefaultInterval string
	// ParallelFetch bounds concurrent portfolio fetches. Values below 2 fetch
	// sequentially.
	ParallelFetch int
}

// Service combines a marketdata.Provider with the analytics functions.
type Service struct {
	provider marketdata.Provider
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a market service.
func NewService(provider marketdata.Provider, opts Options, logger zerolog.Logger) *Service {
	if opts.DefaultPeriod == "" {
		opts.DefaultPeriod = marketdata.DefaultPeriod
	}
	if opts.DefaultInterval == "" {
		opts.DefaultInterval = marketdata.DefaultInterval
	}
	return &Service{
		provider: provider,
		opts:     opts,
		logger:   logger.With().Str("component", "market").Logger(),
		now:      time.Now,
	}
}

// Quote returns the full quote of symbol.
func (s *Service) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := security.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	return s.provider.Quote(ctx, symbol)
}

// StockPrice returns the last close of symbol in USD. The symbol is echoed
// as given. Only price history is consulted.
func (s *Service) StockPrice(ctx context.Context, symbol string) (*models.StockPrice, error) {
	if err := security.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	series, err := s.provider.History(ctx, symbol, marketdata.QuoteLookback, marketdata.DefaultInterval)
	if err != nil {
		return nil, err
	}
	return &models.StockPrice{
		Symbol:    symbol,
		Price:     utils.Round2(series.Last().Close),
		Currency:  "USD",
		Timestamp: s.now().Format(time.RFC3339),
	}, nil
}

// Analysis computes period statistics for symbol.
func (s *Service) Analysis(ctx context.Context, symbol, period string) (*models.Analysis, error) {
	if err := security.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if period == "" {
		period = s.opts.DefaultPeriod
	}
	series, err := s.provider.History(ctx, symbol, period, s.opts.DefaultInterval)
	if err != nil {
		return nil, err
	}
	return analysis.Analyze(symbol, period, series)
}

// ChartData returns chart-ready points for symbol.
func (s *Service) ChartData(ctx context.Context, symbol, period, interval string) (*models.ChartSeries, error) {
	if err := security.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if period == "" {
		period = s.opts.DefaultPeriod
	}
	if interval == "" {
		interval = s.opts.DefaultInterval
	}
	series, err := s.provider.History(ctx, symbol, period, interval)
	if err != nil {
		return nil, err
	}
	return analysis.BuildChart(symbol, period, series)
}

type analysisResult struct {
	analysis *models.Analysis
	err      error
}

// PortfolioSummary analyzes every symbol over the default period and
// aggregates the results. Failed symbols are logged and skipped; the summary
// fails only when no symbol could be analyzed.
func (s *Service) PortfolioSummary(ctx context.Context, symbols []string) (*models.PortfolioSummary, error) {
	if len(symbols) == 0 {
		return nil, errors.NewValidationError("symbols", symbols, "at least one symbol is required")
	}

	analyze := func(symbol *string) analysisResult {
		a, err := s.Analysis(ctx, *symbol, s.opts.DefaultPeriod)
		return analysisResult{analysis: a, err: err}
	}

	var results []analysisResult
	if s.opts.ParallelFetch > 1 {
		mapper := iter.Mapper[string, analysisResult]{MaxGoroutines: s.opts.ParallelFetch}
		results = mapper.Map(symbols, analyze)
	} else {
		results = make([]analysisResult, len(symbols))
		for i := range symbols {
			results[i] = analyze(&symbols[i])
		}
	}

	analyses := make([]models.Analysis, 0, len(results))
	for i, r := range results {
		if r.err != nil {
			logger := logging.WithSymbol(s.logger, symbols[i])
			logger.Warn().
				Err(r.err).
				Msg("Skipping symbol in portfolio summary")
			continue
		}
		analyses = append(analyses, *r.analysis)
	}

	return analysis.SummarizePortfolio(analyses)
}

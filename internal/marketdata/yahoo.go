package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"markyt-agent/internal/errors"
	"markyt-agent/internal/models"
)

// YahooSource reads Yahoo Finance through finance-go.
type YahooSource struct{}

// NewYahooSource creates a Yahoo Finance source.
func NewYahooSource() *YahooSource {
	return &YahooSource{}
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Chart fetches the bars of req. Bars without a close are skipped.
func (y *YahooSource) Chart(ctx context.Context, req ChartRequest) (models.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start, end := req.Start, req.End
	params := &chart.Params{
		Symbol:   NormalizeSymbol(req.Symbol),
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.Interval(req.Interval),
	}

	iter := chart.Get(params)

	series := make(models.PriceSeries, 0)
	for iter.Next() {
		bar := iter.Bar()

		closePrice, _ := bar.Close.Float64()
		if closePrice == 0 {
			continue
		}
		open, _ := bar.Open.Float64()
		high, _ := bar.High.Float64()
		low, _ := bar.Low.Float64()

		series = append(series, models.Bar{
			Date:   time.Unix(int64(bar.Timestamp), 0).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: int64(bar.Volume),
		})
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to get chart for %s: %w", req.Symbol, err)
	}

	return series, nil
}

// Info fetches quote metadata for symbol.
func (y *YahooSource) Info(ctx context.Context, symbol string) (*SourceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := quote.Get(NormalizeSymbol(symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if q == nil {
		return nil, errors.NewNotFoundError("quote", symbol)
	}

	return &SourceInfo{
		Symbol:           q.Symbol,
		CompanyName:      q.ShortName,
		Currency:         q.CurrencyID,
		PreviousClose:    q.RegularMarketPreviousClose,
		HasPreviousClose: q.RegularMarketPreviousClose != 0,
	}, nil
}

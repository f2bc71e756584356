// Package analysis computes snapshot statistics and chart series over
// price history.
package analysis

import (
	"markyt-agent/internal/errors"
	"markyt-agent/internal/models"
	"markyt-agent/pkg/utils"
)

// TrendWindow is the number of closes averaged at each end of a series to
// classify its trend.
const TrendWindow = 5

// ChartDateLayout is the calendar-date format of chart points.
const ChartDateLayout = "2006-01-02"

// Analyze computes the snapshot statistics of series.
//
// Series shorter than TrendWindow compare the whole series with itself, so
// their trend is always bajista and change_pct is measured against the
// full-series mean.
func Analyze(symbol, period string, series models.PriceSeries) (*models.Analysis, error) {
	if len(series) == 0 {
		return nil, errors.NewNotFoundError("analysis", symbol)
	}

	closes := series.Closes()
	current := closes[len(closes)-1]

	window := TrendWindow
	if len(closes) < window {
		window = len(closes)
	}
	oldAvg := mean(closes[:window])
	recentAvg := mean(closes[len(closes)-window:])

	return &models.Analysis{
		Symbol:       symbol,
		Period:       period,
		CurrentPrice: utils.Round2(current),
		Max:          utils.Round2(maxOf(closes)),
		Min:          utils.Round2(minOf(closes)),
		Avg:          utils.Round2(mean(closes)),
		Volatility:   utils.Round2(sampleStdDev(closes)),
		Trend:        classifyTrend(oldAvg, recentAvg),
		ChangePct:    utils.Round2(utils.PercentChange(oldAvg, current)),
	}, nil
}

func classifyTrend(oldAvg, recentAvg float64) models.Trend {
	if recentAvg > oldAvg {
		return models.TrendUp
	}
	return models.TrendDown
}

// BuildChart maps series to chart points and computes the percent change
// from the first to the last close of the window.
func BuildChart(symbol, period string, series models.PriceSeries) (*models.ChartSeries, error) {
	if len(series) == 0 {
		return nil, errors.NewNotFoundError("chart", symbol)
	}

	points := make([]models.ChartPoint, len(series))
	for i, b := range series {
		points[i] = models.ChartPoint{
			Date:   b.Date.Format(ChartDateLayout),
			Price:  utils.Round2(b.Close),
			Volume: b.Volume,
			High:   utils.Round2(b.High),
			Low:    utils.Round2(b.Low),
		}
	}

	first := series[0].Close
	last := series.Last().Close

	return &models.ChartSeries{
		Symbol:        symbol,
		Period:        period,
		Data:          points,
		CurrentPrice:  utils.Round2(last),
		ChangePercent: utils.Round2(utils.PercentChange(first, last)),
		DataPoints:    len(points),
	}, nil
}

// SummarizePortfolio aggregates analyses in input order. Ties on volatility
// and change_pct go to the symbol seen first.
func SummarizePortfolio(analyses []models.Analysis) (*models.PortfolioSummary, error) {
	if len(analyses) == 0 {
		return nil, errors.Wrap(errors.ErrDataNotFound, "could not analyze any stock in the portfolio")
	}

	stocks := make([]models.Analysis, len(analyses))
	copy(stocks, analyses)

	var total float64
	mostVolatile, best := 0, 0
	for i, a := range stocks {
		total += a.CurrentPrice
		if a.Volatility > stocks[mostVolatile].Volatility {
			mostVolatile = i
		}
		if a.ChangePct > stocks[best].ChangePct {
			best = i
		}
	}

	return &models.PortfolioSummary{
		Stocks:            stocks,
		TotalPositions:    len(stocks),
		CombinedValue:     utils.Round2(total),
		HighestVolatility: stocks[mostVolatile].Symbol,
		BestPerformer:     stocks[best].Symbol,
	}, nil
}

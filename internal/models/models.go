// Package models provides domain models for the advisory agent.
package models

import (
	"time"
)

// Trend is the binary direction classification of a price series.
type Trend string

const (
	TrendUp   Trend = "alcista"
	TrendDown Trend = "bajista"
)

// Bar represents OHLCV data for a time period.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceSeries is a date-ascending sequence of bars for one symbol.
type PriceSeries []Bar

// Closes extracts close prices from the series.
func (s PriceSeries) Closes() []float64 {
	prices := make([]float64, len(s))
	for i, b := range s {
		prices[i] = b.Close
	}
	return prices
}

// Last returns the most recent bar. The series must not be empty.
func (s PriceSeries) Last() Bar {
	return s[len(s)-1]
}

// Quote is the current price and daily change of a symbol.
type Quote struct {
	Symbol        string  `json:"symbol"`
	CurrentPrice  float64 `json:"current_price"`
	PreviousClose float64 `json:"previous_close"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Currency      string  `json:"currency"`
	CompanyName   string  `json:"company_name"`
	Timestamp     string  `json:"timestamp"`
}

// StockPrice is the compact price payload returned to the model.
type StockPrice struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	Timestamp string  `json:"timestamp"`
}

// Analysis holds snapshot statistics of a symbol over a period.
type Analysis struct {
	Symbol       string  `json:"symbol"`
	Period       string  `json:"period"`
	CurrentPrice float64 `json:"current_price"`
	Max          float64 `json:"max"`
	Min          float64 `json:"min"`
	Avg          float64 `json:"avg"`
	Volatility   float64 `json:"volatility"`
	Trend        Trend   `json:"trend"`
	ChangePct    float64 `json:"change_pct"`
}

// PortfolioSummary aggregates per-symbol analyses.
// CombinedValue is the plain sum of current prices, not a position value.
type PortfolioSummary struct {
	Stocks            []Analysis `json:"stocks"`
	TotalPositions    int        `json:"total_positions"`
	CombinedValue     float64    `json:"combined_value"`
	HighestVolatility string     `json:"highest_volatility"`
	BestPerformer     string     `json:"best_performer"`
}

// ChartPoint is one chart-ready observation.
type ChartPoint struct {
	Date   string  `json:"date"`
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
}

// ChartSeries is the payload consumed by chart widgets.
type ChartSeries struct {
	Symbol        string       `json:"symbol"`
	Period        string       `json:"period"`
	Data          []ChartPoint `json:"data"`
	CurrentPrice  float64      `json:"current_price"`
	ChangePercent float64      `json:"change_percent"`
	DataPoints    int          `json:"data_points"`
}

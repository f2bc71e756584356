// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"markyt-agent/internal/models"
)

// SeriesKey identifies a cached price series.
type SeriesKey struct {
	Symbol   string
	Period   string
	Interval string
}

// PriceCache defines the interface for price history persistence.
type PriceCache interface {
	// SaveSeries replaces the bars stored under key and stamps them with fetchedAt.
	SaveSeries(ctx context.Context, key SeriesKey, series models.PriceSeries, fetchedAt time.Time) error
	// GetSeries returns the bars stored under key and when they were fetched.
	// A missing key yields an empty series and a zero time.
	GetSeries(ctx context.Context, key SeriesKey) (models.PriceSeries, time.Time, error)
	// Freshness returns when key was last fetched, or the zero time.
	Freshness(ctx context.Context, key SeriesKey) (time.Time, error)
	// Purge removes series fetched before cutoff and reports how many were dropped.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"markyt-agent/internal/models"
)

// Property: saving a series and reading it back under the same key yields
// the same bars in the same order.
func TestProperty_SeriesRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "series_property.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "TSLA", "META", "JPM", "V", "KO"}

	periodGen := gen.OneConstOf("5d", "1mo", "3mo", "6mo", "1y")
	intervalGen := gen.OneConstOf("1h", "1d", "1wk")
	countGen := gen.IntRange(1, 20)
	priceGen := gen.Float64Range(1.0, 5000.0)
	volumeGen := gen.Int64Range(1000, 1000000)

	properties.Property("series round-trip: save then retrieve produces equivalent data", prop.ForAll(
		func(symbolIdx int, period, interval string, count int, basePrice float64, baseVolume int64) bool {
			ctx := context.Background()
			symbol := fmt.Sprintf("%s%d", symbols[symbolIdx%len(symbols)], time.Now().UnixNano()%10000)
			key := SeriesKey{Symbol: symbol, Period: period, Interval: interval}

			series := generateTestSeries(count, basePrice, baseVolume)
			fetchedAt := time.Now().UTC().Truncate(time.Second)

			if err := store.SaveSeries(ctx, key, series, fetchedAt); err != nil {
				t.Logf("Failed to save series: %v", err)
				return false
			}

			retrieved, gotFetched, err := store.GetSeries(ctx, key)
			if err != nil {
				t.Logf("Failed to get series: %v", err)
				return false
			}
			if !gotFetched.Equal(fetchedAt) {
				t.Logf("Fetch time mismatch: expected %v, got %v", fetchedAt, gotFetched)
				return false
			}
			if len(retrieved) != len(series) {
				t.Logf("Count mismatch: expected %d, got %d", len(series), len(retrieved))
				return false
			}
			for i, orig := range series {
				if !barsEqual(orig, retrieved[i]) {
					t.Logf("Bar mismatch at index %d: original=%+v, retrieved=%+v", i, orig, retrieved[i])
					return false
				}
			}
			return true
		},
		gen.IntRange(0, len(symbols)-1),
		periodGen,
		intervalGen,
		countGen,
		priceGen,
		volumeGen,
	))

	properties.Property("save replaces the previous series of the key", prop.ForAll(
		func(first, second int) bool {
			ctx := context.Background()
			key := SeriesKey{
				Symbol:   fmt.Sprintf("RPL%d", time.Now().UnixNano()%100000),
				Period:   "1mo",
				Interval: "1d",
			}

			if err := store.SaveSeries(ctx, key, generateTestSeries(first, 100, 1000), time.Now()); err != nil {
				return false
			}
			if err := store.SaveSeries(ctx, key, generateTestSeries(second, 200, 1000), time.Now()); err != nil {
				return false
			}

			retrieved, _, err := store.GetSeries(ctx, key)
			return err == nil && len(retrieved) == second
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestSQLiteStoreMissingKey(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "missing.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	series, fetchedAt, err := store.GetSeries(context.Background(), SeriesKey{Symbol: "NONE", Period: "3mo", Interval: "1d"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 0 || !fetchedAt.IsZero() {
		t.Errorf("expected empty miss, got %d bars at %v", len(series), fetchedAt)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestSQLiteStoreSymbolCaseInsensitive(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "case.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.SaveSeries(ctx, SeriesKey{Symbol: "aapl", Period: "3mo", Interval: "1d"},
		generateTestSeries(3, 150, 1000), time.Now()); err != nil {
		t.Fatalf("save: %v", err)
	}

	series, _, err := store.GetSeries(ctx, SeriesKey{Symbol: "AAPL", Period: "3mo", Interval: "1d"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(series) != 3 {
		t.Errorf("expected 3 bars, got %d", len(series))
	}
}

func TestSQLiteStorePurge(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "purge.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()
	stale := SeriesKey{Symbol: "OLD", Period: "3mo", Interval: "1d"}
	fresh := SeriesKey{Symbol: "NEW", Period: "3mo", Interval: "1d"}

	if err := store.SaveSeries(ctx, stale, generateTestSeries(2, 10, 100), now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("save stale: %v", err)
	}
	if err := store.SaveSeries(ctx, fresh, generateTestSeries(2, 10, 100), now); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	purged, err := store.Purge(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged series, got %d", purged)
	}
	store.Close()

	// Reopen so freshness comes from disk rather than memory.
	store, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	if ts, _ := store.Freshness(ctx, stale); !ts.IsZero() {
		t.Errorf("stale series still present, fetched at %v", ts)
	}
	series, _, err := store.GetSeries(ctx, fresh)
	if err != nil || len(series) != 2 {
		t.Errorf("fresh series lost: %d bars, err %v", len(series), err)
	}
}

// generateTestSeries creates daily bars with valid OHLC relationships.
func generateTestSeries(count int, basePrice float64, baseVolume int64) models.PriceSeries {
	series := make(models.PriceSeries, count)
	baseTime := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		variation := float64(i%10) * 0.01 * basePrice
		open := basePrice + variation
		close := basePrice + variation*0.5

		high := math.Max(open, close) * 1.01
		low := math.Min(open, close) * 0.99

		series[i] = models.Bar{
			Date:   baseTime.AddDate(0, 0, i),
			Open:   roundToDecimal(open, 2),
			High:   roundToDecimal(high, 2),
			Low:    roundToDecimal(low, 2),
			Close:  roundToDecimal(close, 2),
			Volume: baseVolume + int64(i*1000),
		}
	}

	return series
}

// roundToDecimal rounds a float to specified decimal places
func roundToDecimal(val float64, places int) float64 {
	multiplier := math.Pow(10, float64(places))
	return math.Round(val*multiplier) / multiplier
}

// barsEqual compares two bars with floating point tolerance.
func barsEqual(a, b models.Bar) bool {
	const tolerance = 0.01

	if !a.Date.Equal(b.Date) {
		return false
	}
	return floatEqual(a.Open, b.Open, tolerance) &&
		floatEqual(a.High, b.High, tolerance) &&
		floatEqual(a.Low, b.Low, tolerance) &&
		floatEqual(a.Close, b.Close, tolerance) &&
		a.Volume == b.Volume
}

// floatEqual compares two floats with a tolerance.
func floatEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

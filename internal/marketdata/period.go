package marketdata

import (
	"sort"
	"strings"
	"time"

	"markyt-agent/internal/errors"
)

// Default lookback and granularity for history requests.
const (
	DefaultPeriod   = "3mo"
	DefaultInterval = "1d"
)

// periodStarts maps a lookback period to the start of its window.
var periodStarts = map[string]func(now time.Time) time.Time{
	"1d":  func(now time.Time) time.Time { return now.AddDate(0, 0, -1) },
	"5d":  func(now time.Time) time.Time { return now.AddDate(0, 0, -5) },
	"1mo": func(now time.Time) time.Time { return now.AddDate(0, -1, 0) },
	"3mo": func(now time.Time) time.Time { return now.AddDate(0, -3, 0) },
	"6mo": func(now time.Time) time.Time { return now.AddDate(0, -6, 0) },
	"1y":  func(now time.Time) time.Time { return now.AddDate(-1, 0, 0) },
	"2y":  func(now time.Time) time.Time { return now.AddDate(-2, 0, 0) },
	"5y":  func(now time.Time) time.Time { return now.AddDate(-5, 0, 0) },
	"10y": func(now time.Time) time.Time { return now.AddDate(-10, 0, 0) },
	"ytd": func(now time.Time) time.Time { return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()) },
	"max": func(time.Time) time.Time { return time.Unix(0, 0).UTC() },
}

// intervals lists supported bar granularities, sub-day through quarterly.
var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"2m":  2 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"60m": time.Hour,
	"90m": 90 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
	"5d":  5 * 24 * time.Hour,
	"1wk": 7 * 24 * time.Hour,
	"1mo": 30 * 24 * time.Hour,
	"3mo": 90 * 24 * time.Hour,
}

// Periods returns the supported periods, sorted.
func Periods() []string {
	out := make([]string, 0, len(periodStarts))
	for p := range periodStarts {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ValidatePeriod returns a ValidationError for unknown periods.
func ValidatePeriod(period string) error {
	if _, ok := periodStarts[period]; !ok {
		return errors.NewValidationError("period", period,
			"supported periods: "+strings.Join(Periods(), ", "))
	}
	return nil
}

// ValidateInterval returns a ValidationError for unknown intervals.
func ValidateInterval(interval string) error {
	if _, ok := intervals[interval]; !ok {
		return errors.NewValidationError("interval", interval, "unsupported interval")
	}
	return nil
}

// PeriodStart returns the beginning of the window described by period.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	start, ok := periodStarts[period]
	if !ok {
		return time.Time{}, ValidatePeriod(period)
	}
	return start(now), nil
}

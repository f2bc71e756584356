package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"markyt-agent/internal/models"
)

// SQLiteStore implements PriceCache using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	mu         sync.RWMutex
	fetchTimes map[SeriesKey]time.Time
}

// NewSQLiteStore creates a new SQLite-based price cache.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:         db,
		fetchTimes: make(map[SeriesKey]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Bars of every cached series
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		period TEXT NOT NULL,
		interval TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		UNIQUE(symbol, period, interval, timestamp)
	);

	-- When each series was last fetched from upstream
	CREATE TABLE IF NOT EXISTS series_fetches (
		symbol TEXT NOT NULL,
		period TEXT NOT NULL,
		interval TEXT NOT NULL,
		fetched_at DATETIME NOT NULL,
		PRIMARY KEY (symbol, period, interval)
	);

	CREATE INDEX IF NOT EXISTS idx_bars_series ON bars(symbol, period, interval, timestamp);
	CREATE INDEX IF NOT EXISTS idx_series_fetches_at ON series_fetches(fetched_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func normalizeKey(key SeriesKey) SeriesKey {
	key.Symbol = strings.ToUpper(strings.TrimSpace(key.Symbol))
	return key
}

// SaveSeries replaces the bars of key in a single transaction.
func (s *SQLiteStore) SaveSeries(ctx context.Context, key SeriesKey, series models.PriceSeries, fetchedAt time.Time) error {
	key = normalizeKey(key)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM bars WHERE symbol = ? AND period = ? AND interval = ?
	`, key.Symbol, key.Period, key.Interval); err != nil {
		return fmt.Errorf("failed to clear bars: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, period, interval, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range series {
		_, err := stmt.ExecContext(ctx, key.Symbol, key.Period, key.Interval,
			b.Date.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO series_fetches (symbol, period, interval, fetched_at)
		VALUES (?, ?, ?, ?)
	`, key.Symbol, key.Period, key.Interval, fetchedAt.UTC()); err != nil {
		return fmt.Errorf("failed to record fetch time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	s.fetchTimes[key] = fetchedAt.UTC()
	s.mu.Unlock()

	return nil
}

// GetSeries retrieves the bars of key in chronological order.
func (s *SQLiteStore) GetSeries(ctx context.Context, key SeriesKey) (models.PriceSeries, time.Time, error) {
	key = normalizeKey(key)

	fetchedAt, err := s.Freshness(ctx, key)
	if err != nil {
		return nil, time.Time{}, err
	}
	if fetchedAt.IsZero() {
		return models.PriceSeries{}, time.Time{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND period = ? AND interval = ?
		ORDER BY timestamp ASC
	`, key.Symbol, key.Period, key.Interval)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	series := models.PriceSeries{}
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Date = b.Date.UTC()
		series = append(series, b)
	}

	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("error iterating bars: %w", err)
	}

	return series, fetchedAt, nil
}

// Freshness returns the last fetch time of key.
func (s *SQLiteStore) Freshness(ctx context.Context, key SeriesKey) (time.Time, error) {
	key = normalizeKey(key)

	s.mu.RLock()
	if t, ok := s.fetchTimes[key]; ok {
		s.mu.RUnlock()
		return t, nil
	}
	s.mu.RUnlock()

	var fetchedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT fetched_at FROM series_fetches WHERE symbol = ? AND period = ? AND interval = ?
	`, key.Symbol, key.Period, key.Interval).Scan(&fetchedAt)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get series freshness: %w", err)
	}
	if !fetchedAt.Valid {
		return time.Time{}, nil
	}

	t := fetchedAt.Time.UTC()
	s.mu.Lock()
	s.fetchTimes[key] = t
	s.mu.Unlock()

	return t, nil
}

// Purge drops every series fetched before cutoff.
func (s *SQLiteStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM bars WHERE EXISTS (
			SELECT 1 FROM series_fetches f
			WHERE f.symbol = bars.symbol AND f.period = bars.period AND f.interval = bars.interval
			AND f.fetched_at < ?
		)
	`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("failed to purge bars: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM series_fetches WHERE fetched_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge series: %w", err)
	}
	purged, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	for k, t := range s.fetchTimes {
		if t.Before(cutoff) {
			delete(s.fetchTimes, k)
		}
	}
	s.mu.Unlock()

	return purged, nil
}

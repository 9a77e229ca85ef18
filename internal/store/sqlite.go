package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"locline/internal/domain"
)

// Compile-time interface check.
var _ CloseStore = (*SQLiteCache)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS closes (
	symbol TEXT NOT NULL,
	date   TEXT NOT NULL,
	close  REAL NOT NULL,
	PRIMARY KEY (symbol, date)
);
CREATE TABLE IF NOT EXISTS fetch_log (
	symbol     TEXT PRIMARY KEY,
	fetched_at INTEGER NOT NULL
);
`

// SQLiteCache implements CloseStore backed by a SQLite database, so fetched
// series survive process restarts.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteCache) Close() error {
	return s.db.Close()
}

// WriteCloses upserts the close series and records the fetch time.
func (s *SQLiteCache) WriteCloses(ctx context.Context, symbol string, bars []domain.Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO closes (symbol, date, close) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Date.Format("2006-01-02"), b.Close); err != nil {
			return fmt.Errorf("inserting close %s/%s: %w", symbol, b.Date.Format("2006-01-02"), err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO fetch_log (symbol, fetched_at) VALUES (?, ?)`,
		symbol, time.Now().Unix()); err != nil {
		return fmt.Errorf("updating fetch log: %w", err)
	}

	return tx.Commit()
}

// ReadCloses returns up to limit most recent closes for symbol, ascending.
func (s *SQLiteCache) ReadCloses(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, close FROM (
			SELECT date, close FROM closes WHERE symbol = ? ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC`,
		symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("querying closes: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var dateStr string
		var closePx float64
		if err := rows.Scan(&dateStr, &closePx); err != nil {
			return nil, fmt.Errorf("scanning close row: %w", err)
		}
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing cached date %q: %w", dateStr, err)
		}
		bars = append(bars, domain.Bar{Symbol: symbol, Date: date, Close: closePx})
	}
	return bars, rows.Err()
}

// LastFetched returns the recorded fetch time for symbol, or the zero time.
func (s *SQLiteCache) LastFetched(ctx context.Context, symbol string) (time.Time, error) {
	var unix int64
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM fetch_log WHERE symbol = ?`, symbol).Scan(&unix)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying fetch log: %w", err)
	}
	return time.Unix(unix, 0), nil
}

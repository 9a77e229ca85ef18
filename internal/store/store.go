// Package store persists fetched daily closes in a local SQLite cache and
// exports backtest snapshot series to Parquet.
package store

import (
	"context"
	"time"

	"locline/internal/domain"
)

// CloseStore persists and retrieves daily closing prices per symbol, along
// with the time each symbol was last refreshed, which drives the fetch
// layer's TTL checks.
type CloseStore interface {
	// WriteCloses upserts a close series for a symbol and stamps its fetch
	// time.
	WriteCloses(ctx context.Context, symbol string, bars []domain.Bar) error

	// ReadCloses returns up to limit most recent closes for a symbol, in
	// ascending date order.
	ReadCloses(ctx context.Context, symbol string, limit int) ([]domain.Bar, error)

	// LastFetched returns the time the symbol was last written, or the zero
	// time when it has never been.
	LastFetched(ctx context.Context, symbol string) (time.Time, error)
}

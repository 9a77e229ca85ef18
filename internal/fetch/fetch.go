// Package fetch is the market-data boundary: daily close series for the
// traded instrument and its FX conversion pair, with a primary provider, an
// automatic HTTP fallback, typed errors per failure mode, and a TTL cache
// bounding redundant network calls.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"locline/internal/domain"
	"locline/internal/store"
	"locline/internal/util"
)

// Source produces a daily close series for a symbol over a date range.
type Source interface {
	DailyCloses(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

type memEntry struct {
	bars      []domain.Bar
	fetchedAt time.Time
}

// Fetcher resolves close series through a cache hierarchy: in-memory TTL
// cache, on-disk close cache, then the network (primary source with one
// automatic fallback). Cache invalidation is purely time-based.
type Fetcher struct {
	primary  Source // nil when no credentials are configured
	fallback Source
	cache    store.CloseStore // nil disables the persistent cache
	minRows  int
	log      *slog.Logger

	mu  sync.Mutex
	mem map[string]memEntry

	now func() time.Time
}

// New creates a Fetcher. primary may be nil, in which case every request
// goes straight to the fallback. minRows is the smallest series the caller
// can use (the volatility window plus two observations); shorter provider
// answers are treated as insufficient.
func New(primary, fallback Source, cache store.CloseStore, minRows int, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		primary:  primary,
		fallback: fallback,
		cache:    cache,
		minRows:  minRows,
		log:      log.With("component", "fetch"),
		mem:      make(map[string]memEntry),
		now:      time.Now,
	}
}

// Series returns the daily close series for symbol covering the last days
// calendar days, serving cached data within ttl.
func (f *Fetcher) Series(ctx context.Context, symbol string, days int, ttl time.Duration) ([]domain.Bar, error) {
	key := fmt.Sprintf("%s:%d", symbol, days)
	now := f.now()

	f.mu.Lock()
	if e, ok := f.mem[key]; ok && now.Sub(e.fetchedAt) < ttl {
		bars := e.bars
		f.mu.Unlock()
		return bars, nil
	}
	f.mu.Unlock()

	if f.cache != nil {
		fetchedAt, err := f.cache.LastFetched(ctx, symbol)
		if err == nil && !fetchedAt.IsZero() && now.Sub(fetchedAt) < ttl {
			bars, err := f.cache.ReadCloses(ctx, symbol, days)
			if err == nil && len(bars) >= f.minRows {
				f.remember(key, bars, fetchedAt)
				return bars, nil
			}
		}
	}

	bars, err := f.fetchRemote(ctx, symbol, days, f.minRows)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.WriteCloses(ctx, symbol, bars); err != nil {
			f.log.Warn("writing close cache", "symbol", symbol, "error", err)
		}
	}
	f.remember(key, bars, now)
	return bars, nil
}

// LatestRate returns the most recent close for symbol, intended for FX
// pairs where only the latest conversion rate matters. A short lookback is
// used and no minimum row count is enforced.
func (f *Fetcher) LatestRate(ctx context.Context, symbol string, ttl time.Duration) (float64, error) {
	const lookbackDays = 7

	key := fmt.Sprintf("%s:%d", symbol, lookbackDays)
	now := f.now()

	f.mu.Lock()
	if e, ok := f.mem[key]; ok && now.Sub(e.fetchedAt) < ttl && len(e.bars) > 0 {
		rate := e.bars[len(e.bars)-1].Close
		f.mu.Unlock()
		return rate, nil
	}
	f.mu.Unlock()

	bars, err := f.fetchRemote(ctx, symbol, lookbackDays, 1)
	if err != nil {
		return 0, err
	}
	f.remember(key, bars, now)
	return bars[len(bars)-1].Close, nil
}

// Stale returns the last-known persisted series for symbol regardless of
// TTL, for degraded serving when every live path has failed. The second
// return reports whether anything was found.
func (f *Fetcher) Stale(ctx context.Context, symbol string, days int) ([]domain.Bar, bool) {
	key := fmt.Sprintf("%s:%d", symbol, days)

	f.mu.Lock()
	if e, ok := f.mem[key]; ok && len(e.bars) > 0 {
		bars := e.bars
		f.mu.Unlock()
		return bars, true
	}
	f.mu.Unlock()

	if f.cache == nil {
		return nil, false
	}
	bars, err := f.cache.ReadCloses(ctx, symbol, days)
	if err != nil || len(bars) == 0 {
		return nil, false
	}
	return bars, true
}

// fetchRemote runs the primary-then-fallback chain for one symbol.
func (f *Fetcher) fetchRemote(ctx context.Context, symbol string, days, minRows int) ([]domain.Bar, error) {
	end := f.now()
	start := end.AddDate(0, 0, -days)

	// FX-style symbols are not served by the equities feed.
	if f.primary != nil && !strings.Contains(symbol, "=") {
		bars, err := f.primary.DailyCloses(ctx, symbol, start, end)
		switch {
		case err != nil:
			f.log.Warn("primary source failed, falling back", "symbol", symbol, "error", err)
		case len(bars) < minRows:
			f.log.Warn("primary source returned insufficient rows, falling back",
				"symbol", symbol, "rows", len(bars), "need", minRows)
		default:
			return bars, nil
		}
	}

	var bars []domain.Bar
	err := util.Retry(ctx, 2, 500*time.Millisecond, func() error {
		var ferr error
		bars, ferr = f.fallback.DailyCloses(ctx, symbol, start, end)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	if len(bars) < minRows {
		return nil, newError(KindInsufficient, symbol,
			fmt.Errorf("got %d rows, need %d", len(bars), minRows))
	}
	return bars, nil
}

func (f *Fetcher) remember(key string, bars []domain.Bar, at time.Time) {
	f.mu.Lock()
	f.mem[key] = memEntry{bars: bars, fetchedAt: at}
	f.mu.Unlock()
}

package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"locline/internal/domain"
)

// stubSource is a scripted Source for exercising the fetch chain.
type stubSource struct {
	bars  []domain.Bar
	err   error
	calls int
}

func (s *stubSource) DailyCloses(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Bar, len(s.bars))
	for i, b := range s.bars {
		out[i] = b
		out[i].Symbol = symbol
	}
	return out, nil
}

// memCloseStore is an in-memory CloseStore for testing the persistent tier
// without touching disk.
type memCloseStore struct {
	bars      map[string][]domain.Bar
	fetchedAt map[string]time.Time
	writes    int
}

func newMemCloseStore() *memCloseStore {
	return &memCloseStore{
		bars:      make(map[string][]domain.Bar),
		fetchedAt: make(map[string]time.Time),
	}
}

func (m *memCloseStore) WriteCloses(ctx context.Context, symbol string, bars []domain.Bar) error {
	m.writes++
	m.bars[symbol] = append([]domain.Bar(nil), bars...)
	m.fetchedAt[symbol] = time.Now()
	return nil
}

func (m *memCloseStore) ReadCloses(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	bars := m.bars[symbol]
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (m *memCloseStore) LastFetched(ctx context.Context, symbol string) (time.Time, error) {
	return m.fetchedAt[symbol], nil
}

func seriesBars(n int) []domain.Bar {
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{Date: start.AddDate(0, 0, i), Close: 100 + float64(i)}
	}
	return bars
}

func TestSeriesPrimaryPreferred(t *testing.T) {
	primary := &stubSource{bars: seriesBars(5)}
	fallback := &stubSource{bars: seriesBars(5)}
	f := New(primary, fallback, nil, 3, nil)

	bars, err := f.Series(context.Background(), "SOXL", 30, time.Minute)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(bars) != 5 {
		t.Errorf("got %d bars, want 5", len(bars))
	}
	if primary.calls != 1 || fallback.calls != 0 {
		t.Errorf("calls = primary %d / fallback %d, want 1 / 0", primary.calls, fallback.calls)
	}
}

func TestSeriesFallsBackOnPrimaryError(t *testing.T) {
	primary := &stubSource{err: errors.New("feed down")}
	fallback := &stubSource{bars: seriesBars(5)}
	f := New(primary, fallback, nil, 3, nil)

	bars, err := f.Series(context.Background(), "SOXL", 30, time.Minute)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(bars) != 5 {
		t.Errorf("got %d bars, want 5", len(bars))
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls)
	}
}

func TestSeriesFallsBackOnShortPrimaryAnswer(t *testing.T) {
	primary := &stubSource{bars: seriesBars(2)}
	fallback := &stubSource{bars: seriesBars(5)}
	f := New(primary, fallback, nil, 3, nil)

	bars, err := f.Series(context.Background(), "SOXL", 30, time.Minute)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(bars) != 5 {
		t.Errorf("got %d bars, want the fallback's 5", len(bars))
	}
}

func TestSeriesFXSkipsPrimary(t *testing.T) {
	primary := &stubSource{bars: seriesBars(5)}
	fallback := &stubSource{bars: seriesBars(5)}
	f := New(primary, fallback, nil, 1, nil)

	if _, err := f.Series(context.Background(), "KRW=X", 7, time.Minute); err != nil {
		t.Fatalf("Series: %v", err)
	}
	if primary.calls != 0 {
		t.Errorf("primary calls = %d, want 0 for an FX symbol", primary.calls)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls)
	}
}

func TestSeriesInsufficientRows(t *testing.T) {
	fallback := &stubSource{bars: seriesBars(2)}
	f := New(nil, fallback, nil, 10, nil)

	_, err := f.Series(context.Background(), "SOXL", 30, time.Minute)
	if err == nil {
		t.Fatal("expected error on short series")
	}
	if kind := KindOf(err); kind != KindInsufficient {
		t.Errorf("kind = %s, want %s", kind, KindInsufficient)
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Symbol != "SOXL" {
		t.Errorf("error = %v, want a typed fetch error carrying the symbol", err)
	}
}

func TestSeriesMemoryCacheWithinTTL(t *testing.T) {
	fallback := &stubSource{bars: seriesBars(5)}
	f := New(nil, fallback, nil, 3, nil)
	ctx := context.Background()

	if _, err := f.Series(ctx, "SOXL", 30, time.Minute); err != nil {
		t.Fatalf("first Series: %v", err)
	}
	if _, err := f.Series(ctx, "SOXL", 30, time.Minute); err != nil {
		t.Fatalf("second Series: %v", err)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1 (second call served from memory)", fallback.calls)
	}

	// Advancing past the TTL forces a refetch.
	f.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := f.Series(ctx, "SOXL", 30, time.Minute); err != nil {
		t.Fatalf("third Series: %v", err)
	}
	if fallback.calls != 2 {
		t.Errorf("fallback calls = %d, want 2 after TTL expiry", fallback.calls)
	}
}

func TestSeriesPersistentCacheServesFreshData(t *testing.T) {
	cache := newMemCloseStore()
	fallback := &stubSource{bars: seriesBars(5)}
	ctx := context.Background()

	// First fetcher populates the persistent cache.
	f1 := New(nil, fallback, cache, 3, nil)
	if _, err := f1.Series(ctx, "SOXL", 30, time.Minute); err != nil {
		t.Fatalf("Series: %v", err)
	}
	if cache.writes != 1 {
		t.Fatalf("cache writes = %d, want 1", cache.writes)
	}

	// A fresh fetcher (empty memory cache) reads the persisted series
	// instead of going to the network.
	f2 := New(nil, fallback, cache, 3, nil)
	bars, err := f2.Series(ctx, "SOXL", 30, time.Minute)
	if err != nil {
		t.Fatalf("Series from cache: %v", err)
	}
	if len(bars) != 5 {
		t.Errorf("got %d bars, want 5", len(bars))
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1 (second fetcher served from disk cache)", fallback.calls)
	}
}

func TestLatestRate(t *testing.T) {
	fallback := &stubSource{bars: seriesBars(3)}
	f := New(nil, fallback, nil, 10, nil)

	rate, err := f.LatestRate(context.Background(), "KRW=X", time.Minute)
	if err != nil {
		t.Fatalf("LatestRate: %v", err)
	}
	// Last close of the series; the fetcher-wide minimum row count does
	// not apply to rate lookups.
	if rate != 102 {
		t.Errorf("rate = %v, want 102", rate)
	}
}

func TestStale(t *testing.T) {
	cache := newMemCloseStore()
	fallback := &stubSource{bars: seriesBars(5)}
	ctx := context.Background()

	f := New(nil, fallback, cache, 3, nil)
	if _, ok := f.Stale(ctx, "SOXL", 30); ok {
		t.Error("Stale before any fetch should find nothing")
	}

	if _, err := f.Series(ctx, "SOXL", 30, time.Minute); err != nil {
		t.Fatalf("Series: %v", err)
	}

	bars, ok := f.Stale(ctx, "SOXL", 30)
	if !ok || len(bars) != 5 {
		t.Errorf("Stale = (%d bars, %v), want the fetched series", len(bars), ok)
	}
}

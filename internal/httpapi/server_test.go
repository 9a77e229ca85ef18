package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"locline/internal/domain"
	"locline/internal/fetch"
	"locline/internal/state"
)

// fakeProvider is a scripted SeriesProvider.
type fakeProvider struct {
	bars   []domain.Bar
	err    error
	stale  []domain.Bar
	fxRate float64
	fxErr  error
}

func (p *fakeProvider) Series(ctx context.Context, symbol string, days int, ttl time.Duration) ([]domain.Bar, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.bars, nil
}

func (p *fakeProvider) LatestRate(ctx context.Context, symbol string, ttl time.Duration) (float64, error) {
	if p.fxErr != nil {
		return 0, p.fxErr
	}
	return p.fxRate, nil
}

func (p *fakeProvider) Stale(ctx context.Context, symbol string, days int) ([]domain.Bar, bool) {
	return p.stale, len(p.stale) > 0
}

func flatThenJump() []domain.Bar {
	closes := []float64{100, 100, 100, 100, 100, 100.85}
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: "SOXL", Date: start.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func newTestServer(t *testing.T, provider *fakeProvider) *Server {
	t.Helper()
	states := state.NewStore(filepath.Join(t.TempDir(), "account.json"), nil)
	opts := Options{
		Symbol:       "SOXL",
		FXSymbol:     "KRW=X",
		Params:       domain.StrategyParams{NSigma: 2, BuyMult: 0.85, SellMult: 2.2, Weights: []float64{1, 1, 2}},
		SignalDays:   60,
		BacktestDays: 365,
		LiveTTL:      10 * time.Minute,
		BacktestTTL:  time.Hour,
	}
	return NewServer(provider, states, nil, opts, nil)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})
	w := doRequest(t, s, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if cors := w.Header().Get("Access-Control-Allow-Origin"); cors != "*" {
		t.Errorf("CORS header = %q, want *", cors)
	}
}

func TestHandleSignal(t *testing.T) {
	s := newTestServer(t, &fakeProvider{bars: flatThenJump(), fxRate: 1390.5})
	w := doRequest(t, s, http.MethodGet, "/api/signal", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp SignalResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Symbol != "SOXL" {
		t.Errorf("Symbol = %q, want SOXL", resp.Symbol)
	}
	if resp.Quote.ReferenceClose != 100.85 {
		t.Errorf("ReferenceClose = %v, want 100.85", resp.Quote.ReferenceClose)
	}
	// Fresh default account: quarter of the seed at the buy limit.
	if resp.Quote.BuyQty != 91 {
		t.Errorf("BuyQty = %d, want 91", resp.Quote.BuyQty)
	}
	if resp.Stale || resp.DroppedUnconfirmed {
		t.Errorf("flags = stale %v / dropped %v, want both false", resp.Stale, resp.DroppedUnconfirmed)
	}
	if resp.FXRate != 1390.5 {
		t.Errorf("FXRate = %v, want 1390.5", resp.FXRate)
	}
	if len(resp.Closes) != 6 {
		t.Errorf("Closes = %d points, want 6", len(resp.Closes))
	}
}

func TestHandleSignalStaleFallback(t *testing.T) {
	provider := &fakeProvider{
		err:   &fetch.Error{Kind: fetch.KindUnavailable, Symbol: "SOXL"},
		stale: flatThenJump(),
	}
	s := newTestServer(t, provider)

	w := doRequest(t, s, http.MethodGet, "/api/signal", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want degraded 200", w.Code)
	}
	var resp SignalResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Stale {
		t.Error("Stale = false, want true when serving the cached series")
	}
}

func TestHandleSignalFetchFailure(t *testing.T) {
	provider := &fakeProvider{err: &fetch.Error{Kind: fetch.KindRateLimited, Symbol: "SOXL"}}
	s := newTestServer(t, provider)

	w := doRequest(t, s, http.MethodGet, "/api/signal", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Kind != string(fetch.KindRateLimited) {
		t.Errorf("kind = %q, want %q", body.Kind, fetch.KindRateLimited)
	}
}

func TestHandleSignalFXFailureIsNonFatal(t *testing.T) {
	provider := &fakeProvider{
		bars:  flatThenJump(),
		fxErr: &fetch.Error{Kind: fetch.KindTimeout, Symbol: "KRW=X"},
	}
	s := newTestServer(t, provider)

	w := doRequest(t, s, http.MethodGet, "/api/signal", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite FX failure", w.Code)
	}
	var resp SignalResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.FXRate != 0 {
		t.Errorf("FXRate = %v, want omitted on failure", resp.FXRate)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	w := doRequest(t, s, http.MethodGet, "/api/account", nil)
	var acct domain.Account
	if err := json.NewDecoder(w.Body).Decode(&acct); err != nil {
		t.Fatalf("decoding account: %v", err)
	}
	if acct.Seed != state.DefaultSeed {
		t.Errorf("Seed = %v, want the default", acct.Seed)
	}

	w = doRequest(t, s, http.MethodPut, "/api/account",
		AccountPayload{Seed: 50000, Qty: 100, Avg: 120, Step: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", w.Code, w.Body.String())
	}
	if err := json.NewDecoder(w.Body).Decode(&acct); err != nil {
		t.Fatalf("decoding account: %v", err)
	}
	if acct.Cash != 50000-100*120 {
		t.Errorf("Cash = %v, want seed minus invested", acct.Cash)
	}
	if acct.Step != 2 {
		t.Errorf("Step = %d, want 2", acct.Step)
	}
}

func TestPutAccountNormalizesFlatState(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	w := doRequest(t, s, http.MethodPut, "/api/account",
		AccountPayload{Seed: 40000, Qty: 0, Avg: 99, Step: 3})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var acct domain.Account
	if err := json.NewDecoder(w.Body).Decode(&acct); err != nil {
		t.Fatalf("decoding account: %v", err)
	}
	if acct.AvgPrice != 0 || acct.Step != 1 {
		t.Errorf("flat account = %+v, want avg 0 and step 1", acct)
	}
}

func TestPutAccountRejectsBadSeed(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})
	w := doRequest(t, s, http.MethodPut, "/api/account", AccountPayload{Seed: -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTradeLifecycle(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	// Selling with no holding conflicts.
	w := doRequest(t, s, http.MethodPost, "/api/trades",
		TradeRequest{Side: domain.SideSell, Price: 105})
	if w.Code != http.StatusConflict {
		t.Fatalf("empty sell status = %d, want 409", w.Code)
	}

	w = doRequest(t, s, http.MethodPost, "/api/trades",
		TradeRequest{Side: domain.SideBuy, Price: 100.85, Qty: 91})
	if w.Code != http.StatusOK {
		t.Fatalf("buy status = %d, body %s", w.Code, w.Body.String())
	}
	var tr TradeResponse
	if err := json.NewDecoder(w.Body).Decode(&tr); err != nil {
		t.Fatalf("decoding trade response: %v", err)
	}
	if tr.Account.Qty != 91 || tr.Account.Step != 2 {
		t.Errorf("account after buy = %+v, want 91 shares at step 2", tr.Account)
	}
	if tr.Trade.Step != 1 {
		t.Errorf("trade step = %d, want the tranche it filled", tr.Trade.Step)
	}

	w = doRequest(t, s, http.MethodPost, "/api/trades",
		TradeRequest{Side: domain.SideSell, Price: 110})
	if w.Code != http.StatusOK {
		t.Fatalf("sell status = %d", w.Code)
	}
	if err := json.NewDecoder(w.Body).Decode(&tr); err != nil {
		t.Fatalf("decoding trade response: %v", err)
	}
	if tr.Account.Qty != 0 || tr.Account.Step != 1 {
		t.Errorf("account after sell = %+v, want flat at step 1", tr.Account)
	}

	w = doRequest(t, s, http.MethodGet, "/api/trades", nil)
	var trades []domain.TradeRecord
	if err := json.NewDecoder(w.Body).Decode(&trades); err != nil {
		t.Fatalf("decoding trades: %v", err)
	}
	if len(trades) != 2 {
		t.Errorf("trade log has %d entries, want 2", len(trades))
	}
}

func TestPostTradeRejectsBadInput(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})

	cases := []struct {
		name string
		req  TradeRequest
	}{
		{"zero price", TradeRequest{Side: domain.SideBuy, Price: 0, Qty: 1}},
		{"zero buy qty", TradeRequest{Side: domain.SideBuy, Price: 100, Qty: 0}},
		{"unknown side", TradeRequest{Side: "HOLD", Price: 100, Qty: 1}},
	}
	for _, tc := range cases {
		if w := doRequest(t, s, http.MethodPost, "/api/trades", tc.req); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, w.Code)
		}
	}
}

func TestHandleBacktest(t *testing.T) {
	// Enough history for the simulator: a gently rising series.
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 30)
	price := 100.0
	for i := range bars {
		bars[i] = domain.Bar{Symbol: "SOXL", Date: start.AddDate(0, 0, i), Close: price}
		price *= 1.005
	}
	s := newTestServer(t, &fakeProvider{bars: bars})

	w := doRequest(t, s, http.MethodGet, "/api/backtest?days=90", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp BacktestResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Days != 90 {
		t.Errorf("Days = %d, want 90", resp.Days)
	}
	if resp.Result == nil || len(resp.Result.Snapshots) == 0 {
		t.Fatal("expected a populated result")
	}
	if resp.Result.Strategy.Days != len(resp.Result.Snapshots) {
		t.Errorf("summary days = %d, snapshots = %d", resp.Result.Strategy.Days, len(resp.Result.Snapshots))
	}
}

func TestHandleBacktestBadDays(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})
	for _, q := range []string{"days=0", "days=-5", "days=abc"} {
		if w := doRequest(t, s, http.MethodGet, "/api/backtest?"+q, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestHandleBacktestShortSeries(t *testing.T) {
	s := newTestServer(t, &fakeProvider{bars: flatThenJump()[:2]})
	w := doRequest(t, s, http.MethodGet, "/api/backtest", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

// Package httpapi serves the dashboard HTTP API: today's limit prices, the
// account document, the trade log, and on-demand backtests.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"locline/internal/backtest"
	"locline/internal/domain"
	"locline/internal/fetch"
	"locline/internal/signal"
	"locline/internal/state"
	"locline/internal/util"
)

// SeriesProvider is the slice of the fetch layer the server needs.
// *fetch.Fetcher implements it.
type SeriesProvider interface {
	Series(ctx context.Context, symbol string, days int, ttl time.Duration) ([]domain.Bar, error)
	LatestRate(ctx context.Context, symbol string, ttl time.Duration) (float64, error)
	Stale(ctx context.Context, symbol string, days int) ([]domain.Bar, bool)
}

// Options configures a Server.
type Options struct {
	Symbol       string
	FXSymbol     string
	Params       domain.StrategyParams
	SignalDays   int
	BacktestDays int
	LiveTTL      time.Duration
	BacktestTTL  time.Duration
}

// Server serves the dashboard HTTP API.
type Server struct {
	provider SeriesProvider
	states   *state.Store
	runner   *backtest.Runner
	clock    *util.SessionClock
	opts     Options
	log      *slog.Logger
}

// NewServer creates a dashboard server. clock may be nil to disable the
// unconfirmed-session gate (used in tests).
func NewServer(provider SeriesProvider, states *state.Store, clock *util.SessionClock, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		provider: provider,
		states:   states,
		runner:   backtest.NewRunner(log),
		clock:    clock,
		opts:     opts,
		log:      log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/signal", s.handleSignal)
	mux.HandleFunc("GET /api/account", s.handleGetAccount)
	mux.HandleFunc("PUT /api/account", s.handlePutAccount)
	mux.HandleFunc("GET /api/trades", s.handleGetTrades)
	mux.HandleFunc("POST /api/trades", s.handlePostTrade)
	mux.HandleFunc("GET /api/backtest", s.handleBacktest)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, kind fetch.ErrorKind) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: msg, Kind: string(kind)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// signalSeries resolves the live close series, degrading to the last-known
// cached series when every fetch path fails.
func (s *Server) signalSeries(ctx context.Context) ([]domain.Bar, bool, error) {
	bars, err := s.provider.Series(ctx, s.opts.Symbol, s.opts.SignalDays, s.opts.LiveTTL)
	if err == nil {
		return bars, false, nil
	}

	if stale, ok := s.provider.Stale(ctx, s.opts.Symbol, s.opts.SignalDays); ok {
		s.log.Warn("live fetch failed, serving stale series",
			"symbol", s.opts.Symbol, "kind", fetch.KindOf(err), "error", err)
		return stale, true, nil
	}
	return nil, false, err
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	bars, stale, err := s.signalSeries(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error(), fetch.KindOf(err))
		return
	}

	dropped := false
	if s.clock != nil {
		bars, dropped = s.clock.ConfirmedBars(bars)
	}
	if len(bars) == 0 {
		writeError(w, http.StatusServiceUnavailable, "no confirmed sessions available", fetch.KindInsufficient)
		return
	}

	acct := s.states.Account()
	quote := signal.Evaluate(s.opts.Params, acct, domain.Closes(bars))

	resp := SignalResponse{
		Symbol:             s.opts.Symbol,
		Quote:              quote,
		DroppedUnconfirmed: dropped,
		Stale:              stale,
		Account:            acct,
		Closes:             pricePoints(bars),
	}

	// FX is display-only; its failure never blocks the signal.
	if s.opts.FXSymbol != "" {
		rate, err := s.provider.LatestRate(ctx, s.opts.FXSymbol, s.opts.LiveTTL)
		if err != nil {
			s.log.Warn("fx rate unavailable", "symbol", s.opts.FXSymbol, "error", err)
		} else {
			resp.FXRate = rate
		}
	}

	writeJSON(w, resp)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.states.Account())
}

func (s *Server) handlePutAccount(w http.ResponseWriter, r *http.Request) {
	var payload AccountPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid account payload", "")
		return
	}
	if payload.Seed <= 0 {
		writeError(w, http.StatusBadRequest, "seed must be positive", "")
		return
	}
	step := payload.Step
	if step < 1 {
		step = 1
	}
	if step > len(s.opts.Params.Weights) {
		step = len(s.opts.Params.Weights)
	}

	acct := domain.Account{
		Seed:     payload.Seed,
		Cash:     payload.Seed - float64(payload.Qty)*payload.Avg,
		Qty:      payload.Qty,
		AvgPrice: payload.Avg,
		Step:     step,
	}
	if acct.Qty == 0 {
		acct.AvgPrice = 0
		acct.Step = 1
	}
	s.states.SetAccount(acct)
	writeJSON(w, acct)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, _ *http.Request) {
	trades := s.states.Trades()
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	writeJSON(w, trades)
}

func (s *Server) handlePostTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade payload", "")
		return
	}
	if req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "price must be positive", "")
		return
	}

	acct := s.states.Account()
	var rec domain.TradeRecord

	switch req.Side {
	case domain.SideBuy:
		if req.Qty <= 0 {
			writeError(w, http.StatusBadRequest, "qty must be positive for a buy", "")
			return
		}
		acct, rec = signal.ApplyBuy(s.opts.Params, acct, req.Price, req.Qty, time.Now().UTC())
	case domain.SideSell:
		if acct.Qty == 0 {
			writeError(w, http.StatusConflict, "nothing to sell", "")
			return
		}
		acct, rec = signal.ApplySell(acct, req.Price, time.Now().UTC())
	default:
		writeError(w, http.StatusBadRequest, "side must be BUY or SELL", "")
		return
	}

	s.states.ApplyTrade(acct, rec)
	writeJSON(w, TradeResponse{Trade: rec, Account: acct})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := s.opts.BacktestDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer", "")
			return
		}
		days = n
	}

	bars, err := s.provider.Series(ctx, s.opts.Symbol, days, s.opts.BacktestTTL)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error(), fetch.KindOf(err))
		return
	}

	seed := s.states.Account().Seed
	result, err := s.runner.Run(ctx, bars, s.opts.Params, seed)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "")
		return
	}

	writeJSON(w, BacktestResponse{Symbol: s.opts.Symbol, Days: days, Result: result})
}

func pricePoints(bars []domain.Bar) []PricePoint {
	out := make([]PricePoint, len(bars))
	for i, b := range bars {
		out[i] = PricePoint{Date: b.Date.Format("2006-01-02"), Close: b.Close}
	}
	return out
}

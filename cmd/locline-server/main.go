package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"locline/internal/config"
	"locline/internal/fetch"
	"locline/internal/httpapi"
	"locline/internal/state"
	"locline/internal/store"
	"locline/internal/util"
)

func main() {
	// Optional .env for credentials; absence is fine.
	_ = godotenv.Load()

	cfgPath := "config/locline.yaml"
	if p := os.Getenv("LOCLINE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("loading config: %v", err)
		}
		cfg = config.Default()
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}

	cache, err := store.NewSQLiteCache(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening close cache: %v", err)
	}
	defer cache.Close()

	fetcher := newFetcher(cfg, cache, logger)
	states := state.NewStore(cfg.Storage.StatePath, logger)

	clock, err := util.NewSessionClock()
	if err != nil {
		log.Fatalf("loading exchange timezone: %v", err)
	}

	srv := httpapi.NewServer(fetcher, states, clock, httpapi.Options{
		Symbol:       cfg.Market.Symbol,
		FXSymbol:     cfg.Market.FXSymbol,
		Params:       cfg.StrategyParams(),
		SignalDays:   cfg.Market.SignalLookbackDays,
		BacktestDays: cfg.Market.BacktestLookbackDays,
		LiveTTL:      time.Duration(cfg.Market.LiveTTLMinutes) * time.Minute,
		BacktestTTL:  time.Duration(cfg.Market.BacktestTTLMinutes) * time.Minute,
	}, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("locline server listening",
			"addr", httpServer.Addr,
			"symbol", cfg.Market.Symbol,
			"primary", cfg.Alpaca.APIKey != "",
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// newFetcher wires the fetch chain: Alpaca primary when credentials are
// configured, chart-API fallback always, sqlite close cache underneath.
func newFetcher(cfg *config.Config, cache store.CloseStore, logger *slog.Logger) *fetch.Fetcher {
	var primary fetch.Source
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		primary = fetch.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	}
	fallback := fetch.NewChartClient(cfg.Market.ChartBaseURL,
		time.Duration(cfg.Market.FetchTimeoutSeconds)*time.Second)

	return fetch.New(primary, fallback, cache, cfg.Strategy.NSigma+2, logger)
}

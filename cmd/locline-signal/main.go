// cmd/locline-signal prints today's LOC limit prices and recommended order
// quantity for the persisted account. Intended for cron or a quick manual
// check without running the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"locline/internal/config"
	"locline/internal/domain"
	"locline/internal/fetch"
	"locline/internal/signal"
	"locline/internal/state"
	"locline/internal/store"
	"locline/internal/util"
)

func main() {
	_ = godotenv.Load()

	symbol := flag.String("symbol", "", "Instrument symbol (default: config)")
	flag.Parse()

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
	if *symbol == "" {
		*symbol = cfg.Market.Symbol
	}

	logger := util.NewLogger("warn", cfg.Logging.Format)
	util.SetDefault(logger)

	var cache store.CloseStore
	if sqlCache, err := store.NewSQLiteCache(cfg.Storage.SQLitePath); err == nil {
		defer sqlCache.Close()
		cache = sqlCache
	}

	var primary fetch.Source
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		primary = fetch.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	}
	fallback := fetch.NewChartClient(cfg.Market.ChartBaseURL,
		time.Duration(cfg.Market.FetchTimeoutSeconds)*time.Second)
	fetcher := fetch.New(primary, fallback, cache, cfg.Strategy.NSigma+2, logger)

	ctx := context.Background()
	bars, err := fetcher.Series(ctx, *symbol, cfg.Market.SignalLookbackDays,
		time.Duration(cfg.Market.LiveTTLMinutes)*time.Minute)
	if err != nil {
		log.Fatalf("fetching %s: %v", *symbol, err)
	}

	clock, err := util.NewSessionClock()
	if err != nil {
		log.Fatalf("loading exchange timezone: %v", err)
	}
	bars, dropped := clock.ConfirmedBars(bars)
	if len(bars) == 0 {
		log.Fatalf("no confirmed sessions available for %s", *symbol)
	}

	acct := state.NewStore(cfg.Storage.StatePath, logger).Account()
	quote := signal.Evaluate(cfg.StrategyParams(), acct, domain.Closes(bars))

	fmt.Printf("%s  ref close %.2f (%s)", *symbol, quote.ReferenceClose,
		bars[len(bars)-1].Date.Format("2006-01-02"))
	if dropped {
		fmt.Print("  [session in progress, last row dropped]")
	}
	fmt.Println()
	fmt.Printf("sigma       %.6f\n", quote.Sigma)
	fmt.Printf("buy  LOC    %.2f  x%d (tranche %d, target $%.2f)\n",
		quote.BuyLimit, quote.BuyQty, acct.Step, quote.TrancheTarget)
	fmt.Printf("sell LOC    %.2f", quote.SellLimit)
	if acct.Qty > 0 {
		fmt.Printf("  x%d (avg %.2f)", acct.Qty, acct.AvgPrice)
	}
	fmt.Println()
}

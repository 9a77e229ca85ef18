// cmd/locline-backtest replays the LOC strategy against historical closes
// and prints a comparison with buy-and-hold, optionally exporting the
// daily snapshot series to Parquet.
//
// Usage:
//
//	locline-backtest -days 365 -seed 37000 -out result.parquet
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"locline/internal/backtest"
	"locline/internal/config"
	"locline/internal/fetch"
	"locline/internal/store"
	"locline/internal/util"
)

func main() {
	_ = godotenv.Load()

	symbol := flag.String("symbol", "", "Instrument symbol (default: config)")
	days := flag.Int("days", 0, "Calendar days of history to replay (default: config)")
	seed := flag.Float64("seed", 0, "Strategy capital (default: config)")
	out := flag.String("out", "", "Optional Parquet output path for the snapshot series")
	verbose := flag.Bool("v", false, "Print every daily snapshot, not just trade days")
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
	if *days == 0 {
		*days = cfg.Market.BacktestLookbackDays
	}
	if *seed == 0 {
		*seed = cfg.Strategy.Seed
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	var cache store.CloseStore
	if sqlCache, err := store.NewSQLiteCache(cfg.Storage.SQLitePath); err == nil {
		defer sqlCache.Close()
		cache = sqlCache
	} else {
		logger.Warn("close cache unavailable, fetching uncached", "error", err)
	}

	var primary fetch.Source
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		primary = fetch.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	}
	fallback := fetch.NewChartClient(cfg.Market.ChartBaseURL,
		time.Duration(cfg.Market.FetchTimeoutSeconds)*time.Second)
	fetcher := fetch.New(primary, fallback, cache, cfg.Strategy.NSigma+2, logger)

	ctx := context.Background()
	bars, err := fetcher.Series(ctx, *symbol, *days,
		time.Duration(cfg.Market.BacktestTTLMinutes)*time.Minute)
	if err != nil {
		log.Fatalf("fetching %s: %v", *symbol, err)
	}

	runner := backtest.NewRunner(logger)
	result, err := runner.Run(ctx, bars, cfg.StrategyParams(), *seed)
	if err != nil {
		log.Fatalf("running backtest: %v", err)
	}

	printResult(*symbol, *seed, result, *verbose)

	if *out != "" {
		if err := store.WriteSnapshots(*out, result.Snapshots); err != nil {
			log.Fatalf("exporting snapshots: %v", err)
		}
		fmt.Printf("\nwrote %d snapshots to %s\n", len(result.Snapshots), *out)
	}
}

func printResult(symbol string, seed float64, result *backtest.Result, verbose bool) {
	fmt.Printf("%s  %d trading days  seed $%.2f\n\n", symbol, len(result.Snapshots), seed)

	for _, snap := range result.Snapshots {
		if !verbose && len(snap.Trades) == 0 {
			continue
		}
		fmt.Printf("%s  close %8.2f  buy %8.2f  sell %8.2f  value %10.2f",
			snap.Date.Format("2006-01-02"), snap.Close, snap.BuyLimit, snap.SellLimit, snap.TotalValue)
		for _, t := range snap.Trades {
			fmt.Printf("  %s %d@%.2f(t%d)", t.Side, t.Qty, t.Price, t.Step)
		}
		fmt.Println()
	}

	fmt.Printf("\n%-16s %12s %12s\n", "", "strategy", "buy&hold")
	row := func(name, format string, s, b float64) {
		fmt.Printf("%-16s %12s %12s\n", name, fmt.Sprintf(format, s), fmt.Sprintf(format, b))
	}
	st, bh := result.Strategy, result.Benchmark
	row("total return", "%.2f%%", st.TotalReturn*100, bh.TotalReturn*100)
	row("cagr", "%.2f%%", st.CAGR*100, bh.CAGR*100)
	row("max drawdown", "%.2f%%", st.MaxDrawdown*100, bh.MaxDrawdown*100)
	row("volatility", "%.2f%%", st.Volatility*100, bh.Volatility*100)
	row("sharpe", "%.2f", st.Sharpe, bh.Sharpe)
	row("win rate", "%.1f%%", st.WinRate*100, bh.WinRate*100)
	fmt.Printf("%-16s %12d %12d\n", "buys", st.Buys, bh.Buys)
	fmt.Printf("%-16s %12d %12d\n", "sells", st.Sells, bh.Sells)
}

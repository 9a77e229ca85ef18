package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"locline/pkg/locline"
)

const version = "0.1.0"

func main() {
	server := flag.String("server", defaultServer(), "locline-server base URL")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: locline-cli [-server URL] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version              Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  signal               Show today's limit prices and order quantity\n")
		fmt.Fprintf(os.Stderr, "  account              Show the account state\n")
		fmt.Fprintf(os.Stderr, "  buy <price> <qty>    Record a buy fill\n")
		fmt.Fprintf(os.Stderr, "  sell <price>         Record a full liquidation\n")
		fmt.Fprintf(os.Stderr, "  backtest [days]      Run a backtest\n")
		fmt.Fprintf(os.Stderr, "\n")
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	client := locline.NewClient(*server)

	switch args[0] {
	case "version":
		fmt.Printf("locline-cli %s\n", version)

	case "signal":
		sig, err := client.Signal(ctx)
		fatalOn(err)
		fmt.Printf("%s  ref %.2f  sigma %.6f\n", sig.Symbol, sig.Quote.ReferenceClose, sig.Quote.Sigma)
		fmt.Printf("buy  LOC %.2f  x%d\n", sig.Quote.BuyLimit, sig.Quote.BuyQty)
		fmt.Printf("sell LOC %.2f\n", sig.Quote.SellLimit)
		if sig.Stale {
			fmt.Println("(stale data: live fetch failed)")
		}

	case "account":
		acct, err := client.Account(ctx)
		fatalOn(err)
		fmt.Printf("seed %.2f  cash %.2f  qty %d  avg %.2f  step %d\n",
			acct.Seed, acct.Cash, acct.Qty, acct.Avg, acct.Step)

	case "buy":
		if len(args) != 3 {
			fatalf("usage: buy <price> <qty>")
		}
		price := parseFloat(args[1])
		qty, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			fatalf("invalid qty %q", args[2])
		}
		res, err := client.AppendTrade(ctx, "BUY", price, qty)
		fatalOn(err)
		fmt.Printf("recorded BUY %d@%.2f  step -> %d\n", res.Trade.Qty, res.Trade.Price, res.Account.Step)

	case "sell":
		if len(args) != 2 {
			fatalf("usage: sell <price>")
		}
		res, err := client.AppendTrade(ctx, "SELL", parseFloat(args[1]), 0)
		fatalOn(err)
		fmt.Printf("recorded SELL %d@%.2f  account reset\n", res.Trade.Qty, res.Trade.Price)

	case "backtest":
		days := 0
		if len(args) > 1 {
			d, err := strconv.Atoi(args[1])
			if err != nil {
				fatalf("invalid days %q", args[1])
			}
			days = d
		}
		bt, err := client.Backtest(ctx, days)
		fatalOn(err)
		st, bh := bt.Result.Strategy, bt.Result.Benchmark
		fmt.Printf("%s over %d days\n", bt.Symbol, bt.Days)
		fmt.Printf("           return      mdd   sharpe\n")
		fmt.Printf("strategy  %6.2f%%  %6.2f%%  %6.2f\n", st.TotalReturn*100, st.MaxDrawdown*100, st.Sharpe)
		fmt.Printf("buy&hold  %6.2f%%  %6.2f%%  %6.2f\n", bh.TotalReturn*100, bh.MaxDrawdown*100, bh.Sharpe)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

func defaultServer() string {
	if v := os.Getenv("LOCLINE_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		fatalf("invalid price %q", s)
	}
	return v
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func fatalOn(err error) {
	if err != nil {
		fatalf("error: %v", err)
	}
}

// Package backtest replays the LOC signal calculator across a historical
// close series, maintaining a simulated account day by day, and derives
// summary performance metrics for the strategy and a buy-and-hold
// benchmark over the same window.
package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"locline/internal/domain"
	"locline/internal/signal"
)

// Result is the full output of a backtest run: the per-day snapshot series
// and the derived summaries.
type Result struct {
	Snapshots []domain.DailySnapshot `json:"snapshots"`
	Strategy  domain.Summary         `json:"strategy"`
	Benchmark domain.Summary         `json:"benchmark"`
}

// Runner drives backtest runs.
type Runner struct {
	log *slog.Logger
}

// NewRunner creates a Runner logging through the given logger.
func NewRunner(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{log: log.With("component", "backtest")}
}

// Run replays the signal calculator over bars with the given parameters,
// starting from a flat account holding seed in cash.
//
// For each simulated day i (from index NSigma forward) the limits are set
// from the closes strictly before day i, consistent with placing a
// limit-on-close order before the session. The sell condition is evaluated
// first and unconditionally: a holding whose close reaches the sell limit
// is fully liquidated at that close, resetting the tranche sequence. The
// buy condition is then evaluated independently against the same close, so
// a full exit can be followed by a tranche-1 re-entry on the same day.
// The simulation ends at the last bar with no forced liquidation.
func (r *Runner) Run(ctx context.Context, bars []domain.Bar, params domain.StrategyParams, seed float64) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if seed <= 0 {
		return nil, fmt.Errorf("seed must be positive, got %v", seed)
	}
	if len(bars) < params.NSigma+2 {
		return nil, fmt.Errorf("need at least %d bars, got %d", params.NSigma+2, len(bars))
	}

	closes := domain.Closes(bars)
	acct := domain.NewAccount(seed)

	res := &Result{
		Snapshots: make([]domain.DailySnapshot, 0, len(bars)-params.NSigma),
	}

	for i := params.NSigma; i < len(bars); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q := signal.Evaluate(params, acct, closes[:i])
		today := bars[i]
		var trades []domain.TradeRecord

		// Sell first: full liquidation at today's close. Fires regardless
		// of how the buy condition evaluates the same day.
		if acct.Qty > 0 && today.Close >= q.SellLimit {
			var rec domain.TradeRecord
			acct, rec = signal.ApplySell(acct, today.Close, today.Date)
			trades = append(trades, rec)
		}

		// Buy: quantity is sized against the buy limit, the fill happens at
		// the close (which the condition guarantees is at or below the
		// limit). The account may have been reset by the sell block above.
		if today.Close <= q.BuyLimit {
			qty := signal.TrancheQty(params, acct, q.BuyLimit)
			if qty > 0 && float64(qty)*today.Close <= acct.Cash {
				var rec domain.TradeRecord
				acct, rec = signal.ApplyBuy(params, acct, today.Close, qty, today.Date)
				trades = append(trades, rec)
			}
		}

		total := acct.Value(today.Close)
		res.Snapshots = append(res.Snapshots, domain.DailySnapshot{
			Date:       today.Date,
			Close:      today.Close,
			BuyLimit:   q.BuyLimit,
			SellLimit:  q.SellLimit,
			Sigma:      q.Sigma,
			Cash:       acct.Cash,
			Qty:        acct.Qty,
			AvgPrice:   acct.AvgPrice,
			Step:       acct.Step,
			TotalValue: total,
			PnLPct:     total/seed - 1,
			Trades:     trades,
		})
	}

	res.Strategy = Summarize(res.Snapshots, seed)
	res.Benchmark = BenchmarkSummary(res.Snapshots, seed)

	r.log.Debug("run complete",
		"days", len(res.Snapshots),
		"buys", res.Strategy.Buys,
		"sells", res.Strategy.Sells,
		"return", res.Strategy.TotalReturn,
	)
	return res, nil
}

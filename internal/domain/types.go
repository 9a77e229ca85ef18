// Package domain defines the core value types shared across locline: price
// bars, strategy parameters, the tranche account state, trade records, and
// backtest output.
package domain

import (
	"fmt"
	"time"
)

// Bar is a single daily observation for an instrument. Only Close is
// guaranteed to be populated; the Alpaca path also fills the OHLCV fields,
// the chart-API fallback does not.
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open,omitempty"`
	High   float64   `json:"high,omitempty"`
	Low    float64   `json:"low,omitempty"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume,omitempty"`
}

// Closes extracts the closing prices from a bar series, in order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// StrategyParams holds the fixed-per-run strategy inputs. Parameters are
// loaded from config once and never re-derived during a run.
type StrategyParams struct {
	// NSigma is the lookback window, in daily returns, for the volatility
	// estimate.
	NSigma int
	// BuyMult and SellMult scale sigma to offset the two limit prices from
	// the reference close. Both are applied with the same sign convention:
	// limit = ref * (1 + mult*sigma).
	BuyMult  float64
	SellMult float64
	// Weights are the relative allocation weights of the sequential entry
	// tranches, e.g. {1, 1, 2}.
	Weights []float64
}

// WeightSum returns the sum of the tranche weights.
func (p StrategyParams) WeightSum() float64 {
	var sum float64
	for _, w := range p.Weights {
		sum += w
	}
	return sum
}

// Validate checks the structural invariants of the parameter set.
func (p StrategyParams) Validate() error {
	if p.NSigma < 1 {
		return fmt.Errorf("n_sigma must be >= 1, got %d", p.NSigma)
	}
	if len(p.Weights) == 0 {
		return fmt.Errorf("weights must not be empty")
	}
	for i, w := range p.Weights {
		if w <= 0 {
			return fmt.Errorf("weight %d must be positive, got %v", i+1, w)
		}
	}
	return nil
}

// Account is the mutable position state the strategy evolves: user-maintained
// across interactive sessions, simulator-maintained across a backtest.
//
// Invariants: Step is in [1, len(Weights)], and a flat account (Qty == 0)
// always has AvgPrice == 0 and Step == 1.
type Account struct {
	// Seed is the total capital allocated to the strategy.
	Seed float64 `json:"seed"`
	// Cash is the uninvested portion of the seed.
	Cash float64 `json:"cash"`
	// Qty is the number of shares currently held, 0 when flat.
	Qty int64 `json:"qty"`
	// AvgPrice is the volume-weighted average entry price, 0 when flat.
	AvgPrice float64 `json:"avg"`
	// Step is the 1-based index of the next entry tranche.
	Step int `json:"step"`
}

// NewAccount returns a flat account holding the full seed in cash.
func NewAccount(seed float64) Account {
	return Account{Seed: seed, Cash: seed, Step: 1}
}

// Invested returns the capital currently deployed, Qty * AvgPrice.
func (a Account) Invested() float64 {
	return float64(a.Qty) * a.AvgPrice
}

// Flat reports whether the account holds no shares.
func (a Account) Flat() bool {
	return a.Qty == 0
}

// Value marks the account at the given price: cash plus holdings.
func (a Account) Value(price float64) float64 {
	return a.Cash + float64(a.Qty)*price
}

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeRecord is an immutable, append-only log entry for an executed trade.
type TradeRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Qty       int64     `json:"qty"`
	// Step is the tranche index at the time of the trade (before any
	// increment or reset caused by the trade itself).
	Step int `json:"step"`
}

// DailySnapshot is one row of a backtest result: the day's inputs, any
// trades, and the account marked at the close.
type DailySnapshot struct {
	Date       time.Time     `json:"date"`
	Close      float64       `json:"close"`
	BuyLimit   float64       `json:"buy_limit"`
	SellLimit  float64       `json:"sell_limit"`
	Sigma      float64       `json:"sigma"`
	Cash       float64       `json:"cash"`
	Qty        int64         `json:"qty"`
	AvgPrice   float64       `json:"avg"`
	Step       int           `json:"step"`
	TotalValue float64       `json:"total_value"`
	PnLPct     float64       `json:"pnl_pct"`
	Trades     []TradeRecord `json:"trades,omitempty"`
}

// Summary holds the performance metrics derived from an equity curve.
type Summary struct {
	TotalReturn float64 `json:"total_return"`
	CAGR        float64 `json:"cagr"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Volatility  float64 `json:"volatility"`
	Sharpe      float64 `json:"sharpe"`
	WinRate     float64 `json:"win_rate"`
	BestDay     float64 `json:"best_day"`
	WorstDay    float64 `json:"worst_day"`
	Buys        int     `json:"buys"`
	Sells       int     `json:"sells"`
	Days        int     `json:"days"`
}

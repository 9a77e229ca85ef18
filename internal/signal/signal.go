// Package signal implements the volatility-scaled LOC order-price
// calculator: given a series of confirmed daily closes and the current
// account state, it produces the day's buy/sell limit prices and the next
// tranche's order quantity. Everything here is a pure function of its
// inputs; callers apply resulting trades to the account explicitly via
// ApplyBuy and ApplySell.
package signal

import (
	"math"
	"time"

	"locline/internal/domain"
)

// SigmaDDOF is the delta-degrees-of-freedom used by the volatility
// estimate: 0 selects the population standard deviation (divide by N).
// Changing it would shift every derived limit price, so it stays fixed to
// keep live limits and historical backtest figures reproducible.
const SigmaDDOF = 0

// Sigma returns the standard deviation of the last nSigma simple daily
// returns of closes, using the SigmaDDOF convention. It returns 0 when
// fewer than nSigma+1 closes are available or any price in the window is
// non-positive; insufficient history silently degrades the limits to the
// reference close rather than raising an error.
func Sigma(closes []float64, nSigma int) float64 {
	if nSigma < 1 || len(closes) < nSigma+1 {
		return 0
	}

	window := closes[len(closes)-nSigma-1:]
	returns := make([]float64, 0, nSigma)
	for i := 1; i < len(window); i++ {
		prev := window[i-1]
		if prev <= 0 {
			return 0
		}
		returns = append(returns, (window[i]-prev)/prev)
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(returns)-SigmaDDOF))
}

// Quote is the point-in-time output of the calculator for one instrument.
type Quote struct {
	// ReferenceClose is the close the limits are offset from: the last
	// confirmed session's close.
	ReferenceClose float64 `json:"reference_close"`
	Sigma          float64 `json:"sigma"`
	BuyLimit       float64 `json:"buy_limit"`
	SellLimit      float64 `json:"sell_limit"`
	// TrancheTarget is the capital allocation of the current tranche.
	TrancheTarget float64 `json:"tranche_target"`
	// BuyQty is the recommended order quantity for the current tranche at
	// BuyLimit, bounded by the uninvested seed. Zero when BuyLimit is not
	// positive or no budget remains.
	BuyQty int64 `json:"buy_qty"`
}

// Evaluate computes the day's quote from the confirmed close series. The
// last element of closes is the reference close; the volatility window is
// the nSigma returns ending at it, so the (still unknown) close the limits
// will be compared against is never part of the estimate.
func Evaluate(p domain.StrategyParams, acct domain.Account, closes []float64) Quote {
	q := Quote{}
	if len(closes) == 0 {
		return q
	}

	ref := closes[len(closes)-1]
	sigma := Sigma(closes, p.NSigma)

	q.ReferenceClose = ref
	q.Sigma = sigma
	q.BuyLimit = ref * (1 + p.BuyMult*sigma)
	q.SellLimit = ref * (1 + p.SellMult*sigma)
	q.TrancheTarget = TrancheTarget(p, acct)
	q.BuyQty = TrancheQty(p, acct, q.BuyLimit)
	return q
}

// TrancheTarget returns the capital allocation of the account's current
// tranche: seed * weight[step] / sum(weights). Step is clamped into the
// weight range, matching its saturating behavior.
func TrancheTarget(p domain.StrategyParams, acct domain.Account) float64 {
	if len(p.Weights) == 0 {
		return 0
	}
	step := acct.Step
	if step < 1 {
		step = 1
	}
	if step > len(p.Weights) {
		step = len(p.Weights)
	}
	return acct.Seed * p.Weights[step-1] / p.WeightSum()
}

// TrancheQty returns the order quantity for the current tranche at the
// given limit price: floor(min(target, seed - invested) / limit). The
// quantity is 0 when the limit is not positive or the budget is exhausted.
func TrancheQty(p domain.StrategyParams, acct domain.Account, limit float64) int64 {
	if limit <= 0 {
		return 0
	}
	budget := TrancheTarget(p, acct)
	if remaining := acct.Seed - acct.Invested(); remaining < budget {
		budget = remaining
	}
	qty := int64(math.Floor(budget / limit))
	if qty < 0 {
		return 0
	}
	return qty
}

// ApplyBuy executes a buy fill against the account: the average entry price
// becomes the volume-weighted average of the existing holding and the new
// shares, cash is debited, and the tranche step advances, saturating at the
// last weight. It returns the updated account and the trade record carrying
// the pre-advance step.
func ApplyBuy(p domain.StrategyParams, acct domain.Account, price float64, qty int64, at time.Time) (domain.Account, domain.TradeRecord) {
	rec := domain.TradeRecord{
		Timestamp: at,
		Side:      domain.SideBuy,
		Price:     price,
		Qty:       qty,
		Step:      acct.Step,
	}

	newQty := acct.Qty + qty
	if newQty > 0 {
		acct.AvgPrice = (float64(acct.Qty)*acct.AvgPrice + float64(qty)*price) / float64(newQty)
	}
	acct.Qty = newQty
	acct.Cash -= float64(qty) * price
	if acct.Step < len(p.Weights) {
		acct.Step++
	}
	return acct, rec
}

// ApplySell executes a full liquidation at the given price: all shares are
// sold, cash is credited, and the account returns to its flat state with
// the tranche sequence reset to 1.
func ApplySell(acct domain.Account, price float64, at time.Time) (domain.Account, domain.TradeRecord) {
	rec := domain.TradeRecord{
		Timestamp: at,
		Side:      domain.SideSell,
		Price:     price,
		Qty:       acct.Qty,
		Step:      acct.Step,
	}

	acct.Cash += float64(acct.Qty) * price
	acct.Qty = 0
	acct.AvgPrice = 0
	acct.Step = 1
	return acct, rec
}

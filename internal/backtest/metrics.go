package backtest

import (
	"math"

	"locline/internal/domain"
)

const (
	// TradingDaysPerYear is the annualization convention for CAGR and
	// volatility.
	TradingDaysPerYear = 252
	// RiskFreeRate is the fixed annual risk-free rate used by the Sharpe
	// ratio.
	RiskFreeRate = 0.04
)

// Summarize aggregates a completed snapshot series into its performance
// summary, including the trade counts recorded along the way.
func Summarize(snaps []domain.DailySnapshot, seed float64) domain.Summary {
	values := make([]float64, len(snaps))
	for i := range snaps {
		values[i] = snaps[i].TotalValue
	}

	s := summarizeEquity(values, seed)
	for i := range snaps {
		for _, t := range snaps[i].Trades {
			switch t.Side {
			case domain.SideBuy:
				s.Buys++
			case domain.SideSell:
				s.Sells++
			}
		}
	}
	return s
}

// BenchmarkSummary computes the buy-and-hold comparison over the same
// window and seed: the full seed is invested at the first snapshot's close
// and never traded again, so the equity curve is the close series scaled
// to the seed. The math is deliberately the same summary function applied
// to close instead of total value.
func BenchmarkSummary(snaps []domain.DailySnapshot, seed float64) domain.Summary {
	if len(snaps) == 0 {
		return domain.Summary{}
	}
	first := snaps[0].Close
	if first <= 0 {
		return domain.Summary{}
	}

	values := make([]float64, len(snaps))
	for i := range snaps {
		values[i] = seed * snaps[i].Close / first
	}
	return summarizeEquity(values, seed)
}

// summarizeEquity derives the metrics from a daily equity curve against the
// initial seed. Daily changes are measured between consecutive values; the
// drawdown peak expands over the observed values only, so the measure is
// free of look-ahead.
func summarizeEquity(values []float64, seed float64) domain.Summary {
	s := domain.Summary{Days: len(values)}
	if len(values) == 0 || seed <= 0 {
		return s
	}

	final := values[len(values)-1]
	s.TotalReturn = final/seed - 1

	// CAGR under the 252-day convention, degenerating to the total return
	// for an empty window.
	if s.Days > 0 && final > 0 {
		s.CAGR = math.Pow(final/seed, TradingDaysPerYear/float64(s.Days)) - 1
	} else {
		s.CAGR = s.TotalReturn
	}

	// Max drawdown over the expanding peak. Never positive.
	peak := values[0]
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (v - peak) / peak; dd < s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
	}

	// Daily percentage changes between consecutive values.
	changes := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		changes = append(changes, values[i]/values[i-1]-1)
	}

	if len(changes) > 0 {
		s.BestDay = changes[0]
		s.WorstDay = changes[0]
		var mean float64
		wins := 0
		for _, c := range changes {
			mean += c
			if c > 0 {
				wins++
			}
			if c > s.BestDay {
				s.BestDay = c
			}
			if c < s.WorstDay {
				s.WorstDay = c
			}
		}
		mean /= float64(len(changes))

		var ss float64
		for _, c := range changes {
			d := c - mean
			ss += d * d
		}
		// Population convention, same as the signal sigma.
		s.Volatility = math.Sqrt(ss/float64(len(changes))) * math.Sqrt(TradingDaysPerYear)
		s.WinRate = float64(wins) / float64(len(changes))
	}

	if s.Volatility != 0 {
		s.Sharpe = (s.CAGR - RiskFreeRate) / s.Volatility
	}
	return s
}

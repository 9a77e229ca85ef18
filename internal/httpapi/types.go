package httpapi

import (
	"locline/internal/backtest"
	"locline/internal/domain"
	"locline/internal/signal"
)

// PricePoint is one chart row: a date and its close.
type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// SignalResponse is the payload of GET /api/signal: today's quote, the
// account it was sized for, and the recent closes with the guide lines.
type SignalResponse struct {
	Symbol string       `json:"symbol"`
	Quote  signal.Quote `json:"quote"`
	// DroppedUnconfirmed reports that the provider's last row belonged to a
	// session that had not yet closed and was excluded from the reference.
	DroppedUnconfirmed bool `json:"dropped_unconfirmed"`
	// Stale reports that every live fetch path failed and the series came
	// from the last-known cache.
	Stale   bool           `json:"stale"`
	FXRate  float64        `json:"fx_rate,omitempty"`
	Account domain.Account `json:"account"`
	Closes  []PricePoint   `json:"closes"`
}

// AccountPayload is the body of PUT /api/account.
type AccountPayload struct {
	Seed float64 `json:"seed"`
	Qty  int64   `json:"qty"`
	Avg  float64 `json:"avg"`
	Step int     `json:"step"`
}

// TradeRequest is the body of POST /api/trades. A SELL liquidates the full
// holding; Qty is only consulted for buys.
type TradeRequest struct {
	Side  domain.Side `json:"side"`
	Price float64     `json:"price"`
	Qty   int64       `json:"qty"`
}

// TradeResponse returns the applied record and the updated account.
type TradeResponse struct {
	Trade   domain.TradeRecord `json:"trade"`
	Account domain.Account     `json:"account"`
}

// BacktestResponse is the payload of GET /api/backtest.
type BacktestResponse struct {
	Symbol string           `json:"symbol"`
	Days   int              `json:"days"`
	Result *backtest.Result `json:"result"`
}

// errorBody carries the failure kind so clients can distinguish "market
// data unavailable" from "bad request" programmatically.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Package locline provides a Go client for the locline-server API. The
// payload types mirror the server's JSON so the package stays importable
// outside this module.
package locline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Quote mirrors the server's signal quote payload.
type Quote struct {
	ReferenceClose float64 `json:"reference_close"`
	Sigma          float64 `json:"sigma"`
	BuyLimit       float64 `json:"buy_limit"`
	SellLimit      float64 `json:"sell_limit"`
	TrancheTarget  float64 `json:"tranche_target"`
	BuyQty         int64   `json:"buy_qty"`
}

// Account mirrors the server's account payload.
type Account struct {
	Seed float64 `json:"seed"`
	Cash float64 `json:"cash"`
	Qty  int64   `json:"qty"`
	Avg  float64 `json:"avg"`
	Step int     `json:"step"`
}

// Trade mirrors one trade log entry.
type Trade struct {
	Timestamp time.Time `json:"timestamp"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Qty       int64     `json:"qty"`
	Step      int       `json:"step"`
}

// PricePoint is one chart row.
type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// Signal is the response of GET /api/signal.
type Signal struct {
	Symbol             string       `json:"symbol"`
	Quote              Quote        `json:"quote"`
	DroppedUnconfirmed bool         `json:"dropped_unconfirmed"`
	Stale              bool         `json:"stale"`
	FXRate             float64      `json:"fx_rate"`
	Account            Account      `json:"account"`
	Closes             []PricePoint `json:"closes"`
}

// Summary mirrors the server's performance summary.
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

// Backtest is the response of GET /api/backtest.
type Backtest struct {
	Symbol string `json:"symbol"`
	Days   int    `json:"days"`
	Result struct {
		Strategy  Summary `json:"strategy"`
		Benchmark Summary `json:"benchmark"`
	} `json:"result"`
}

// TradeResult is the response of POST /api/trades.
type TradeResult struct {
	Trade   Trade   `json:"trade"`
	Account Account `json:"account"`
}

// Client talks to a locline-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client against baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	return c.get(ctx, "/api/health", &out)
}

// Signal retrieves today's quote, account, and chart series.
func (c *Client) Signal(ctx context.Context) (*Signal, error) {
	var out Signal
	if err := c.get(ctx, "/api/signal", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Account retrieves the current account state.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	var out Account
	if err := c.get(ctx, "/api/account", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetAccount replaces the account's seed/qty/avg/step.
func (c *Client) SetAccount(ctx context.Context, a Account) (*Account, error) {
	var out Account
	if err := c.do(ctx, http.MethodPut, "/api/account", a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trades retrieves the trade log.
func (c *Client) Trades(ctx context.Context) ([]Trade, error) {
	var out []Trade
	if err := c.get(ctx, "/api/trades", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendTrade records a trade. Side is "BUY" or "SELL"; qty is ignored for
// sells, which liquidate the full holding.
func (c *Client) AppendTrade(ctx context.Context, side string, price float64, qty int64) (*TradeResult, error) {
	body := map[string]any{"side": side, "price": price, "qty": qty}
	var out TradeResult
	if err := c.do(ctx, http.MethodPost, "/api/trades", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Backtest runs a backtest over the last days calendar days (0 uses the
// server default).
func (c *Client) Backtest(ctx context.Context, days int) (*Backtest, error) {
	path := "/api/backtest"
	if days > 0 {
		path = fmt.Sprintf("%s?days=%d", path, days)
	}
	var out Backtest
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Error, resp.Status)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

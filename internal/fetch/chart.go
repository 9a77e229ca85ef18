package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"locline/internal/domain"
)

// DefaultChartBaseURL is the public chart-API host used when the config
// does not override it.
const DefaultChartBaseURL = "https://query1.finance.yahoo.com"

// ChartClient fetches daily closes from the chart-API REST endpoint. It is
// the automatic fallback for the equity symbol and the only path for FX
// pairs, which the equities feed does not serve.
type ChartClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewChartClient creates a ChartClient against baseURL with the given
// request timeout.
func NewChartClient(baseURL string, timeout time.Duration) *ChartClient {
	if baseURL == "" {
		baseURL = DefaultChartBaseURL
	}
	return &ChartClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// chartResponse mirrors the nested provider JSON:
// chart.result[0].timestamp and chart.result[0].indicators.quote[0].close.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// DailyCloses fetches daily closing prices for symbol over [start, end].
// Rows with a missing close (half-settled sessions) are dropped rather
// than interpolated.
func (c *ChartClient) DailyCloses(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		c.baseURL, url.PathEscape(symbol), start.Unix(), end.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, newError(KindUnavailable, symbol, err)
	}
	// The chart endpoint rejects the default Go user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; locline/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, newError(KindTimeout, symbol, err)
		}
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return nil, newError(KindTimeout, symbol, err)
		}
		return nil, newError(KindUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newError(KindRateLimited, symbol, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, newError(KindUnavailable, symbol, fmt.Errorf("status %d", resp.StatusCode))
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, newError(KindMalformed, symbol, err)
	}
	if body.Chart.Error != nil {
		return nil, newError(KindUnavailable, symbol,
			fmt.Errorf("%s: %s", body.Chart.Error.Code, body.Chart.Error.Description))
	}
	if len(body.Chart.Result) == 0 || len(body.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, newError(KindMalformed, symbol, fmt.Errorf("empty chart result"))
	}

	result := body.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	if len(result.Timestamp) != len(quote.Close) {
		return nil, newError(KindMalformed, symbol,
			fmt.Errorf("timestamp/close length mismatch: %d vs %d", len(result.Timestamp), len(quote.Close)))
	}

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if quote.Close[i] == nil {
			continue // Incomplete row.
		}
		t := time.Unix(ts, 0).UTC()
		bars = append(bars, domain.Bar{
			Symbol: symbol,
			Date:   time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			Close:  *quote.Close[i],
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

package fetch

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"locline/internal/domain"
)

// AlpacaSource fetches daily bars from the Alpaca market-data API. It is
// the primary source for the traded instrument when credentials are
// configured.
type AlpacaSource struct {
	client *marketdata.Client
	feed   marketdata.Feed
}

// NewAlpacaSource creates an AlpacaSource with the given credentials. An
// empty dataURL keeps the SDK default endpoint.
func NewAlpacaSource(apiKey, apiSecret, dataURL string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaSource{
		client: marketdata.NewClient(opts),
		feed:   marketdata.IEX,
	}
}

// DailyCloses fetches daily bars for symbol over [start, end].
func (s *AlpacaSource) DailyCloses(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(KindTimeout, symbol, err)
	}

	alpacaBars, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      s.feed,
	})
	if err != nil {
		return nil, newError(KindUnavailable, symbol, err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		t := ab.Timestamp.UTC()
		bars = append(bars, domain.Bar{
			Symbol: symbol,
			Date:   time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			Open:   ab.Open,
			High:   ab.High,
			Low:    ab.Low,
			Close:  ab.Close,
			Volume: int64(ab.Volume),
		})
	}
	return bars, nil
}

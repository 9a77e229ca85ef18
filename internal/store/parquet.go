package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"locline/internal/domain"
)

// SnapshotRecord is the Parquet schema for one backtest day.
type SnapshotRecord struct {
	Date       string  `parquet:"date"`
	Close      float64 `parquet:"close"`
	BuyLimit   float64 `parquet:"buy_limit"`
	SellLimit  float64 `parquet:"sell_limit"`
	Sigma      float64 `parquet:"sigma"`
	Cash       float64 `parquet:"cash"`
	Qty        int64   `parquet:"qty"`
	AvgPrice   float64 `parquet:"avg_price"`
	Step       int32   `parquet:"step"`
	TotalValue float64 `parquet:"total_value"`
	PnLPct     float64 `parquet:"pnl_pct"`
	// Trades is a human-readable summary of the day's fills, e.g.
	// "BUY 91@100.85; SELL 91@103.20", empty on no-trade days.
	Trades string `parquet:"trades"`
}

// WriteSnapshots exports a backtest snapshot series to a Parquet file at
// path, creating parent directories as needed.
func WriteSnapshots(path string, snaps []domain.DailySnapshot) error {
	records := make([]SnapshotRecord, len(snaps))
	for i, s := range snaps {
		records[i] = SnapshotRecord{
			Date:       s.Date.Format("2006-01-02"),
			Close:      s.Close,
			BuyLimit:   s.BuyLimit,
			SellLimit:  s.SellLimit,
			Sigma:      s.Sigma,
			Cash:       s.Cash,
			Qty:        s.Qty,
			AvgPrice:   s.AvgPrice,
			Step:       int32(s.Step),
			TotalValue: s.TotalValue,
			PnLPct:     s.PnLPct,
			Trades:     formatTrades(s.Trades),
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing snapshots: %w", err)
	}
	return nil
}

// ReadSnapshots loads a previously exported snapshot series.
func ReadSnapshots(path string) ([]domain.DailySnapshot, error) {
	records, err := parquet.ReadFile[SnapshotRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshots: %w", err)
	}

	snaps := make([]domain.DailySnapshot, len(records))
	for i, r := range records {
		date, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			return nil, fmt.Errorf("parsing snapshot date %q: %w", r.Date, err)
		}
		snaps[i] = domain.DailySnapshot{
			Date:       date,
			Close:      r.Close,
			BuyLimit:   r.BuyLimit,
			SellLimit:  r.SellLimit,
			Sigma:      r.Sigma,
			Cash:       r.Cash,
			Qty:        r.Qty,
			AvgPrice:   r.AvgPrice,
			Step:       int(r.Step),
			TotalValue: r.TotalValue,
			PnLPct:     r.PnLPct,
		}
	}
	return snaps, nil
}

func formatTrades(trades []domain.TradeRecord) string {
	if len(trades) == 0 {
		return ""
	}
	parts := make([]string, len(trades))
	for i, t := range trades {
		parts[i] = fmt.Sprintf("%s %d@%.2f", t.Side, t.Qty, t.Price)
	}
	return strings.Join(parts, "; ")
}

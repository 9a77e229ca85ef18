package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"locline/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for locline.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
	Market   Market   `yaml:"market"`
	Strategy Strategy `yaml:"strategy"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	StatePath  string `yaml:"state_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the primary market-data API.
// Empty credentials disable the primary source; every fetch then uses the
// chart-API fallback.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Market configures which instruments are fetched and how.
type Market struct {
	// Symbol is the traded leveraged ETF.
	Symbol string `yaml:"symbol"`
	// FXSymbol is the conversion pair used for local-currency display,
	// chart-API notation (e.g. "KRW=X"). Empty disables FX display.
	FXSymbol string `yaml:"fx_symbol"`
	// ChartBaseURL overrides the fallback chart-API host.
	ChartBaseURL string `yaml:"chart_base_url"`
	// SignalLookbackDays and BacktestLookbackDays are the calendar-day
	// fetch windows for the two use cases.
	SignalLookbackDays   int `yaml:"signal_lookback_days"`
	BacktestLookbackDays int `yaml:"backtest_lookback_days"`
	// LiveTTLMinutes and BacktestTTLMinutes bound redundant fetches.
	LiveTTLMinutes     int `yaml:"live_ttl_minutes"`
	BacktestTTLMinutes int `yaml:"backtest_ttl_minutes"`
	// FetchTimeoutSeconds is the per-request HTTP timeout.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
}

// Strategy holds the order-price and tranche parameters. These are fixed
// per run; nothing re-derives them.
type Strategy struct {
	NSigma   int       `yaml:"n_sigma"`
	BuyMult  float64   `yaml:"buy_mult"`
	SellMult float64   `yaml:"sell_mult"`
	Weights  []float64 `yaml:"weights"`
	Seed     float64   `yaml:"seed"`
}

// StrategyParams converts the strategy section into the domain parameter
// set consumed by the calculator and the simulator.
func (c *Config) StrategyParams() domain.StrategyParams {
	return domain.StrategyParams{
		NSigma:   c.Strategy.NSigma,
		BuyMult:  c.Strategy.BuyMult,
		SellMult: c.Strategy.SellMult,
		Weights:  c.Strategy.Weights,
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// defaults for anything unset, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/locline.db"
	}
	if cfg.Storage.StatePath == "" {
		cfg.Storage.StatePath = "data/account.json"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Market.Symbol == "" {
		cfg.Market.Symbol = "SOXL"
	}
	if cfg.Market.FXSymbol == "" {
		cfg.Market.FXSymbol = "KRW=X"
	}
	if cfg.Market.SignalLookbackDays == 0 {
		cfg.Market.SignalLookbackDays = 60
	}
	if cfg.Market.BacktestLookbackDays == 0 {
		cfg.Market.BacktestLookbackDays = 365
	}
	if cfg.Market.LiveTTLMinutes == 0 {
		cfg.Market.LiveTTLMinutes = 10
	}
	if cfg.Market.BacktestTTLMinutes == 0 {
		cfg.Market.BacktestTTLMinutes = 60
	}
	if cfg.Market.FetchTimeoutSeconds == 0 {
		cfg.Market.FetchTimeoutSeconds = 10
	}
	if cfg.Strategy.NSigma == 0 {
		cfg.Strategy.NSigma = 20
	}
	if cfg.Strategy.BuyMult == 0 {
		cfg.Strategy.BuyMult = 0.85
	}
	if cfg.Strategy.SellMult == 0 {
		cfg.Strategy.SellMult = 2.2
	}
	if len(cfg.Strategy.Weights) == 0 {
		cfg.Strategy.Weights = []float64{1, 1, 2}
	}
	if cfg.Strategy.Seed == 0 {
		cfg.Strategy.Seed = 37000
	}
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("STATE_PATH"); v != "" {
		cfg.Storage.StatePath = v
	}

	if v := os.Getenv("LOCLINE_SYMBOL"); v != "" {
		cfg.Market.Symbol = v
	}
	if v := os.Getenv("LOCLINE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Canonical Alpaca env vars win over everything else, matching what
	// the SDK itself reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Package config defines all configuration for the latency-arbitrage
// signal agent. Config is loaded from a YAML file (default:
// configs/config.yaml) with sensitive fields overridable via POLY_*
// environment variables and the agent's own operating parameters
// overridable via SPOT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML
// file structure.
type Config struct {
	DryRun    bool             `mapstructure:"dry_run"`
	Wallet    WalletConfig     `mapstructure:"wallet"`
	Spot      SpotConfig       `mapstructure:"spot"`
	RefPrice  RefPriceConfig   `mapstructure:"reference_price"`
	Market    MarketConfig     `mapstructure:"prediction_market"`
	CLOB      CLOBConfig       `mapstructure:"clob"`
	Signal    SignalConfig     `mapstructure:"signal"`
	Risk      RiskConfig       `mapstructure:"risk"`
	Store     StoreConfig      `mapstructure:"store"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Dashboard DashboardConfig  `mapstructure:"dashboard"`
}

// WalletConfig holds the Polymarket L2 credentials used to sign
// authenticated CLOB requests. Unlike the teacher's market maker, this
// agent never derives L2 credentials from an L1 private key — it is
// handed a pre-provisioned API key/secret/passphrase and a wallet
// address to attach to requests.
type WalletConfig struct {
	Address    string `mapstructure:"address"`
	APIKey     string `mapstructure:"api_key"`
	Secret     string `mapstructure:"secret"`
	Passphrase string `mapstructure:"passphrase"`
}

// SpotConfig points at the spot exchange's order-book snapshot REST
// endpoint and diff-stream websocket endpoint (spec.md §4.1/§6).
type SpotConfig struct {
	Symbol      string `mapstructure:"symbol"`
	SnapshotURL string `mapstructure:"snapshot_url"`
	StreamURL   string `mapstructure:"stream_url"`
}

// RefPriceConfig points at the independent reference-price websocket
// feed (spec.md §4.2/§6).
type RefPriceConfig struct {
	StreamURL string `mapstructure:"stream_url"`
}

// MarketConfig configures prediction-market discovery, target-price
// scraping, and the quote stream (spec.md §4.3).
type MarketConfig struct {
	CatalogBaseURL  string     `mapstructure:"catalog_base_url"`
	SlugPrefix      string     `mapstructure:"slug_prefix"`
	StreamURL       string     `mapstructure:"stream_url"`
	ScrapeSanityMin float64    `mapstructure:"scrape_sanity_min"`
	ScrapeSanityMax float64    `mapstructure:"scrape_sanity_max"`
}

// CLOBConfig points at the order-submission API (spec.md §4.5/§6).
type CLOBConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SignalConfig holds the decision-table thresholds of spec.md §4.4.
type SignalConfig struct {
	Tau1                 float64       `mapstructure:"tau1"`
	Tau3                 float64       `mapstructure:"tau3"`
	StalenessThreshold   time.Duration `mapstructure:"staleness_threshold"`
	MinConfidence        float64       `mapstructure:"min_confidence"`
}

// RiskConfig sets the static bounds the operator-mutated TradeConfig
// may never exceed (spec.md §4.5, §3 "Trading configuration state").
type RiskConfig struct {
	MaxSize               float64       `mapstructure:"max_size"`
	MaxSpread             float64       `mapstructure:"max_spread"`
	StaleQuoteThreshold   time.Duration `mapstructure:"stale_quote_threshold"`
	InitialOrderSize      float64       `mapstructure:"initial_order_size"`
	InitialMaxPriceUp     float64       `mapstructure:"initial_max_price_up"`
	InitialMaxPriceDown   float64       `mapstructure:"initial_max_price_down"`
	Mode                  string        `mapstructure:"mode"` // "dry_run" or "live"
}

// StoreConfig sets where the operator-mutated trading configuration is
// persisted (JSON file).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the HTTP/WS collaborator surface
// (internal/api).
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use POLY_* env vars: POLY_WALLET_ADDRESS,
// POLY_API_KEY, POLY_API_SECRET, POLY_PASSPHRASE. Operating parameters
// use SPOT_* env vars via viper's automatic env binding.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if addr := os.Getenv("POLY_WALLET_ADDRESS"); addr != "" {
		cfg.Wallet.Address = addr
	}
	if key := os.Getenv("POLY_API_KEY"); key != "" {
		cfg.Wallet.APIKey = key
	}
	if secret := os.Getenv("POLY_API_SECRET"); secret != "" {
		cfg.Wallet.Secret = secret
	}
	if pass := os.Getenv("POLY_PASSPHRASE"); pass != "" {
		cfg.Wallet.Passphrase = pass
	}
	if v := os.Getenv("SPOT_DRY_RUN"); v == "true" || v == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Spot.SnapshotURL == "" {
		return fmt.Errorf("spot.snapshot_url is required")
	}
	if c.Spot.StreamURL == "" {
		return fmt.Errorf("spot.stream_url is required")
	}
	if c.RefPrice.StreamURL == "" {
		return fmt.Errorf("reference_price.stream_url is required")
	}
	if c.Market.CatalogBaseURL == "" {
		return fmt.Errorf("prediction_market.catalog_base_url is required")
	}
	if c.Market.SlugPrefix == "" {
		return fmt.Errorf("prediction_market.slug_prefix is required")
	}
	if c.Market.StreamURL == "" {
		return fmt.Errorf("prediction_market.stream_url is required")
	}
	if c.Market.ScrapeSanityMin <= 0 || c.Market.ScrapeSanityMax <= c.Market.ScrapeSanityMin {
		return fmt.Errorf("prediction_market.scrape_sanity_min/max must describe a positive, non-empty range")
	}
	if c.CLOB.BaseURL == "" {
		return fmt.Errorf("clob.base_url is required")
	}
	if c.Signal.Tau1 <= 0 || c.Signal.Tau3 <= 0 {
		return fmt.Errorf("signal.tau1 and signal.tau3 must be > 0")
	}
	if c.Signal.MinConfidence <= 0 {
		return fmt.Errorf("signal.min_confidence must be > 0")
	}
	if c.Risk.MaxSize <= 0 {
		return fmt.Errorf("risk.max_size must be > 0")
	}
	if c.Risk.MaxSpread <= 0 {
		return fmt.Errorf("risk.max_spread must be > 0")
	}
	if c.Risk.Mode != "dry_run" && c.Risk.Mode != "live" {
		return fmt.Errorf("risk.mode must be one of: dry_run, live")
	}
	if c.Risk.Mode == "live" {
		if c.Wallet.Address == "" {
			return fmt.Errorf("wallet.address is required (set POLY_WALLET_ADDRESS) when risk.mode is live")
		}
		if c.Wallet.APIKey == "" || c.Wallet.Secret == "" || c.Wallet.Passphrase == "" {
			return fmt.Errorf("wallet.api_key/secret/passphrase are required (set POLY_API_KEY/POLY_API_SECRET/POLY_PASSPHRASE) when risk.mode is live")
		}
	}
	return nil
}

// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported price providers
const (
	ProviderCoinGecko     = "coingecko"
	ProviderBinance       = "binance"
	ProviderBinanceStream = "binance_stream"
	ProviderStatic        = "static"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Risk        RiskConfig        `yaml:"risk"`
	PriceSource PriceSourceConfig `yaml:"price_source"`
	System      SystemConfig      `yaml:"system"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Watch       WatchConfig       `yaml:"watch"`
	Alerts      AlertConfig       `yaml:"alerts"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name           string  `yaml:"name"`
	StatePath      string  `yaml:"state_path" validate:"required"` // SQLite file; ":memory:" keeps state in-process
	InitialBalance float64 `yaml:"initial_balance" validate:"min=0"`
	QuoteAsset     string  `yaml:"quote_asset"`
}

// LeverageTier maps leverage up to MaxLeverage onto a maintenance margin rate
type LeverageTier struct {
	MaxLeverage int     `yaml:"max_leverage"`
	MMR         float64 `yaml:"mmr"`
}

// RiskConfig contains risk engine settings
type RiskConfig struct {
	MaxLeverage     int                `yaml:"max_leverage" validate:"min=1,max=200"`
	DefaultRiskPct  float64            `yaml:"default_risk_pct" validate:"gt=0,lte=1"`
	LeverageTiers   []LeverageTier     `yaml:"leverage_tiers"`
	SymbolMMR       map[string]float64 `yaml:"symbol_mmr"`
	RebalanceOnTick bool               `yaml:"rebalance_on_tick"`
}

// PriceSourceConfig contains market data settings
type PriceSourceConfig struct {
	Provider           string             `yaml:"provider" validate:"oneof=coingecko binance binance_stream static"`
	BaseURL            string             `yaml:"base_url"`
	FuturesURL         string             `yaml:"futures_url"` // Binance USD-M REST endpoint
	StreamURL          string             `yaml:"stream_url"`
	APIKey             Secret             `yaml:"api_key"`
	TimeoutMs          int                `yaml:"timeout_ms" validate:"min=100,max=60000"`
	RateLimitPerMinute int                `yaml:"rate_limit_per_minute" validate:"min=1"`
	StaleAfterSeconds  int                `yaml:"stale_after_seconds" validate:"min=1"`
	StaticPrices       map[string]float64 `yaml:"static_prices"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	StressPoolSize   int `yaml:"stress_pool_size" validate:"min=1,max=100"`
	StressPoolBuffer int `yaml:"stress_pool_buffer" validate:"min=1,max=10000"`
}

// WatchConfig drives the periodic valuation loop
type WatchConfig struct {
	IntervalSeconds int       `yaml:"interval_seconds" validate:"min=1,max=3600"`
	Shocks          []float64 `yaml:"shocks"` // fractional moves, e.g. -0.1
}

// AlertConfig configures liquidation notifications sent by the watch loop.
// A channel with no credentials is skipped.
type AlertConfig struct {
	SlackWebhookURL    Secret  `yaml:"slack_webhook_url"`
	TelegramBotToken   Secret  `yaml:"telegram_bot_token"`
	TelegramChatID     string  `yaml:"telegram_chat_id"`
	TelegramAPIURL     string  `yaml:"telegram_api_url"`
	LiquidationWarnPct float64 `yaml:"liquidation_warn_pct" validate:"min=0,max=100"` // 0 disables proximity warnings
}

// Enabled reports whether any channel is configured
func (a AlertConfig) Enabled() bool {
	return a.SlackWebhookURL != "" || (a.TelegramBotToken != "" && a.TelegramChatID != "")
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion.
// Fields absent from the file keep their DefaultConfig values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	for _, validate := range []func() error{
		c.validateAppConfig,
		c.validateRiskConfig,
		c.validatePriceSourceConfig,
		c.validateSystemConfig,
		c.validateTelemetryConfig,
		c.validateConcurrencyConfig,
		c.validateWatchConfig,
		c.validateAlertConfig,
	} {
		if err := validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	if c.App.StatePath == "" {
		return ValidationError{Field: "app.state_path", Message: "state path is required"}
	}
	if c.App.InitialBalance < 0 {
		return ValidationError{Field: "app.initial_balance", Value: c.App.InitialBalance, Message: "must not be negative"}
	}
	return nil
}

func (c *Config) validateRiskConfig() error {
	r := c.Risk
	if r.MaxLeverage < 1 || r.MaxLeverage > 200 {
		return ValidationError{Field: "risk.max_leverage", Value: r.MaxLeverage, Message: "must be between 1 and 200"}
	}
	if r.DefaultRiskPct <= 0 || r.DefaultRiskPct > 1 {
		return ValidationError{Field: "risk.default_risk_pct", Value: r.DefaultRiskPct, Message: "must be in (0, 1]"}
	}
	if len(r.LeverageTiers) == 0 {
		return ValidationError{Field: "risk.leverage_tiers", Message: "at least one tier is required"}
	}

	prev := 0
	for i, tier := range r.LeverageTiers {
		field := fmt.Sprintf("risk.leverage_tiers[%d]", i)
		if tier.MaxLeverage <= prev {
			return ValidationError{Field: field + ".max_leverage", Value: tier.MaxLeverage, Message: "tiers must be sorted by strictly increasing leverage"}
		}
		if tier.MMR <= 0 || tier.MMR >= 1 {
			return ValidationError{Field: field + ".mmr", Value: tier.MMR, Message: "must be in (0, 1)"}
		}
		prev = tier.MaxLeverage
	}
	if prev < r.MaxLeverage {
		return ValidationError{Field: "risk.leverage_tiers", Value: prev, Message: fmt.Sprintf("highest tier must cover max_leverage %d", r.MaxLeverage)}
	}

	for sym, mmr := range r.SymbolMMR {
		if mmr <= 0 || mmr >= 1 {
			return ValidationError{Field: "risk.symbol_mmr." + sym, Value: mmr, Message: "must be in (0, 1)"}
		}
	}
	return nil
}

func (c *Config) validatePriceSourceConfig() error {
	p := c.PriceSource
	valid := []string{ProviderCoinGecko, ProviderBinance, ProviderBinanceStream, ProviderStatic}
	if !contains(valid, p.Provider) {
		return ValidationError{Field: "price_source.provider", Value: p.Provider, Message: fmt.Sprintf("must be one of: %s", strings.Join(valid, ", "))}
	}
	if p.TimeoutMs < 100 || p.TimeoutMs > 60000 {
		return ValidationError{Field: "price_source.timeout_ms", Value: p.TimeoutMs, Message: "must be between 100 and 60000"}
	}
	if p.RateLimitPerMinute < 1 {
		return ValidationError{Field: "price_source.rate_limit_per_minute", Value: p.RateLimitPerMinute, Message: "must be positive"}
	}
	if p.StaleAfterSeconds < 1 {
		return ValidationError{Field: "price_source.stale_after_seconds", Value: p.StaleAfterSeconds, Message: "must be positive"}
	}

	switch p.Provider {
	case ProviderCoinGecko:
		if p.BaseURL == "" {
			return ValidationError{Field: "price_source.base_url", Message: "required for coingecko"}
		}
	case ProviderBinance:
		if p.FuturesURL == "" {
			return ValidationError{Field: "price_source.futures_url", Message: "required for binance"}
		}
	case ProviderBinanceStream:
		if p.StreamURL == "" {
			return ValidationError{Field: "price_source.stream_url", Message: "required for binance_stream"}
		}
	case ProviderStatic:
		for sym, price := range p.StaticPrices {
			if price <= 0 {
				return ValidationError{Field: "price_source.static_prices." + sym, Value: price, Message: "must be positive"}
			}
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateTelemetryConfig() error {
	if c.Telemetry.EnableMetrics && (c.Telemetry.MetricsPort < 1 || c.Telemetry.MetricsPort > 65535) {
		return ValidationError{Field: "telemetry.metrics_port", Value: c.Telemetry.MetricsPort, Message: "must be a valid port when metrics are enabled"}
	}
	return nil
}

func (c *Config) validateConcurrencyConfig() error {
	if c.Concurrency.StressPoolSize < 1 || c.Concurrency.StressPoolSize > 100 {
		return ValidationError{Field: "concurrency.stress_pool_size", Value: c.Concurrency.StressPoolSize, Message: "must be between 1 and 100"}
	}
	if c.Concurrency.StressPoolBuffer < 1 || c.Concurrency.StressPoolBuffer > 10000 {
		return ValidationError{Field: "concurrency.stress_pool_buffer", Value: c.Concurrency.StressPoolBuffer, Message: "must be between 1 and 10000"}
	}
	return nil
}

func (c *Config) validateWatchConfig() error {
	if c.Watch.IntervalSeconds < 1 || c.Watch.IntervalSeconds > 3600 {
		return ValidationError{Field: "watch.interval_seconds", Value: c.Watch.IntervalSeconds, Message: "must be between 1 and 3600"}
	}
	for i, shock := range c.Watch.Shocks {
		if shock <= -1 {
			return ValidationError{Field: fmt.Sprintf("watch.shocks[%d]", i), Value: shock, Message: "must be greater than -1"}
		}
	}
	return nil
}

// Timeout bounds a single price lookup
func (p PriceSourceConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// StaleAfter is how old a cached or streamed price may get before it is withheld
func (p PriceSourceConfig) StaleAfter() time.Duration {
	return time.Duration(p.StaleAfterSeconds) * time.Second
}

// Interval is the period between watch valuations
func (w WatchConfig) Interval() time.Duration {
	return time.Duration(w.IntervalSeconds) * time.Second
}

// StaticSymbols lists configured static symbols in sorted order
func (p PriceSourceConfig) StaticSymbols() []string {
	syms := make([]string, 0, len(p.StaticPrices))
	for sym := range p.StaticPrices {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

// String returns a string representation with sensitive data masked
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func (c *Config) validateAlertConfig() error {
	a := c.Alerts
	if a.LiquidationWarnPct < 0 || a.LiquidationWarnPct >= 100 {
		return ValidationError{Field: "alerts.liquidation_warn_pct", Value: a.LiquidationWarnPct, Message: "must be in [0, 100)"}
	}
	if a.TelegramBotToken != "" && a.TelegramAPIURL == "" {
		return ValidationError{Field: "alerts.telegram_api_url", Message: "required when a telegram bot token is set"}
	}
	return nil
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a configuration that runs offline against static prices
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:           "risk_calculator",
			StatePath:      "risk_calculator.db",
			InitialBalance: 1000,
			QuoteAsset:     "USD",
		},
		Risk: RiskConfig{
			MaxLeverage:    125,
			DefaultRiskPct: 0.01,
			LeverageTiers: []LeverageTier{
				{MaxLeverage: 20, MMR: 0.005},
				{MaxLeverage: 50, MMR: 0.0045},
				{MaxLeverage: 125, MMR: 0.004},
			},
			SymbolMMR: map[string]float64{},
		},
		PriceSource: PriceSourceConfig{
			Provider:           ProviderStatic,
			BaseURL:            "https://api.coingecko.com/api/v3",
			FuturesURL:         "https://fapi.binance.com",
			StreamURL:          "wss://fstream.binance.com/stream",
			TimeoutMs:          10000,
			RateLimitPerMinute: 30,
			StaleAfterSeconds:  60,
			StaticPrices:       map[string]float64{},
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: false,
		},
		Concurrency: ConcurrencyConfig{
			StressPoolSize:   4,
			StressPoolBuffer: 64,
		},
		Watch: WatchConfig{
			IntervalSeconds: 30,
			Shocks:          []float64{-0.2, -0.1, -0.05, 0.05, 0.1, 0.2},
		},
		Alerts: AlertConfig{
			TelegramAPIURL:     "https://api.telegram.org",
			LiquidationWarnPct: 5,
		},
	}
}

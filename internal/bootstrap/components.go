package bootstrap

import (
	"context"
	"fmt"

	"risk_calculator/internal/alert"
	"risk_calculator/internal/core"
	"risk_calculator/internal/risk/margin"
	"risk_calculator/internal/storage"
	"risk_calculator/internal/trading/account"

	"github.com/shopspring/decimal"
)

// NewEngine builds the risk engine from the risk section
func NewEngine(cfg *Config) (*margin.Engine, error) {
	tiers := make([]margin.Tier, 0, len(cfg.Risk.LeverageTiers))
	for _, t := range cfg.Risk.LeverageTiers {
		tiers = append(tiers, margin.Tier{
			MaxLeverage: decimal.NewFromInt(int64(t.MaxLeverage)),
			MMR:         decimal.NewFromFloat(t.MMR),
		})
	}
	overrides := make(map[string]decimal.Decimal, len(cfg.Risk.SymbolMMR))
	for sym, mmr := range cfg.Risk.SymbolMMR {
		overrides[sym] = decimal.NewFromFloat(mmr)
	}
	return margin.NewEngine(decimal.NewFromInt(int64(cfg.Risk.MaxLeverage)), tiers, overrides)
}

// OpenStore opens the SQLite state file named by app.state_path
func OpenStore(cfg *Config) (storage.Store, error) {
	store, err := storage.NewSQLiteStore(cfg.App.StatePath)
	if err != nil {
		return nil, fmt.Errorf("state store %s: %w", cfg.App.StatePath, err)
	}
	return store, nil
}

// NewAccount wires engine, store and account service. The caller closes the store.
func NewAccount(ctx context.Context, cfg *Config, logger core.ILogger) (*account.Service, storage.Store, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("risk engine: %w", err)
	}
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	svc, err := account.NewService(ctx, engine, store, decimal.NewFromFloat(cfg.App.InitialBalance), logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, store, nil
}

// NewLiquidationMonitor registers the configured alert channels. It returns
// nil when no channel has credentials.
func NewLiquidationMonitor(cfg *Config, logger core.ILogger) *alert.LiquidationMonitor {
	a := cfg.Alerts
	if !a.Enabled() {
		return nil
	}
	am := alert.NewManager(logger)
	if a.SlackWebhookURL != "" {
		am.AddChannel(alert.NewSlackChannel(a.SlackWebhookURL.Reveal()))
	}
	if a.TelegramBotToken != "" && a.TelegramChatID != "" {
		am.AddChannel(alert.NewTelegramChannel(a.TelegramAPIURL, a.TelegramBotToken.Reveal(), a.TelegramChatID))
	}
	return alert.NewLiquidationMonitor(am, decimal.NewFromFloat(a.LiquidationWarnPct))
}

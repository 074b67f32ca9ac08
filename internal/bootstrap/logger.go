package bootstrap

import (
	"risk_calculator/internal/core"
	"risk_calculator/pkg/logging"
)

// InitLogger builds the zap logger for cfg and installs it as the global logger
func InitLogger(cfg *Config) (core.ILogger, error) {
	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, err
	}
	scoped := logger.WithField("app", cfg.App.Name)
	logging.SetGlobalLogger(scoped)
	return scoped, nil
}

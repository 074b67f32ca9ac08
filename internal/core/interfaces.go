// Package core defines the core interfaces for the risk calculator
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// IPriceSource supplies current market prices per symbol.
// Symbols missing from the returned map are unavailable; a non-nil error with a
// partial map means some lookups failed.
type IPriceSource interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// IHealthMonitor defines the interface for health monitoring
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

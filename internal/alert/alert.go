// Package alert fans notifications out to external channels
package alert

import (
	"context"
	"sync"
	"time"

	"risk_calculator/internal/core"
)

type Level string

const (
	Info     Level = "INFO"
	Warning  Level = "WARNING"
	Error    Level = "ERROR"
	Critical Level = "CRITICAL"
)

type Payload struct {
	Level     Level
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

type Channel interface {
	Send(ctx context.Context, alert Payload) error
	Name() string
}

type Manager struct {
	channels    []Channel
	logger      core.ILogger
	sendTimeout time.Duration
	clock       func() time.Time
	mu          sync.RWMutex
}

func NewManager(logger core.ILogger) *Manager {
	return &Manager{
		channels:    make([]Channel, 0),
		logger:      logger.WithField("component", "alert_manager"),
		sendTimeout: 10 * time.Second,
		clock:       time.Now,
	}
}

func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("Added alert channel", "name", ch.Name())
}

// Channels returns the number of registered channels
func (m *Manager) Channels() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}

// Alert sends to every channel concurrently and waits until each has
// finished or timed out. Channel failures are logged, never returned.
func (m *Manager) Alert(ctx context.Context, title, message string, level Level, fields map[string]string) {
	payload := Payload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: m.clock().UTC(),
		Fields:    fields,
	}

	m.logger.Info("Triggering alert", "title", title, "level", level)

	m.mu.RLock()
	channels := append([]Channel(nil), m.channels...)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(c Channel) {
			defer wg.Done()
			timeoutCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
			defer cancel()

			if err := c.Send(timeoutCtx, payload); err != nil {
				m.logger.Error("Failed to send alert", "channel", c.Name(), "error", err)
			}
		}(ch)
	}
	wg.Wait()
}

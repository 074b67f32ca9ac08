package mock

import (
	"fmt"
	"sync"

	"risk_calculator/internal/core"
)

// LogEntry is one captured log call
type LogEntry struct {
	Level   string
	Message string
	Fields  []interface{}
}

// MockLogger implements core.ILogger and records every call
type MockLogger struct {
	mu      *sync.Mutex
	entries *[]LogEntry
	fields  []interface{}
}

func NewMockLogger() *MockLogger {
	return &MockLogger{mu: &sync.Mutex{}, entries: &[]LogEntry{}}
}

func (m *MockLogger) record(level, msg string, fields []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append(append([]interface{}{}, m.fields...), fields...)
	*m.entries = append(*m.entries, LogEntry{Level: level, Message: msg, Fields: all})
}

func (m *MockLogger) Debug(msg string, fields ...interface{}) { m.record("DEBUG", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...interface{})  { m.record("INFO", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...interface{})  { m.record("WARN", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...interface{}) { m.record("ERROR", msg, fields) }
func (m *MockLogger) Fatal(msg string, fields ...interface{}) { m.record("FATAL", msg, fields) }

// WithField returns a child that shares the captured entries
func (m *MockLogger) WithField(key string, value interface{}) core.ILogger {
	return &MockLogger{mu: m.mu, entries: m.entries, fields: append(append([]interface{}{}, m.fields...), key, value)}
}

func (m *MockLogger) WithFields(fields map[string]interface{}) core.ILogger {
	child := &MockLogger{mu: m.mu, entries: m.entries, fields: append([]interface{}{}, m.fields...)}
	for k, v := range fields {
		child.fields = append(child.fields, k, v)
	}
	return child
}

// Entries returns captured entries at level, or all when level is empty
func (m *MockLogger) Entries(level string) []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogEntry
	for _, e := range *m.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// HasMessage reports whether msg was logged at level
func (m *MockLogger) HasMessage(level, msg string) bool {
	for _, e := range m.Entries(level) {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s %v", e.Level, e.Message, e.Fields)
}

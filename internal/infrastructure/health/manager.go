// Package health aggregates component checks for the watch loop and status output
package health

import (
	"sort"
	"sync"

	"risk_calculator/internal/core"
)

// ComponentStatus is the result of one check
type ComponentStatus struct {
	Component string `json:"component"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
}

// HealthManager aggregates health status from different components
type HealthManager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]func() error
}

// NewHealthManager creates a new health manager
func NewHealthManager(logger core.ILogger) *HealthManager {
	hm := &HealthManager{checks: make(map[string]func() error)}
	if logger != nil {
		hm.logger = logger.WithField("component", "health_manager")
	}
	return hm
}

// Register adds or replaces the check for a component
func (hm *HealthManager) Register(component string, check func() error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[component] = check
}

// Report runs every check and returns results sorted by component
func (hm *HealthManager) Report() []ComponentStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	out := make([]ComponentStatus, 0, len(hm.checks))
	for component, check := range hm.checks {
		st := ComponentStatus{Component: component, Healthy: true}
		if err := check(); err != nil {
			st.Healthy = false
			st.Error = err.Error()
			if hm.logger != nil {
				hm.logger.Debug("Health check failed", "check", component, "error", err)
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// GetStatus returns the current status of all registered components
func (hm *HealthManager) GetStatus() map[string]string {
	status := make(map[string]string)
	for _, st := range hm.Report() {
		if st.Healthy {
			status[st.Component] = "Healthy"
		} else {
			status[st.Component] = "Unhealthy: " + st.Error
		}
	}
	return status
}

// IsHealthy returns true if all registered components are healthy
func (hm *HealthManager) IsHealthy() bool {
	for _, st := range hm.Report() {
		if !st.Healthy {
			return false
		}
	}
	return true
}

var _ core.IHealthMonitor = (*HealthManager)(nil)

package health

import (
	"fmt"
	"testing"

	"risk_calculator/internal/mock"

	"github.com/stretchr/testify/assert"
)

func TestHealthManager_Aggregation(t *testing.T) {
	hm := NewHealthManager(mock.NewMockLogger())
	assert.True(t, hm.IsHealthy(), "empty manager is healthy")

	hm.Register("store", func() error { return nil })
	assert.True(t, hm.IsHealthy())

	hm.Register("price_source", func() error { return fmt.Errorf("stream disconnected") })
	assert.False(t, hm.IsHealthy())

	status := hm.GetStatus()
	assert.Equal(t, "Healthy", status["store"])
	assert.Equal(t, "Unhealthy: stream disconnected", status["price_source"])

	report := hm.Report()
	assert.Len(t, report, 2)
	assert.Equal(t, "price_source", report[0].Component)
	assert.False(t, report[0].Healthy)
}

func TestHealthManager_NilLogger(t *testing.T) {
	hm := NewHealthManager(nil)
	hm.Register("x", func() error { return fmt.Errorf("down") })
	assert.False(t, hm.IsHealthy())
}

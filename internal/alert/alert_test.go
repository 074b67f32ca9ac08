package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"risk_calculator/internal/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChannel struct {
	name     string
	sent     []Payload
	sendFunc func(ctx context.Context, alert Payload) error
	mu       sync.Mutex
}

func (m *mockChannel) Name() string {
	return m.name
}

func (m *mockChannel) Send(ctx context.Context, alert Payload) error {
	m.mu.Lock()
	m.sent = append(m.sent, alert)
	m.mu.Unlock()
	if m.sendFunc != nil {
		return m.sendFunc(ctx, alert)
	}
	return nil
}

func (m *mockChannel) getSent() []Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]Payload, len(m.sent))
	copy(res, m.sent)
	return res
}

func TestManager_Alert(t *testing.T) {
	am := NewManager(mock.NewMockLogger())

	ch1 := &mockChannel{name: "mock1"}
	ch2 := &mockChannel{name: "mock2"}
	am.AddChannel(ch1)
	am.AddChannel(ch2)
	assert.Equal(t, 2, am.Channels())

	am.Alert(context.Background(), "Test Alert", "This is a test", Info, map[string]string{"key": "value"})

	sent1 := ch1.getSent()
	require.Len(t, sent1, 1)
	assert.Len(t, ch2.getSent(), 1)

	payload := sent1[0]
	assert.Equal(t, "Test Alert", payload.Title)
	assert.Equal(t, Info, payload.Level)
	assert.Equal(t, "value", payload.Fields["key"])
	assert.False(t, payload.Timestamp.IsZero())
}

func TestManager_ChannelFailureIsLogged(t *testing.T) {
	logger := mock.NewMockLogger()
	am := NewManager(logger)

	failing := &mockChannel{name: "broken", sendFunc: func(context.Context, Payload) error {
		return errors.New("boom")
	}}
	ok := &mockChannel{name: "ok"}
	am.AddChannel(failing)
	am.AddChannel(ok)

	am.Alert(context.Background(), "t", "m", Error, nil)

	assert.Len(t, ok.getSent(), 1)
	assert.True(t, logger.HasMessage("ERROR", "Failed to send alert"))
}

func TestManager_SendTimeout(t *testing.T) {
	am := NewManager(mock.NewMockLogger())
	am.sendTimeout = 20 * time.Millisecond

	slow := &mockChannel{name: "slow", sendFunc: func(ctx context.Context, _ Payload) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	am.AddChannel(slow)

	start := time.Now()
	am.Alert(context.Background(), "t", "m", Warning, nil)
	assert.Less(t, time.Since(start), time.Second)
}

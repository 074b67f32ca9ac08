package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"risk_calculator/pkg/logging"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketClient_ReceivesMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"BTCUSDT","p":"50000"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	received := make(chan []byte, 1)
	client := NewClient(wsURL(server), func(message []byte) {
		select {
		case received <- message:
		default:
		}
	}, logger)
	client.Start()
	defer client.Stop()

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), "BTCUSDT")
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	assert.True(t, client.Connected())
}

func TestWebSocketClient_Heartbeat(t *testing.T) {
	var pings int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.SetPingHandler(func(string) error {
			atomic.AddInt32(&pings, 1)
			return conn.WriteControl(websocket.PongMessage, []byte{}, time.Now().Add(time.Second))
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}))
	defer server.Close()

	logger, _ := logging.NewZapLogger("ERROR")
	client := NewClient(wsURL(server), nil, logger)
	client.SetPingConfig(100*time.Millisecond, 50*time.Millisecond, 200*time.Millisecond)
	client.SetReconnectWait(10 * time.Millisecond)

	client.Start()
	defer client.Stop()

	time.Sleep(500 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&pings), int32(2))
}

func TestWebSocketClient_ReconnectsAfterServerClose(t *testing.T) {
	var connections int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&connections, 1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop immediately to force a reconnect
		conn.Close()
	}))
	defer server.Close()

	logger, _ := logging.NewZapLogger("ERROR")
	var disconnects int32
	client := NewClient(wsURL(server), nil, logger)
	client.SetReconnectWait(20 * time.Millisecond)
	client.SetOnDisconnected(func() { atomic.AddInt32(&disconnects, 1) })

	client.Start()
	time.Sleep(300 * time.Millisecond)
	client.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&connections), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&disconnects), int32(1))
	assert.False(t, client.Connected())
}

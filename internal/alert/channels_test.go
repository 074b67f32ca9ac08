package alert

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, status int) (*httptest.Server, chan map[string]interface{}, chan string) {
	t.Helper()
	bodies := make(chan map[string]interface{}, 1)
	paths := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)
		select {
		case bodies <- body:
			paths <- r.URL.Path
		default:
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, bodies, paths
}

var samplePayload = Payload{
	Level:     Critical,
	Title:     "Position liquidated",
	Message:   "#1 BTC LONG 10x crossed its liquidation price",
	Timestamp: time.Unix(1700000000, 0),
	Fields:    map[string]string{"symbol": "BTC", "mark": "45000"},
}

func TestSlackChannel_Send(t *testing.T) {
	server, bodies, _ := capture(t, http.StatusOK)
	ch := NewSlackChannel(server.URL + "/services/T000/B000/XXX")

	require.NoError(t, ch.Send(context.Background(), samplePayload))

	body := <-bodies
	attachments := body["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]interface{})
	assert.Equal(t, "#8b0000", att["color"])
	assert.Equal(t, "[CRITICAL] Position liquidated", att["pretext"])

	fields := att["fields"].([]interface{})
	require.Len(t, fields, 2)
	assert.Equal(t, "mark", fields[0].(map[string]interface{})["title"])
}

func TestSlackChannel_NoWebhookIsNoop(t *testing.T) {
	assert.NoError(t, NewSlackChannel("").Send(context.Background(), samplePayload))
}

func TestTelegramChannel_Send(t *testing.T) {
	server, bodies, paths := capture(t, http.StatusOK)
	ch := NewTelegramChannel(server.URL, "123:abc", "42")

	require.NoError(t, ch.Send(context.Background(), samplePayload))

	body := <-bodies
	assert.Equal(t, "/bot123:abc/sendMessage", <-paths)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "Markdown", body["parse_mode"])
	assert.Contains(t, body["text"], "*[CRITICAL] Position liquidated*")
	assert.Contains(t, body["text"], "- *mark*: 45000\n- *symbol*: BTC")
}

func TestTelegramChannel_ErrorRedactsToken(t *testing.T) {
	server, _, _ := capture(t, http.StatusOK)
	url := server.URL
	server.Close()

	ch := NewTelegramChannel(url, "123:secret-token", "42")
	err := ch.Send(context.Background(), samplePayload)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

// Package websocket provides a read-mostly WebSocket client with automatic reconnection
package websocket

import (
	"context"
	"sync"
	"time"

	"risk_calculator/internal/core"
	"risk_calculator/pkg/telemetry"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MessageHandler handles incoming WebSocket messages
type MessageHandler func(message []byte)

// Client keeps a stream connection alive until Stop is called
type Client struct {
	url           string
	handler       MessageHandler
	reconnectWait time.Duration

	conn      *websocket.Conn
	connected bool
	mu        sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onConnected    func()
	onDisconnected func()

	pingInterval time.Duration
	pingWait     time.Duration
	pongWait     time.Duration

	logger core.ILogger

	// OTel
	tracer      trace.Tracer
	msgCounter  metric.Int64Counter
	connCounter metric.Int64Counter
}

// NewClient creates a new WebSocket client
func NewClient(url string, handler MessageHandler, logger core.ILogger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	meter := telemetry.GetMeter("ws-client")
	msgCounter, _ := meter.Int64Counter("ws_messages_total",
		metric.WithDescription("Total number of WebSocket messages received"))
	connCounter, _ := meter.Int64Counter("ws_connections_total",
		metric.WithDescription("Total number of WebSocket connections initiated"))

	return &Client{
		url:           url,
		handler:       handler,
		reconnectWait: 5 * time.Second,
		pingInterval:  30 * time.Second,
		pingWait:      10 * time.Second,
		pongWait:      60 * time.Second,
		ctx:           ctx,
		cancel:        cancel,
		tracer:        telemetry.GetTracer("ws-client"),
		msgCounter:    msgCounter,
		connCounter:   connCounter,
		logger:        logger.WithField("component", "ws_client"),
	}
}

// SetPingConfig sets the ping/pong configuration
func (c *Client) SetPingConfig(interval, wait, pongWait time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingInterval = interval
	c.pingWait = wait
	c.pongWait = pongWait
}

// SetReconnectWait sets the pause between reconnect attempts
func (c *Client) SetReconnectWait(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectWait = d
}

// SetOnConnected sets the callback run after every successful dial
func (c *Client) SetOnConnected(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = cb
}

// SetOnDisconnected sets the callback run whenever a live connection drops
func (c *Client) SetOnDisconnected(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnected = cb
}

// Connected reports whether a connection is currently established
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Start connects and begins listening for messages
func (c *Client) Start() {
	c.wg.Add(1)
	go c.runLoop()
}

// Stop closes the connection and waits for the loop to exit
func (c *Client) Stop() {
	c.cancel()
	c.closeConn()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.logger.Warn("WebSocket client Stop: some goroutines did not exit within timeout")
	}
}

func (c *Client) wait() bool {
	c.mu.Lock()
	d := c.reconnectWait
	c.mu.Unlock()

	select {
	case <-c.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Client) runLoop() {
	defer c.wg.Done()

	for c.ctx.Err() == nil {
		conn, err := c.connect()
		if err != nil {
			c.logger.Warn("WebSocket connect failed", "url", c.url, "error", err)
			if !c.wait() {
				return
			}
			continue
		}

		c.mu.Lock()
		onConnected := c.onConnected
		pingInterval := c.pingInterval
		c.mu.Unlock()

		if onConnected != nil {
			onConnected()
		}

		heartbeatCtx, heartbeatCancel := context.WithCancel(c.ctx)
		if pingInterval > 0 {
			c.wg.Add(1)
			go c.heartbeat(heartbeatCtx, conn)
		}

		c.readLoop(conn)
		heartbeatCancel()

		c.mu.Lock()
		onDisconnected := c.onDisconnected
		c.mu.Unlock()
		if onDisconnected != nil {
			onDisconnected()
		}

		if !c.wait() {
			return
		}
	}
}

func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()

	c.mu.Lock()
	interval := c.pingInterval
	wait := c.pingWait
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wait))
			c.mu.Unlock()
			if err != nil {
				c.closeConn()
				return
			}
		}
	}
}

func (c *Client) connect() (*websocket.Conn, error) {
	ctx, span := c.tracer.Start(c.ctx, "WS Connect",
		trace.WithAttributes(attribute.String("ws.url", c.url)),
	)
	defer span.End()

	c.connCounter.Add(ctx, 1)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pongWait := c.pongWait
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.conn = conn
	c.connected = true
	return conn, nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.closeConn()

	for c.ctx.Err() == nil {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Debug("WebSocket read ended", "error", err)
			}
			return
		}

		c.mu.Lock()
		pongWait := c.pongWait
		c.mu.Unlock()
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		c.msgCounter.Add(c.ctx, 1)
		if c.handler != nil {
			c.handler(message)
		}
	}
}

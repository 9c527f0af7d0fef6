// Package push consumes the server's push channel: a websocket carrying
// at-least-once, unordered events for the notifications scope and for each
// bound conversation. The consumer only decodes and publishes; applying
// events to the store is the reconciler's job, reached through the bus.
package push

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ostelo/deskchat/internal/bus"
	"github.com/ostelo/deskchat/internal/metrics"
	"github.com/ostelo/deskchat/internal/status"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize     = 64 * 1024
	maxReconnectWait = 30 * time.Second
)

// NotificationsChannel is the cross-cutting channel every session binds in
// addition to its per-conversation channels.
const NotificationsChannel = "notifications"

// ConversationChannel returns the channel name for one conversation.
func ConversationChannel(conversationID string) string {
	return "conversation." + conversationID
}

type subscribeFrame struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// Consumer maintains the websocket connection, rebinds channels after a
// reconnect, and publishes decoded events on the bus under "push.event".
type Consumer struct {
	url     string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	channels map[string]struct{}

	cancel context.CancelFunc
}

// NewConsumer creates a push consumer for the given websocket URL.
func NewConsumer(url string, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Consumer {
	return &Consumer{
		url:      url,
		bus:      b,
		machine:  machine,
		logger:   logger,
		channels: map[string]struct{}{NotificationsChannel: {}},
	}
}

// Start connects and begins the read loop with automatic reconnect.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	_ = c.machine.Transition(status.Connecting)
	go c.run(ctx)
}

// Stop terminates the consumer.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
	_ = c.machine.Transition(status.Stopped)
}

// Bind subscribes the consumer to a channel. The binding survives
// reconnects. Binding an already-bound channel is a no-op.
func (c *Consumer) Bind(channel string) {
	c.mu.Lock()
	if _, ok := c.channels[channel]; ok {
		c.mu.Unlock()
		return
	}
	c.channels[channel] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeJSON(subscribeFrame{Action: "subscribe", Channel: channel})
	}
}

// Unbind removes a channel binding. Only the named channel is unbound;
// other conversations sharing the connection keep flowing.
func (c *Consumer) Unbind(channel string) {
	c.mu.Lock()
	if _, ok := c.channels[channel]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.channels, channel)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeJSON(subscribeFrame{Action: "unsubscribe", Channel: channel})
	}
}

func (c *Consumer) run(ctx context.Context) {
	wait := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logger.Warn("push dial failed", zap.Error(err), zap.Duration("retry_in", wait))
			_ = c.machine.Transition(status.Reconnecting)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			if wait *= 2; wait > maxReconnectWait {
				wait = maxReconnectWait
			}
			_ = c.machine.Transition(status.Connecting)
			continue
		}
		wait = time.Second

		c.mu.Lock()
		c.conn = conn
		channels := make([]string, 0, len(c.channels))
		for ch := range c.channels {
			channels = append(channels, ch)
		}
		c.mu.Unlock()

		for _, ch := range channels {
			c.writeJSON(subscribeFrame{Action: "subscribe", Channel: ch})
		}
		_ = c.machine.Transition(status.Ready)
		c.logger.Info("push channel connected", zap.Int("channels", len(channels)))

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		_ = c.machine.Transition(status.Reconnecting)
		_ = c.machine.Transition(status.Connecting)
	}
}

func (c *Consumer) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("push read error", zap.Error(err))
			}
			return
		}

		evt, err := Decode(raw)
		if err != nil {
			metrics.MalformedDropped.Inc()
			c.logger.Warn("dropping push frame", zap.Error(err))
			continue
		}
		c.bus.Publish("push.event", evt)
	}
}

func (c *Consumer) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) writeJSON(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn("push write failed", zap.Error(err))
	}
}

// Package push maintains the persistent websocket to the upstream backend:
// it decodes typed events into the engine and carries outbound commands
// (send_message, join_chat) back over the same socket.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-console/internal/model"
	"github.com/capitalize-ai/support-console/pkg/logger"
	"github.com/capitalize-ai/support-console/pkg/metrics"
)

// ErrNotConnected is returned for outbound commands while the socket is down.
var ErrNotConnected = errors.New("push channel not connected")

// Handler receives each decoded push event in arrival order.
type Handler func(model.PushEvent)

// Driver dials the upstream stream and keeps it alive, reconnecting with a
// capped backoff. Events are delivered to the handler from a single read
// loop, so per-channel FIFO ordering is preserved.
type Driver struct {
	url     string
	token   string
	handler Handler
	logger  *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewDriver returns a driver for the stream at url. Events are handed to
// handler; the driver never interprets them.
func NewDriver(url, token string, handler Handler, log *logger.Logger) *Driver {
	return &Driver{
		url:       url,
		token:     token,
		handler:   handler,
		logger:    log,
		baseDelay: time.Second,
		maxDelay:  30 * time.Second,
	}
}

// Run dials and reads until ctx is done. Connection loss is a transient
// failure: logged, backed off, redialed.
func (d *Driver) Run(ctx context.Context) {
	delay := d.baseDelay
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := d.dial(ctx)
		if err != nil {
			d.logger.Warn("push channel dial failed", zap.Error(err), zap.Duration("retry_in", delay))
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = minDuration(delay*2, d.maxDelay)
			continue
		}

		d.setConn(conn)
		metrics.PushConnected.Set(1)
		d.logger.Info("push channel connected", zap.String("url", d.url))
		delay = d.baseDelay

		d.readLoop(ctx, conn)

		d.setConn(nil)
		metrics.PushConnected.Set(0)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		d.logger.Warn("push channel disconnected, reconnecting")
	}
}

// SendMessage sends a send_message command over the socket.
func (d *Driver) SendMessage(chatID, content, msgType string) error {
	return d.write(model.OutboundCommand{
		Type:    "send_message",
		ChatID:  chatID,
		Content: content,
		MsgType: msgType,
	})
}

// JoinChat subscribes the session to a conversation's events.
func (d *Driver) JoinChat(chatID string) error {
	return d.write(model.OutboundCommand{
		Type:   "join_chat",
		ChatID: chatID,
	})
}

func (d *Driver) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if d.token != "" {
		header.Set("Authorization", "Bearer "+d.token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, d.url, header)
	return conn, err
}

func (d *Driver) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var ev model.PushEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			metrics.PushEventsDropped.WithLabelValues("undecodable").Inc()
			d.logger.Warn("dropping undecodable push frame", zap.Error(err))
			continue
		}
		metrics.PushEventsReceived.WithLabelValues(string(ev.Type)).Inc()
		d.handler(ev)
	}
}

func (d *Driver) write(cmd model.OutboundCommand) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return ErrNotConnected
	}
	return d.conn.WriteJSON(cmd)
}

func (d *Driver) setConn(conn *websocket.Conn) {
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

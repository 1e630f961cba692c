// Package bus connects console sessions over NATS so confirmed deletions
// converge: a session that removes a conversation publishes the fact, and
// every peer session tombstones and drops the same id.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-console/pkg/logger"
)

const removedSubject = "console.conversations.removed"

// Config holds NATS connection configuration.
type Config struct {
	URL   string
	Token string
}

// RemovedEvent announces a confirmed conversation removal to peer sessions.
type RemovedEvent struct {
	ConversationID string    `json:"conversation_id"`
	SessionID      string    `json:"session_id"`
	RemovedAt      time.Time `json:"removed_at"`
}

// Bus is the cross-session event bus. Plain core pub/sub: the events are
// ephemeral convergence facts, not durable history.
type Bus struct {
	conn      *nats.Conn
	sessionID string
	logger    *logger.Logger
}

// Connect establishes the NATS connection for this session.
func Connect(cfg Config, sessionID string, log *logger.Logger) (*Bus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Bus{
		conn:      nc,
		sessionID: sessionID,
		logger:    log,
	}, nil
}

// PublishRemoved broadcasts a confirmed removal.
func (b *Bus) PublishRemoved(conversationID string) error {
	ev := RemovedEvent{
		ConversationID: conversationID,
		SessionID:      b.sessionID,
		RemovedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal removed event: %w", err)
	}
	return b.conn.Publish(removedSubject, data)
}

// SubscribeRemoved delivers peer removals to fn. Events published by this
// session are filtered out; the local removal already happened.
func (b *Bus) SubscribeRemoved(fn func(conversationID string)) (*nats.Subscription, error) {
	return b.conn.Subscribe(removedSubject, func(msg *nats.Msg) {
		var ev RemovedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Warn("dropping undecodable removal event", zap.Error(err))
			return
		}
		if ev.SessionID == b.sessionID || ev.ConversationID == "" {
			return
		}
		fn(ev.ConversationID)
	})
}

// IsConnected reports whether the NATS connection is up.
func (b *Bus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Close drains and closes the connection.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

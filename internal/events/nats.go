// Package events publishes coaching lifecycle events over NATS JetStream
// so downstream consumers (analytics, notifications) can react without
// coupling to the request path.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// TurnPersisted is emitted after a user/assistant exchange is committed.
type TurnPersisted struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	StageNumber    int       `json:"stage_number"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	SourceCount    int       `json:"source_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// StageCompleted is emitted when a stage transitions to completed.
type StageCompleted struct {
	UserID       string     `json:"user_id"`
	StageNumber  int        `json:"stage_number"`
	CompletedAt  time.Time  `json:"completed_at"`
	NextStage    int        `json:"next_stage,omitempty"`
	NextUnlockAt *time.Time `json:"next_unlock_at,omitempty"`
}

// Config holds NATS configuration
type Config struct {
	URL        string        // NATS server URL (e.g., "nats://nats:4222")
	StreamName string        // JetStream stream name (default: "COACH")
	Timeout    time.Duration // Connection timeout
}

// Bus publishes events to NATS with JetStream durability.
type Bus struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	subscriptions map[string]*nats.Subscription
	streamName    string
	url           string
}

// NewBus connects to NATS and ensures the event stream exists.
func NewBus(cfg Config) (*Bus, error) {
	if cfg.URL == "" {
		cfg.URL = "nats://localhost:4222"
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "COACH"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bus := &Bus{
		conn:          nc,
		js:            js,
		subscriptions: make(map[string]*nats.Subscription),
		streamName:    cfg.StreamName,
		url:           cfg.URL,
	}

	if err := bus.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	log.Printf("Connected to NATS at %s with JetStream stream %s", cfg.URL, cfg.StreamName)
	return bus, nil
}

// ensureStream creates or updates the JetStream stream. LimitsPolicy allows
// multiple consumers on the same subjects.
func (b *Bus) ensureStream() error {
	streamConfig := &nats.StreamConfig{
		Name:      b.streamName,
		Subjects:  []string{"coach.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		MaxBytes:  256 * 1024 * 1024,
		Storage:   nats.FileStorage,
		Replicas:  1,
		Discard:   nats.DiscardOld,
	}

	_, err := b.js.StreamInfo(b.streamName)
	if err != nil {
		if _, err := b.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		log.Printf("Created JetStream stream: %s", b.streamName)
		return nil
	}

	if _, err := b.js.UpdateStream(streamConfig); err != nil {
		return fmt.Errorf("failed to update stream: %w", err)
	}
	return nil
}

// PublishTurnPersisted publishes a turn-persistence event
func (b *Bus) PublishTurnPersisted(event *TurnPersisted) error {
	return b.publish("coach.events.turn_persisted", event)
}

// PublishStageCompleted publishes a stage-completion event
func (b *Bus) PublishStageCompleted(event *StageCompleted) error {
	return b.publish("coach.events.stage_completed", event)
}

// publish is the internal method to publish messages
func (b *Bus) publish(subject string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", subject, err)
	}
	return nil
}

// SubscribeStageCompleted sets up a durable subscription for completion events
func (b *Bus) SubscribeStageCompleted(handler func(*StageCompleted)) error {
	return b.subscribe("coach.events.stage_completed", "stage-completed", func(msg *nats.Msg) {
		var event StageCompleted
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("Failed to unmarshal stage completion event: %v", err)
			msg.Nak()
			return
		}
		handler(&event)
		msg.Ack()
	})
}

// SubscribeTurnPersisted sets up a durable subscription for turn events
func (b *Bus) SubscribeTurnPersisted(handler func(*TurnPersisted)) error {
	return b.subscribe("coach.events.turn_persisted", "turn-persisted", func(msg *nats.Msg) {
		var event TurnPersisted
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("Failed to unmarshal turn event: %v", err)
			msg.Nak()
			return
		}
		handler(&event)
		msg.Ack()
	})
}

// subscribe is the internal method to set up durable subscriptions
func (b *Bus) subscribe(subject, consumerName string, handler nats.MsgHandler) error {
	sub, err := b.js.Subscribe(subject, handler,
		nats.Durable(consumerName),
		nats.AckExplicit(),
		nats.MaxDeliver(3),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	b.subscriptions[subject] = sub
	return nil
}

// Health returns the health status of the NATS connection
func (b *Bus) Health() error {
	if b.conn.IsClosed() {
		return fmt.Errorf("NATS connection is closed")
	}
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}
	if _, err := b.js.StreamInfo(b.streamName); err != nil {
		return fmt.Errorf("JetStream stream %s is unhealthy: %w", b.streamName, err)
	}
	return nil
}

// Close closes all subscriptions and the NATS connection
func (b *Bus) Close() error {
	for subject, sub := range b.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("Failed to unsubscribe from %s: %v", subject, err)
		}
	}
	b.conn.Close()
	return nil
}

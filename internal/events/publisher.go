// Package events publishes storage lifecycle events over NATS for downstream
// consumers. Publishing is best-effort: failures are logged, never surfaced.
package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/artifactstore/internal/logfields"
)

// EventType identifies a storage lifecycle event.
type EventType string

const (
	ObjectWritten    EventType = "object.written"
	ObjectDeleted    EventType = "object.deleted"
	ScopeInvalidated EventType = "scope.invalidated"
)

// Event is the JSON payload published per storage mutation.
type Event struct {
	Type      EventType `json:"type"`
	Segment   string    `json:"segment"`
	Key       string    `json:"key"`
	Caller    string    `json:"caller,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits storage events. The zero value (or nil) is a disabled
// publisher whose Publish is a no-op.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// Connect establishes a NATS connection for event publishing.
func Connect(url, subject string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, subject: subject}, nil
}

// Publish emits one event. Errors are logged and swallowed; event delivery
// is not part of the storage contract.
func (p *Publisher) Publish(ev Event) {
	if p == nil || p.conn == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode storage event", logfields.Error(err))
		return
	}
	subject := p.subject + "." + string(ev.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		slog.Warn("Failed to publish storage event",
			slog.String("subject", subject),
			logfields.Error(err))
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
}

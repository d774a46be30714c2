// Package notify publishes lifecycle events. Delivery is best-effort:
// callers log a failed publish and carry on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/kubesec-bank/invest-ledger/internal/models"
)

type Notifier interface {
	Publish(ctx context.Context, event models.Event) error
}

// NATSNotifier publishes JSON events on "<prefix>.<event type>".
type NATSNotifier struct {
	nc     *nats.Conn
	prefix string
}

var _ Notifier = (*NATSNotifier)(nil)

func NewNATSNotifier(nc *nats.Conn, prefix string) *NATSNotifier {
	if prefix == "" {
		prefix = "ledger"
	}
	return &NATSNotifier{nc: nc, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (n *NATSNotifier) Subject(eventType string) string {
	return n.prefix + "." + eventType
}

func (n *NATSNotifier) Publish(_ context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.nc.Publish(n.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, models.Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []models.Event
	// Err, when set, is returned by every Publish after recording.
	Err error
}

func (r *Recorder) Publish(_ context.Context, event models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.Err
}

func (r *Recorder) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

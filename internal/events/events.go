// Package events defines the notifications emitted by the shop engine. The
// services publish them; delivery is the worker's concern.
package events

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names an event type.
type Kind string

const (
	KindAppointmentScheduled Kind = "appointment.scheduled"
	KindAppointmentConfirmed Kind = "appointment.confirmed"
	KindWorkOrderCreated     Kind = "workorder.created"
	KindWorkOrderCompleted   Kind = "workorder.completed"
	KindInvoiceGenerated     Kind = "invoice.generated"
	KindInvoiceSent          Kind = "invoice.sent"
	KindInvoiceOverdue       Kind = "invoice.overdue"
	KindPaymentReceived      Kind = "payment.received"
)

var namespace = uuid.MustParse("0b6f3f3e-6f1c-5d2e-9a51-7f1f5f0c2a10")

// Event is a single notification.
type Event struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	EntityID   int64             `json:"entity_id"`
	CustomerID int64             `json:"customer_id,omitempty"`
	Summary    string            `json:"summary"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// New builds an event whose ID is derived from kind, entity and discriminator,
// so publishing the same fact twice yields the same ID.
func New(kind Kind, entityID int64, discriminator string, at time.Time) Event {
	return Event{
		ID:         NewID(kind, entityID, discriminator),
		Kind:       kind,
		EntityID:   entityID,
		OccurredAt: at.UTC(),
		Data:       map[string]string{},
	}
}

// NewID returns a deterministic UUIDv5 for the event identity.
func NewID(kind Kind, entityID int64, discriminator string) string {
	name := string(kind) + ":" + strconv.FormatInt(entityID, 10) + ":" + discriminator
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// With sets a data attribute and returns the event for chaining.
func (e Event) With(key string, value any) Event {
	if e.Data == nil {
		e.Data = map[string]string{}
	}
	e.Data[key] = fmt.Sprint(value)
	return e
}

// Publisher hands events to the notification pipeline.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Discard drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds lists the recorded kinds in publish order.
func (r *Recorder) Kinds() []Kind {
	evts := r.Events()
	out := make([]Kind, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Kind)
	}
	return out
}

// Package events carries booking notifications from the write path to
// whoever listens: websocket clients, other replicas, the notification
// pipeline. Publishing never waits on a listener.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	BookingCommitted     Type = "booking.committed"
	BookingCancelled     Type = "booking.cancelled"
	BookingRescheduled   Type = "booking.rescheduled"
	BookingStatusChanged Type = "booking.status_changed"
)

type Event struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	BusinessID    string    `json:"business_id"`
	AppointmentID string    `json:"appointment_id"`
	PreviousID    string    `json:"previous_appointment_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// New stamps an event with a fresh ID and the current time.
func New(t Type, businessID, appointmentID uuid.UUID) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{
		ID:            id.String(),
		Type:          t,
		BusinessID:    businessID.String(),
		AppointmentID: appointmentID.String(),
		OccurredAt:    time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber delivers events until ctx is done, then closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

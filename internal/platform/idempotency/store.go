package idempotency

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the default duration that processed-event records are retained.
// Stripe retries failed webhook deliveries for up to three days.
const DefaultTTL = 72 * time.Hour

// Status represents the lifecycle state of a processed-event record.
type Status string

const (
	// StatusPending indicates a delivery has reserved the event but not yet finished processing.
	StatusPending Status = "pending"
	// StatusProcessed indicates the event was handled and redeliveries should be acknowledged without reprocessing.
	StatusProcessed Status = "processed"
)

// ReservationState describes the outcome of attempting to reserve an event id.
type ReservationState int

const (
	// ReservationStateNew means the event has not been seen and the caller should process it.
	ReservationStateNew ReservationState = iota
	// ReservationStateProcessed means the event already completed processing.
	ReservationStateProcessed
	// ReservationStatePending means another delivery of the same event is currently in flight.
	ReservationStatePending
)

// Reservation reports the dedup decision for an inbound event delivery.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record captures the persisted processing state for a provider event id.
type Record struct {
	EventID     string
	EventType   string
	Status      Status
	CreatedAt   time.Time
	ProcessedAt time.Time
	ExpiresAt   time.Time
}

// ErrUnknownEvent is returned when completing or releasing an event that was never reserved.
var ErrUnknownEvent = errors.New("idempotency: unknown event id")

// Store persists webhook event reservations for at-least-once dedup.
type Store interface {
	// Reserve claims the event id for processing; duplicates report the stored state instead.
	Reserve(ctx context.Context, eventID, eventType string, now time.Time, ttl time.Duration) (Reservation, error)
	// MarkProcessed records that the event finished processing so redeliveries can be acknowledged.
	MarkProcessed(ctx context.Context, eventID string, now time.Time) error
	// Release drops a pending reservation so the provider's retry can reprocess the event.
	Release(ctx context.Context, eventID string) error
}

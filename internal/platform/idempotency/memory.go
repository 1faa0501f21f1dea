package idempotency

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps event reservations in process memory. Intended for tests
// and single-instance development environments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, eventID, eventType string, now time.Time, ttl time.Duration) (Reservation, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return Reservation{}, ErrUnknownEvent
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[id]; ok && now.Before(record.ExpiresAt) {
		state := ReservationStatePending
		if record.Status == StatusProcessed {
			state = ReservationStateProcessed
		}
		return Reservation{State: state, Record: record}, nil
	}

	record := Record{
		EventID:   id,
		EventType: strings.TrimSpace(eventType),
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.records[id] = record
	return Reservation{State: ReservationStateNew, Record: record}, nil
}

// MarkProcessed implements Store.
func (s *MemoryStore) MarkProcessed(_ context.Context, eventID string, now time.Time) error {
	id := strings.TrimSpace(eventID)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return ErrUnknownEvent
	}
	record.Status = StatusProcessed
	record.ProcessedAt = now
	s.records[id] = record
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, eventID string) error {
	id := strings.TrimSpace(eventID)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil
	}
	if record.Status == StatusPending {
		delete(s.records, id)
	}
	return nil
}

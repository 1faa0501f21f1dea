package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/loopwear/api/internal/platform/firestore"
)

const defaultEventCollection = "webhookEvents"

type eventDocument struct {
	EventID     string     `firestore:"eventId"`
	EventType   string     `firestore:"eventType"`
	Status      string     `firestore:"status"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	ProcessedAt *time.Time `firestore:"processedAt,omitempty"`
	ExpiresAt   time.Time  `firestore:"expiresAt"`
}

// FirestoreStore persists event reservations in a Firestore collection so
// dedup holds across instances.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a Firestore-backed event store.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	name := strings.TrimSpace(collection)
	if name == "" {
		name = defaultEventCollection
	}
	return &FirestoreStore{provider: provider, collection: name}, nil
}

// Reserve implements Store using a transactional create-or-inspect.
func (s *FirestoreStore) Reserve(ctx context.Context, eventID, eventType string, now time.Time, ttl time.Duration) (Reservation, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return Reservation{}, ErrUnknownEvent
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	var reservation Reservation
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.docRef(ctx, id)
		if err != nil {
			return err
		}

		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			doc := eventDocument{
				EventID:   id,
				EventType: strings.TrimSpace(eventType),
				Status:    string(StatusPending),
				CreatedAt: now,
				ExpiresAt: now.Add(ttl),
			}
			if err := tx.Create(ref, doc); err != nil {
				return err
			}
			reservation = Reservation{State: ReservationStateNew, Record: recordFromDocument(doc)}
			return nil
		case codes.OK:
			// fall through to inspect the stored record
		default:
			return err
		}

		var doc eventDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		if now.After(doc.ExpiresAt) {
			doc = eventDocument{
				EventID:   id,
				EventType: strings.TrimSpace(eventType),
				Status:    string(StatusPending),
				CreatedAt: now,
				ExpiresAt: now.Add(ttl),
			}
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			reservation = Reservation{State: ReservationStateNew, Record: recordFromDocument(doc)}
			return nil
		}

		state := ReservationStatePending
		if Status(doc.Status) == StatusProcessed {
			state = ReservationStateProcessed
		}
		reservation = Reservation{State: state, Record: recordFromDocument(doc)}
		return nil
	}, pfirestore.WithTxTimeout(5*time.Second))
	if err != nil {
		return Reservation{}, pfirestore.WrapError("webhookEvents.reserve", err)
	}
	return reservation, nil
}

// MarkProcessed implements Store.
func (s *FirestoreStore) MarkProcessed(ctx context.Context, eventID string, now time.Time) error {
	ref, err := s.docRefWithClient(ctx, eventID)
	if err != nil {
		return err
	}

	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "status", Value: string(StatusProcessed)},
		{Path: "processedAt", Value: now},
	})
	if status.Code(err) == codes.NotFound {
		return ErrUnknownEvent
	}
	return pfirestore.WrapError("webhookEvents.markProcessed", err)
}

// Release implements Store. Missing documents are ignored so release is safe to retry.
func (s *FirestoreStore) Release(ctx context.Context, eventID string) error {
	ref, err := s.docRefWithClient(ctx, eventID)
	if err != nil {
		return err
	}

	_, err = ref.Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return pfirestore.WrapError("webhookEvents.release", err)
}

func recordFromDocument(doc eventDocument) Record {
	record := Record{
		EventID:   doc.EventID,
		EventType: doc.EventType,
		Status:    Status(doc.Status),
		CreatedAt: doc.CreatedAt,
		ExpiresAt: doc.ExpiresAt,
	}
	if doc.ProcessedAt != nil {
		record.ProcessedAt = *doc.ProcessedAt
	}
	return record
}

func (s *FirestoreStore) docRef(ctx context.Context, eventID string) (*firestore.DocumentRef, error) {
	return s.docRefWithClient(ctx, eventID)
}

func (s *FirestoreStore) docRefWithClient(ctx context.Context, eventID string) (*firestore.DocumentRef, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return nil, ErrUnknownEvent
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(id), nil
}

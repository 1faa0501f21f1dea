package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78"

	"github.com/loopwear/api/internal/platform/idempotency"
)

const testSigningSecret = "whsec_test"

type stubDispatcher struct {
	fn func(ctx context.Context, shop string, event stripe.Event) error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, shop string, event stripe.Event) error {
	if s.fn != nil {
		return s.fn(ctx, shop, event)
	}
	return nil
}

// signPayload builds a Stripe-Signature header the verification library accepts.
func signPayload(secret string, payload []byte, at time.Time) string {
	timestamp := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func webhookRequest(t *testing.T, payload []byte, signature string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe/loopwear", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)

	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("shop", "loopwear")
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func eventPayload(id, eventType string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":   id,
		"type": eventType,
		"data": map[string]any{"object": map[string]any{"id": "cs_1"}},
	})
	return payload
}

func TestWebhookReceiveDispatchesVerifiedEvent(t *testing.T) {
	store := idempotency.NewMemoryStore()

	dispatchedShop, dispatchedType := "", ""
	dispatcher := &stubDispatcher{fn: func(ctx context.Context, shop string, event stripe.Event) error {
		dispatchedShop = shop
		dispatchedType = string(event.Type)
		return nil
	}}

	handlers, err := NewWebhookHandlers(WebhookHandlersDeps{
		Dispatcher:    dispatcher,
		Store:         store,
		SigningSecret: testSigningSecret,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := eventPayload("evt_1", "checkout.session.completed")
	req := webhookRequest(t, payload, signPayload(testSigningSecret, payload, time.Now()))
	rr := httptest.NewRecorder()

	handlers.receive(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if dispatchedShop != "loopwear" || dispatchedType != "checkout.session.completed" {
		t.Fatalf("unexpected dispatch: shop=%q type=%q", dispatchedShop, dispatchedType)
	}

	// A completed event must be marked so redeliveries are acknowledged.
	reservation, err := store.Reserve(context.Background(), "evt_1", "checkout.session.completed", time.Now(), idempotency.DefaultTTL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reservation.State != idempotency.ReservationStateProcessed {
		t.Fatalf("expected processed reservation, got %v", reservation.State)
	}
}

func TestWebhookReceiveRejectsBadSignature(t *testing.T) {
	handlers, err := NewWebhookHandlers(WebhookHandlersDeps{
		Dispatcher: &stubDispatcher{fn: func(ctx context.Context, shop string, event stripe.Event) error {
			t.Fatal("unexpected dispatch")
			return nil
		}},
		Store:         idempotency.NewMemoryStore(),
		SigningSecret: testSigningSecret,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := eventPayload("evt_1", "checkout.session.completed")
	req := webhookRequest(t, payload, signPayload("whsec_other", payload, time.Now()))
	rr := httptest.NewRecorder()

	handlers.receive(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestWebhookReceiveAcknowledgesDuplicates(t *testing.T) {
	store := idempotency.NewMemoryStore()
	now := time.Now()
	if _, err := store.Reserve(context.Background(), "evt_1", "charge.succeeded", now, idempotency.DefaultTTL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.MarkProcessed(context.Background(), "evt_1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handlers, err := NewWebhookHandlers(WebhookHandlersDeps{
		Dispatcher: &stubDispatcher{fn: func(ctx context.Context, shop string, event stripe.Event) error {
			t.Fatal("duplicates must not be reprocessed")
			return nil
		}},
		Store:         store,
		SigningSecret: testSigningSecret,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := eventPayload("evt_1", "charge.succeeded")
	req := webhookRequest(t, payload, signPayload(testSigningSecret, payload, time.Now()))
	rr := httptest.NewRecorder()

	handlers.receive(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["duplicate"] != true {
		t.Fatalf("expected duplicate acknowledgement, got %v", body)
	}
}

func TestWebhookReceiveReleasesReservationOnFailure(t *testing.T) {
	store := idempotency.NewMemoryStore()

	handlers, err := NewWebhookHandlers(WebhookHandlersDeps{
		Dispatcher: &stubDispatcher{fn: func(ctx context.Context, shop string, event stripe.Event) error {
			return errors.New("downstream unavailable")
		}},
		Store:         store,
		SigningSecret: testSigningSecret,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := eventPayload("evt_1", "charge.refunded")
	req := webhookRequest(t, payload, signPayload(testSigningSecret, payload, time.Now()))
	rr := httptest.NewRecorder()

	handlers.receive(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}

	// The reservation must be gone so the provider's retry can reprocess.
	reservation, err := store.Reserve(context.Background(), "evt_1", "charge.refunded", time.Now(), idempotency.DefaultTTL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reservation.State != idempotency.ReservationStateNew {
		t.Fatalf("expected a fresh reservation after release, got %v", reservation.State)
	}
}

package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"github.com/loopwear/api/internal/platform/httpx"
	"github.com/loopwear/api/internal/platform/idempotency"
	"github.com/loopwear/api/internal/platform/requestctx"
)

// maxWebhookBodyBytes caps provider payloads; Stripe documents 64 KiB.
const maxWebhookBodyBytes = 64 * 1024

// EventDispatcher routes a verified provider event to its handler.
type EventDispatcher interface {
	Dispatch(ctx context.Context, shop string, event stripe.Event) error
}

// WebhookHandlersDeps bundles dependencies for the webhook endpoint.
type WebhookHandlersDeps struct {
	Dispatcher EventDispatcher
	Store      idempotency.Store
	// SigningSecret verifies the Stripe-Signature header.
	SigningSecret string
	// TTL bounds how long processed-event records are retained. Defaults to
	// idempotency.DefaultTTL.
	TTL   time.Duration
	Clock func() time.Time
}

// WebhookHandlers receives provider webhook deliveries: verify the signature,
// dedup by event id, dispatch, acknowledge.
type WebhookHandlers struct {
	dispatcher EventDispatcher
	store      idempotency.Store
	secret     string
	ttl        time.Duration
	clock      func() time.Time
}

// NewWebhookHandlers validates dependencies and constructs the handler.
func NewWebhookHandlers(deps WebhookHandlersDeps) (*WebhookHandlers, error) {
	if deps.Dispatcher == nil {
		return nil, errors.New("handlers: event dispatcher is required")
	}
	if deps.Store == nil {
		return nil, errors.New("handlers: idempotency store is required")
	}
	if strings.TrimSpace(deps.SigningSecret) == "" {
		return nil, errors.New("handlers: webhook signing secret is required")
	}

	ttl := deps.TTL
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &WebhookHandlers{
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
		secret:     deps.SigningSecret,
		ttl:        ttl,
		clock:      func() time.Time { return clock().UTC() },
	}, nil
}

// Routes registers the provider webhook endpoint.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe/{shop}", h.receive)
}

// receive processes one webhook delivery. The provider retries anything that
// is not acknowledged with a 2xx, so failures must map to the right class:
// bad signatures are rejected for good, handler errors ask for a retry, and
// duplicates are acknowledged without reprocessing.
func (h *WebhookHandlers) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	shop := strings.TrimSpace(chi.URLParam(r, "shop"))
	if shop == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shop is required", http.StatusBadRequest))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.secret)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	reservation, err := h.store.Reserve(ctx, event.ID, string(event.Type), h.clock(), h.ttl)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("event_store_unavailable", "unable to record event delivery", http.StatusInternalServerError))
		return
	}

	switch reservation.State {
	case idempotency.ReservationStateProcessed, idempotency.ReservationStatePending:
		// At-least-once delivery: this event is handled or in flight elsewhere.
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
		return
	}

	if err := h.dispatcher.Dispatch(ctx, shop, event); err != nil {
		requestctx.Logger(ctx).Warn("webhook event failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		// Drop the reservation so the provider's retry can reprocess.
		if releaseErr := h.store.Release(ctx, event.ID); releaseErr != nil && !errors.Is(releaseErr, idempotency.ErrUnknownEvent) {
			requestctx.Logger(ctx).Warn("webhook reservation release failed",
				zap.String("event_id", event.ID),
				zap.Error(releaseErr),
			)
		}
		httpx.WriteError(ctx, w, httpx.NewError("event_failed", "event processing failed", http.StatusInternalServerError))
		return
	}

	if err := h.store.MarkProcessed(ctx, event.ID, h.clock()); err != nil {
		// Handlers are idempotent, so a redelivery after this failure is safe.
		requestctx.Logger(ctx).Warn("webhook completion mark failed",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"received": true})
}

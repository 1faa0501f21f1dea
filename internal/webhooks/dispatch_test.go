package webhooks

import (
	"context"
	"testing"

	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/services"
)

func TestDispatcherRoutesCheckoutCompleted(t *testing.T) {
	fixture := newFixture()

	created := false
	fixture.orders.createFn = func(ctx context.Context, input services.CreateOrderInput) (*domain.Order, error) {
		created = true
		if input.SessionID != "cs_1" {
			t.Fatalf("expected session cs_1, got %q", input.SessionID)
		}
		return &domain.Order{ID: "ord_1"}, nil
	}

	handlers, err := fixture.handlers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dispatcher := NewDispatcher(handlers)

	event := makeEvent(EventCheckoutCompleted, `{"id":"cs_1","currency":"eur"}`)
	if err := dispatcher.Dispatch(context.Background(), "loopwear", event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected the checkout handler to run")
	}
}

func TestDispatcherRoutesFraudWarningFamily(t *testing.T) {
	fixture := newFixture()

	updated := false
	fixture.risk.updateFn = func(ctx context.Context, shop, sessionID string, update services.RiskUpdate) (*domain.Order, error) {
		updated = true
		return nil, nil
	}

	handlers, err := fixture.handlers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dispatcher := NewDispatcher(handlers)

	event := makeEvent("radar.early_fraud_warning.created", `{"id":"issfr_1","charge":{"id":"ch_1","outcome":{"risk_level":"elevated","risk_score":40}}}`)
	if err := dispatcher.Dispatch(context.Background(), "loopwear", event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated {
		t.Fatal("expected the fraud warning handler to run")
	}
}

func TestDispatcherAcceptsUnknownEvents(t *testing.T) {
	fixture := newFixture()
	fixture.orders.createFn = func(ctx context.Context, input services.CreateOrderInput) (*domain.Order, error) {
		t.Fatal("unexpected order creation")
		return nil, nil
	}
	fixture.risk.updateFn = func(ctx context.Context, shop, sessionID string, update services.RiskUpdate) (*domain.Order, error) {
		t.Fatal("unexpected risk update")
		return nil, nil
	}

	handlers, err := fixture.handlers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dispatcher := NewDispatcher(handlers)

	event := makeEvent("customer.created", `{"id":"cus_1"}`)
	if err := dispatcher.Dispatch(context.Background(), "loopwear", event); err != nil {
		t.Fatalf("unknown events must be acknowledged, got %v", err)
	}
}

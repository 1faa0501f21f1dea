package services

import (
	"context"
	"testing"
	"time"

	"github.com/loopwear/api/internal/domain"
)

func TestSetPaymentStatusRequiresBothIDs(t *testing.T) {
	writes := 0
	users := &stubUserRepository{
		setPaymentStatusFn: func(context.Context, string, string, string, string, time.Time) error {
			writes++
			return nil
		},
	}

	svc, err := NewSubscriptionService(SubscriptionServiceDeps{Users: users})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx := context.Background()
	if err := svc.SetPaymentStatus(ctx, "loopwear", "", "sub_1", "succeeded"); err != nil {
		t.Fatalf("missing customer: %v", err)
	}
	if err := svc.SetPaymentStatus(ctx, "loopwear", "cus_1", "", "succeeded"); err != nil {
		t.Fatalf("missing subscription: %v", err)
	}
	if writes != 0 {
		t.Fatalf("missing ids must be a silent no-op, wrote %d times", writes)
	}

	if err := svc.SetPaymentStatus(ctx, "loopwear", "cus_1", "sub_1", "failed"); err != nil {
		t.Fatalf("set payment status: %v", err)
	}
	if writes != 1 {
		t.Fatalf("expected one write, got %d", writes)
	}
}

func TestSyncSubscriptionStoresDeletionMarker(t *testing.T) {
	var gotSubscription string
	users := &stubUserRepository{
		setSubscriptionIDFn: func(_ context.Context, _, _, subscriptionID string, _ time.Time) error {
			gotSubscription = subscriptionID
			return nil
		},
	}

	svc, err := NewSubscriptionService(SubscriptionServiceDeps{Users: users})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.SyncSubscription(context.Background(), "loopwear", "cus_1", domain.SubscriptionNone); err != nil {
		t.Fatalf("sync subscription: %v", err)
	}
	if gotSubscription != domain.SubscriptionNone {
		t.Fatalf("subscription id = %q, want %q", gotSubscription, domain.SubscriptionNone)
	}
}

package webhooks

import (
	"context"
	"testing"

	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/payments"
	"github.com/loopwear/api/internal/services"
)

func TestReviewOpenedFetchesBareChargeAndFlags(t *testing.T) {
	fixture := newFixture()
	fixture.provider.retrieveChargeFn = func(ctx context.Context, chargeID string) (payments.Charge, error) {
		if chargeID != "ch_1" {
			t.Fatalf("expected lookup of ch_1, got %q", chargeID)
		}
		return payments.Charge{ID: chargeID, InvoiceID: "in_1"}, nil
	}

	flaggedKey := ""
	fixture.risk.flagFn = func(ctx context.Context, shop, sessionID string) (*domain.Order, error) {
		flaggedKey = sessionID
		return &domain.Order{ID: "ord_1"}, nil
	}

	handlers, err := fixture.handlers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Review payloads reference the charge by bare id.
	event := makeEvent(EventReviewOpened, `{"id":"prv_1","charge":"ch_1"}`)
	if err := handlers.ReviewOpened(context.Background(), "loopwear", event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flaggedKey != "in_1" {
		t.Fatalf("expected invoice key in_1, got %q", flaggedKey)
	}
}

func TestReviewClosedClearsFlagWithOutcome(t *testing.T) {
	fixture := newFixture()

	var got services.RiskUpdate
	fixture.risk.updateFn = func(ctx context.Context, shop, sessionID string, update services.RiskUpdate) (*domain.Order, error) {
		got = update
		return &domain.Order{ID: "ord_1"}, nil
	}

	handlers, err := fixture.handlers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := `{"id":"prv_1","charge":{"id":"ch_1","invoice":"in_1","outcome":{"risk_level":"normal","risk_score":12}}}`
	event := makeEvent(EventReviewClosed, payload)
	if err := handlers.ReviewClosed(context.Background(), "loopwear", event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.FlaggedForReview == nil || *got.FlaggedForReview {
		t.Fatalf("expected the review flag cleared, got %+v", got.FlaggedForReview)
	}
	if got.Level == nil || *got.Level != domain.RiskLevelNormal {
		t.Fatalf("expected normal level, got %+v", got.Level)
	}
	if got.Score == nil || *got.Score != 12 {
		t.Fatalf("expected score 12, got %+v", got.Score)
	}
}

func TestReviewClosedPersistsZeroRiskScore(t *testing.T) {
	fixture := newFixture()

	var got services.RiskUpdate
	fixture.risk.updateFn = func(ctx context.Context, shop, sessionID string, update services.RiskUpdate) (*domain.Order, error) {
		got = update
		return &domain.Order{ID: "ord_1"}, nil
	}

	handlers, err := fixture.handlers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The lowest possible score is still an outcome worth recording.
	payload := `{"id":"prv_1","charge":{"id":"ch_1","invoice":"in_1","outcome":{"risk_level":"normal","risk_score":0}}}`
	event := makeEvent(EventReviewClosed, payload)
	if err := handlers.ReviewClosed(context.Background(), "loopwear", event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Score == nil || *got.Score != 0 {
		t.Fatalf("expected score 0 persisted, got %+v", got.Score)
	}
	if got.FlaggedForReview == nil || *got.FlaggedForReview {
		t.Fatalf("expected the review flag cleared, got %+v", got.FlaggedForReview)
	}
}

func TestReviewOpenedIgnoresMissingCharge(t *testing.T) {
	fixture := newFixture()
	fixture.risk.flagFn = func(ctx context.Context, shop, sessionID string) (*domain.Order, error) {
		t.Fatal("unexpected flag")
		return nil, nil
	}

	handlers, err := fixture.handlers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := makeEvent(EventReviewOpened, `{"id":"prv_1"}`)
	if err := handlers.ReviewOpened(context.Background(), "loopwear", event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

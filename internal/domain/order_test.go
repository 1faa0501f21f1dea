package domain

import (
	"testing"
	"time"
)

func TestNormalizeMapsEmptyToUnset(t *testing.T) {
	empty := ""
	blank := "  "
	zero := time.Time{}
	negative := int64(-5)

	order := Order{
		Shop:           "boutique-a",
		SessionID:      "cs_123",
		Currency:       "usd",
		Deposit:        -10,
		TrackingNumber: &empty,
		LabelURL:       &blank,
		CustomerID:     &empty,
		FulfilledAt:    &zero,
		DiscountAmount: &negative,
	}

	got := Normalize(order)

	if got.Currency != "USD" {
		t.Fatalf("expected currency USD got %q", got.Currency)
	}
	if got.Deposit != 0 {
		t.Fatalf("expected negative deposit clamped to 0 got %d", got.Deposit)
	}
	if got.TrackingNumber != nil {
		t.Fatalf("expected empty tracking number normalized to nil")
	}
	if got.LabelURL != nil {
		t.Fatalf("expected blank label url normalized to nil")
	}
	if got.CustomerID != nil {
		t.Fatalf("expected empty customer id normalized to nil")
	}
	if got.FulfilledAt != nil {
		t.Fatalf("expected zero fulfilledAt normalized to nil")
	}
	if got.DiscountAmount == nil || *got.DiscountAmount != 0 {
		t.Fatalf("expected negative discount clamped to 0 got %v", got.DiscountAmount)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	tracking := " TRK-100 "
	level := RiskLevel("")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	order := Order{
		Shop:           "boutique-a",
		SessionID:      "cs_456",
		Currency:       "eur",
		TrackingNumber: &tracking,
		RiskLevel:      &level,
		ShippedAt:      &now,
	}

	once := Normalize(order)
	twice := Normalize(once)

	if once.TrackingNumber == nil || *once.TrackingNumber != "TRK-100" {
		t.Fatalf("expected trimmed tracking number got %v", once.TrackingNumber)
	}
	if once.RiskLevel != nil {
		t.Fatalf("expected empty risk level normalized to nil")
	}
	if twice.Currency != once.Currency {
		t.Fatalf("normalize not idempotent for currency: %q vs %q", twice.Currency, once.Currency)
	}
	if (twice.TrackingNumber == nil) != (once.TrackingNumber == nil) || *twice.TrackingNumber != *once.TrackingNumber {
		t.Fatalf("normalize not idempotent for tracking number")
	}
	if twice.ShippedAt == nil || !twice.ShippedAt.Equal(*once.ShippedAt) {
		t.Fatalf("normalize not idempotent for shippedAt")
	}
}

func TestRefundedDefaultsToZero(t *testing.T) {
	var order Order
	if order.Refunded() != 0 {
		t.Fatalf("expected unset refund total to read as 0")
	}
	total := int64(25)
	order.RefundTotal = &total
	if order.Refunded() != 25 {
		t.Fatalf("expected refund total 25 got %d", order.Refunded())
	}
}

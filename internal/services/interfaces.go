package services

import (
	"context"

	"github.com/loopwear/api/internal/domain"
)

// CreateOrderInput carries the fields for an order insert. Optional fields are
// pointers; nil means the value never arrived and is omitted from storage.
type CreateOrderInput struct {
	Shop      string
	SessionID string

	Deposit  int64
	Currency string

	TotalAmount    *int64
	SubtotalAmount *int64
	TaxAmount      *int64
	ShippingAmount *int64
	DiscountAmount *int64

	CustomerID            *string
	StripeCustomerID      *string
	StripePaymentIntentID *string
	CartID                *string
	OrderRef              *string
}

// ExternalOrderInput is the loosely-typed import payload. Amount fields accept
// strings or numbers; invalid or missing amounts default to zero.
type ExternalOrderInput struct {
	Shop      string
	SessionID string

	AmountTotal any
	Deposit     any
	Currency    string

	CustomerID string
	CartID     string
	OrderRef   string
}

// RiskUpdate carries a partial fraud-risk mutation. Nil fields are left
// untouched so handlers never clobber signals they did not receive.
type RiskUpdate struct {
	Level            *domain.RiskLevel
	Score            *float64
	FlaggedForReview *bool
}

// IsEmpty reports whether the update would change nothing.
func (u RiskUpdate) IsEmpty() bool {
	return u.Level == nil && u.Score == nil && u.FlaggedForReview == nil
}

// PaymentLink carries provider linkage resolved from a succeeded payment
// intent. Nil fields were not resolved and are left untouched.
type PaymentLink struct {
	StripeCustomerID           *string
	StripeChargeID             *string
	StripeBalanceTransactionID *string
}

// IsEmpty reports whether the link carries nothing to back-fill.
func (l PaymentLink) IsEmpty() bool {
	return l.StripeCustomerID == nil && l.StripeChargeID == nil && l.StripeBalanceTransactionID == nil
}

// OrderService owns idempotent order creation and the read surface.
//
// Mutating operations distinguish "legitimately absent" (nil, nil) from a
// store fault (nil, error).
type OrderService interface {
	// CreateOrder inserts a new order. A duplicate (shop, sessionID) converges
	// onto the existing record via a compensating update and returns it;
	// analytics and subscription-usage side effects fire only on first insert.
	CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error)
	// ImportExternalOrder coerces a loosely-typed payload and delegates to CreateOrder.
	ImportExternalOrder(ctx context.Context, input ExternalOrderInput) (*domain.Order, error)
	// LinkPaymentIntent back-fills provider linkage onto every order matching
	// the payment intent, overwriting only the fields that were resolved.
	// Reports how many orders matched.
	LinkPaymentIntent(ctx context.Context, shop, paymentIntentID string, link PaymentLink) (int, error)
	// ListOrders returns the shop's orders, normalized, newest first.
	ListOrders(ctx context.Context, shop string) ([]domain.Order, error)
	// OrdersForCustomer returns the customer's orders for the shop.
	OrdersForCustomer(ctx context.Context, shop, customerID string) ([]domain.Order, error)
}

// StatusService owns lifecycle transitions keyed by (shop, sessionID), or by
// (shop, trackingNumber) for return status.
type StatusService interface {
	// MarkFulfilled stamps fulfilledAt. A missing order is a store fault.
	MarkFulfilled(ctx context.Context, shop, sessionID string) (*domain.Order, error)
	// MarkShipped stamps shippedAt. A missing order is a store fault.
	MarkShipped(ctx context.Context, shop, sessionID string) (*domain.Order, error)
	// MarkDelivered stamps deliveredAt. A missing order is a store fault.
	MarkDelivered(ctx context.Context, shop, sessionID string) (*domain.Order, error)
	// MarkCancelled stamps cancelledAt. A missing order is a store fault.
	MarkCancelled(ctx context.Context, shop, sessionID string) (*domain.Order, error)
	// MarkReturned stamps returnedAt, recording damageFee only when supplied.
	// A missing order yields (nil, nil).
	MarkReturned(ctx context.Context, shop, sessionID string, damageFee *int64) (*domain.Order, error)
	// SetReturnTracking records the return label atomically. A missing order yields (nil, nil).
	SetReturnTracking(ctx context.Context, shop, sessionID, trackingNumber, labelURL string) (*domain.Order, error)
	// SetReturnStatus updates the order addressed by its tracking number.
	// A missing order yields (nil, nil).
	SetReturnStatus(ctx context.Context, shop, trackingNumber string, status domain.ReturnStatus) (*domain.Order, error)
}

// RefundService owns the refund computation and the monotonic refundTotal.
type RefundService interface {
	// MarkRefunded stamps refundedAt and merges the optional risk fields in the
	// same update. A missing order yields (nil, nil).
	MarkRefunded(ctx context.Context, shop, sessionID string, risk RiskUpdate) (*domain.Order, error)
	// RefundOrder refunds min(requested, remaining) against the provider and
	// accumulates refundTotal. A nil amount requests the full remaining refund.
	// A missing order yields (nil, nil) and no provider call.
	RefundOrder(ctx context.Context, shop, sessionID string, amount *int64) (*domain.Order, error)
}

// RiskService records provider fraud signals on orders.
type RiskService interface {
	// FlagForReview unconditionally sets flaggedForReview. A missing order yields (nil, nil).
	FlagForReview(ctx context.Context, shop, sessionID string) (*domain.Order, error)
	// UpdateRisk merges only the supplied risk fields. A missing order yields (nil, nil).
	UpdateRisk(ctx context.Context, shop, sessionID string, update RiskUpdate) (*domain.Order, error)
}

// SubscriptionService maintains per-customer subscription state driven by
// invoice and subscription webhooks.
type SubscriptionService interface {
	// SetPaymentStatus records the invoice outcome for (customer, subscription).
	SetPaymentStatus(ctx context.Context, shop, stripeCustomerID, subscriptionID, status string) error
	// SyncSubscription stores the customer's current subscription id;
	// deletion is synced as domain.SubscriptionNone.
	SyncSubscription(ctx context.Context, shop, stripeCustomerID, subscriptionID string) error
}

package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/loopwear/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err categorises as a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err categorises as a uniqueness or precondition conflict.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// OrderPatch carries a partial order update. Nil fields are left untouched.
type OrderPatch struct {
	Currency       *string
	Deposit        *int64
	TotalAmount    *int64
	SubtotalAmount *int64
	TaxAmount      *int64
	ShippingAmount *int64
	DiscountAmount *int64
	DamageFee      *int64

	FulfilledAt *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
	ReturnedAt  *time.Time
	RefundedAt  *time.Time

	TrackingNumber *string
	LabelURL       *string
	ReturnStatus   *domain.ReturnStatus

	RiskLevel        *domain.RiskLevel
	RiskScore        *float64
	FlaggedForReview *bool

	CustomerID                 *string
	StripeCustomerID           *string
	StripePaymentIntentID      *string
	StripeChargeID             *string
	StripeBalanceTransactionID *string
	CartID                     *string
	OrderRef                   *string
}

// IsEmpty reports whether the patch would change nothing.
func (p OrderPatch) IsEmpty() bool {
	return p == (OrderPatch{})
}

// OrderRepository persists rental orders keyed by (shop, sessionID) with a
// secondary (shop, trackingNumber) identity.
type OrderRepository interface {
	// Create inserts a new order. A duplicate (shop, sessionID) surfaces as a conflict.
	Create(ctx context.Context, order domain.Order) error
	// Update applies the patch to the order and returns the updated record.
	// A missing order surfaces as not-found.
	Update(ctx context.Context, shop, sessionID string, patch OrderPatch) (*domain.Order, error)
	// UpdateByTrackingNumber applies the patch to the order addressed by its
	// return tracking number.
	UpdateByTrackingNumber(ctx context.Context, shop, trackingNumber string, patch OrderPatch) (*domain.Order, error)
	// UpdateManyByPaymentIntent patches every order linked to the payment
	// intent and reports how many records matched.
	UpdateManyByPaymentIntent(ctx context.Context, shop, paymentIntentID string, patch OrderPatch) (int, error)
	// AddRefund accumulates amount onto refundTotal and stamps refundedAt
	// inside a transaction, so concurrent refunds cannot overwrite each other.
	AddRefund(ctx context.Context, shop, sessionID string, amount int64, refundedAt time.Time) (*domain.Order, error)
	// FindBySession returns the order or nil when no record exists.
	FindBySession(ctx context.Context, shop, sessionID string) (*domain.Order, error)
	// ListByShop returns all orders for the shop, newest first.
	ListByShop(ctx context.Context, shop string) ([]domain.Order, error)
	// ListByCustomer returns the customer's orders for the shop, newest first.
	ListByCustomer(ctx context.Context, shop, customerID string) ([]domain.Order, error)
}

// ShopSettingsRepository resolves per-tenant configuration.
type ShopSettingsRepository interface {
	// Get returns the shop settings, or zero-valued defaults when the shop has none stored.
	Get(ctx context.Context, shop string) (domain.ShopSettings, error)
}

// UserRepository stores subscription state per (shop, provider customer).
type UserRepository interface {
	// SetSubscriptionID records the customer's current subscription id.
	SetSubscriptionID(ctx context.Context, shop, stripeCustomerID, subscriptionID string, now time.Time) error
	// SetSubscriptionPaymentStatus records the outcome of the latest subscription invoice.
	SetSubscriptionPaymentStatus(ctx context.Context, shop, stripeCustomerID, subscriptionID, status string, now time.Time) error
}

// SubscriptionUsageRepository maintains per-month usage counters for
// subscription billing.
type SubscriptionUsageRepository interface {
	// Increment bumps the counter for (shop, customerID) in the given
	// YYYY-MM period and returns the new value.
	Increment(ctx context.Context, shop, customerID, period string) (int64, error)
}

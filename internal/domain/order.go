package domain

import (
	"strings"
	"time"
)

// RiskLevel is the ordered fraud-risk category reported by the payment provider.
type RiskLevel string

const (
	// RiskLevelNormal is the provider's default risk assessment.
	RiskLevelNormal RiskLevel = "normal"
	// RiskLevelElevated indicates the provider recommends manual review.
	RiskLevelElevated RiskLevel = "elevated"
	// RiskLevelHighest is the provider's strongest fraud signal.
	RiskLevelHighest RiskLevel = "highest"
)

// ReturnStatus tracks the carrier-reported state of an inbound return shipment.
type ReturnStatus string

const (
	// ReturnStatusLabelCreated means a return label exists but the carrier has not scanned it.
	ReturnStatusLabelCreated ReturnStatus = "label_created"
	// ReturnStatusInTransit means the return parcel is moving through the carrier network.
	ReturnStatusInTransit ReturnStatus = "in_transit"
	// ReturnStatusDelivered means the return parcel arrived back at the warehouse.
	ReturnStatusDelivered ReturnStatus = "delivered"
)

// Order is the canonical rental-order record reconciled from payment-provider
// webhook events. Identity is (Shop, SessionID); return-status updates address
// the record through the secondary (Shop, TrackingNumber) identity.
//
// Money fields hold non-negative major currency units; conversion to the
// provider's minor units happens only at the provider API boundary. Optional
// fields are pointers: nil means the value never arrived, which is distinct
// from an explicit zero.
type Order struct {
	ID        string
	Shop      string
	SessionID string

	Currency       string
	Deposit        int64
	TotalAmount    *int64
	SubtotalAmount *int64
	TaxAmount      *int64
	ShippingAmount *int64
	DiscountAmount *int64
	RefundTotal    *int64
	DamageFee      *int64

	StartedAt   time.Time
	FulfilledAt *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
	ReturnedAt  *time.Time
	RefundedAt  *time.Time

	TrackingNumber *string
	LabelURL       *string
	ReturnStatus   *ReturnStatus

	RiskLevel        *RiskLevel
	RiskScore        *float64
	FlaggedForReview bool

	CustomerID                 *string
	StripeCustomerID           *string
	StripePaymentIntentID      *string
	StripeChargeID             *string
	StripeBalanceTransactionID *string
	CartID                     *string
	OrderRef                   *string
}

// Refunded reports the cumulative refunded amount, treating an unset total as zero.
func (o Order) Refunded() int64 {
	if o.RefundTotal == nil {
		return 0
	}
	return *o.RefundTotal
}

// Normalize maps stored-null artifacts back to "unset" so downstream logic can
// rely on a single absence check: empty strings become nil pointers, zero-value
// timestamps become nil, and the currency code is uppercased. Applying
// Normalize twice yields the same order.
func Normalize(o Order) Order {
	o.Currency = strings.ToUpper(strings.TrimSpace(o.Currency))

	o.TrackingNumber = normalizeString(o.TrackingNumber)
	o.LabelURL = normalizeString(o.LabelURL)
	o.CustomerID = normalizeString(o.CustomerID)
	o.StripeCustomerID = normalizeString(o.StripeCustomerID)
	o.StripePaymentIntentID = normalizeString(o.StripePaymentIntentID)
	o.StripeChargeID = normalizeString(o.StripeChargeID)
	o.StripeBalanceTransactionID = normalizeString(o.StripeBalanceTransactionID)
	o.CartID = normalizeString(o.CartID)
	o.OrderRef = normalizeString(o.OrderRef)

	if o.ReturnStatus != nil && strings.TrimSpace(string(*o.ReturnStatus)) == "" {
		o.ReturnStatus = nil
	}
	if o.RiskLevel != nil && strings.TrimSpace(string(*o.RiskLevel)) == "" {
		o.RiskLevel = nil
	}

	o.FulfilledAt = normalizeTime(o.FulfilledAt)
	o.ShippedAt = normalizeTime(o.ShippedAt)
	o.DeliveredAt = normalizeTime(o.DeliveredAt)
	o.CancelledAt = normalizeTime(o.CancelledAt)
	o.ReturnedAt = normalizeTime(o.ReturnedAt)
	o.RefundedAt = normalizeTime(o.RefundedAt)

	if o.Deposit < 0 {
		o.Deposit = 0
	}
	o.TotalAmount = normalizeAmount(o.TotalAmount)
	o.SubtotalAmount = normalizeAmount(o.SubtotalAmount)
	o.TaxAmount = normalizeAmount(o.TaxAmount)
	o.ShippingAmount = normalizeAmount(o.ShippingAmount)
	o.DiscountAmount = normalizeAmount(o.DiscountAmount)
	o.DamageFee = normalizeAmount(o.DamageFee)

	return o
}

func normalizeString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	if trimmed == *v {
		return v
	}
	return &trimmed
}

func normalizeTime(v *time.Time) *time.Time {
	if v == nil || v.IsZero() {
		return nil
	}
	return v
}

func normalizeAmount(v *int64) *int64 {
	if v == nil {
		return nil
	}
	if *v < 0 {
		zero := int64(0)
		return &zero
	}
	return v
}

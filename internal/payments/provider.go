package payments

import (
	"context"
	"errors"
)

// ErrNoPaymentIntent is returned when an operation needs a payment intent the
// provider record does not carry.
var ErrNoPaymentIntent = errors.New("payments: no payment intent")

// CheckoutSession is the provider view of a checkout session used during
// reconciliation.
type CheckoutSession struct {
	ID              string
	PaymentIntentID string
	CustomerID      string
	Status          string
}

// PaymentIntent carries the intent fields needed to trace a charge back to its
// originating session.
type PaymentIntent struct {
	ID             string
	LatestChargeID string
	InvoiceID      string
	CustomerID     string
}

// Charge is the provider view of a captured charge, including the fraud
// outcome attached by the PSP. RiskScore is nil when the charge carries no
// outcome; a score of zero is a legitimate lowest-risk reading.
type Charge struct {
	ID                   string
	PaymentIntentID      string
	InvoiceID            string
	CustomerID           string
	BalanceTransactionID string
	Amount               int64
	AmountRefunded       int64
	Currency             string
	RiskLevel            string
	RiskScore            *int64
}

// Refund reports the outcome of a refund attempt.
type Refund struct {
	ID       string
	ChargeID string
	Amount   int64
	Status   string
}

// Review reports a manual fraud review opened on a payment.
type Review struct {
	ID            string
	PaymentIntent string
	Open          bool
}

// RefundParams describes a refund attempt against a payment intent. Amount is
// in the smallest currency unit.
type RefundParams struct {
	PaymentIntentID string
	Amount          int64
	Reason          string
	IdempotencyKey  string
}

// Provider defines the PSP operations the reconciliation flows depend on.
type Provider interface {
	// RetrieveSession fetches a checkout session with its payment intent resolved.
	RetrieveSession(ctx context.Context, sessionID string) (CheckoutSession, error)
	// RetrievePaymentIntent fetches a payment intent with its latest charge resolved.
	RetrievePaymentIntent(ctx context.Context, intentID string) (PaymentIntent, error)
	// RetrieveCharge fetches a charge including its fraud outcome.
	RetrieveCharge(ctx context.Context, chargeID string) (Charge, error)
	// CreateRefund issues a refund against the charge behind a payment intent.
	CreateRefund(ctx context.Context, req RefundParams) (Refund, error)
	// OpenReview opens a manual fraud review on the payment.
	OpenReview(ctx context.Context, paymentIntentID string) (Review, error)
	// RequireStrongAuth forces a 3DS challenge on the next confirmation attempt.
	RequireStrongAuth(ctx context.Context, paymentIntentID string) error
}

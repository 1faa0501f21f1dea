package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
)

// Event types this service reacts to. Anything else is acknowledged and
// dropped.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventChargeSucceeded      = "charge.succeeded"
	EventChargeRefunded       = "charge.refunded"
	EventPaymentSucceeded     = "payment_intent.succeeded"
	EventPaymentFailed        = "payment_intent.payment_failed"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventReviewOpened         = "review.opened"
	EventReviewClosed         = "review.closed"

	// FraudWarningPrefix matches the whole radar early-fraud-warning family.
	FraudWarningPrefix = "radar.early_fraud_warning."
)

// ErrEmptyPayload indicates the event carried no data object to decode.
var ErrEmptyPayload = errors.New("webhooks: empty event payload")

// decodePayload narrows the event's raw data object into the typed shape the
// handler expects. Decoding happens once, at the handler boundary.
func decodePayload(event stripe.Event, target any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(event.Data.Raw, target); err != nil {
		return fmt.Errorf("webhooks: decode %s payload: %w", string(event.Type), err)
	}
	return nil
}

func decodeSession(event stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := decodePayload(event, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func decodeCharge(event stripe.Event) (*stripe.Charge, error) {
	var charge stripe.Charge
	if err := decodePayload(event, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func decodePaymentIntent(event stripe.Event) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := decodePayload(event, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func decodeInvoice(event stripe.Event) (*stripe.Invoice, error) {
	var invoice stripe.Invoice
	if err := decodePayload(event, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func decodeSubscription(event stripe.Event) (*stripe.Subscription, error) {
	var subscription stripe.Subscription
	if err := decodePayload(event, &subscription); err != nil {
		return nil, err
	}
	return &subscription, nil
}

func decodeReview(event stripe.Event) (*stripe.Review, error) {
	var review stripe.Review
	if err := decodePayload(event, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

func decodeFraudWarning(event stripe.Event) (*stripe.RadarEarlyFraudWarning, error) {
	var warning stripe.RadarEarlyFraudWarning
	if err := decodePayload(event, &warning); err != nil {
		return nil, err
	}
	return &warning, nil
}

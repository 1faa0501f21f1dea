package webhooks

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v78"
)

// Handler processes one webhook event for a shop. Handlers own all side
// effects; routing itself is pure.
type Handler func(ctx context.Context, shop string, event stripe.Event) error

// Dispatcher routes provider event types to handlers: exact matches first,
// then the fraud-warning prefix family, then a silent no-op. Unknown events
// must be accepted, never failed, or the provider keeps retrying them.
type Dispatcher struct {
	exact        map[string]Handler
	fraudWarning Handler
	noop         Handler
}

// NewDispatcher builds the routing table over the given handler set.
func NewDispatcher(h *Handlers) *Dispatcher {
	return &Dispatcher{
		exact: map[string]Handler{
			EventCheckoutCompleted:    h.CheckoutCompleted,
			EventChargeSucceeded:      h.ChargeSucceeded,
			EventChargeRefunded:       h.ChargeRefunded,
			EventPaymentSucceeded:     h.PaymentIntentSucceeded,
			EventPaymentFailed:        h.PaymentIntentFailed,
			EventInvoicePaid:          h.InvoicePaid,
			EventInvoicePaymentFailed: h.InvoicePaymentFailed,
			EventSubscriptionUpdated:  h.SubscriptionUpdated,
			EventSubscriptionDeleted:  h.SubscriptionDeleted,
			EventReviewOpened:         h.ReviewOpened,
			EventReviewClosed:         h.ReviewClosed,
		},
		fraudWarning: h.FraudWarning,
		noop: func(context.Context, string, stripe.Event) error {
			return nil
		},
	}
}

// Resolve maps an event type to its handler. Pure: no side effects.
func (d *Dispatcher) Resolve(eventType string) Handler {
	if handler, ok := d.exact[eventType]; ok {
		return handler
	}
	if strings.HasPrefix(eventType, FraudWarningPrefix) {
		return d.fraudWarning
	}
	return d.noop
}

// Dispatch routes and runs the handler for the event.
func (d *Dispatcher) Dispatch(ctx context.Context, shop string, event stripe.Event) error {
	return d.Resolve(string(event.Type))(ctx, shop, event)
}

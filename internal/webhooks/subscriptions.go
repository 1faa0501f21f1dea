package webhooks

import (
	"context"

	"github.com/stripe/stripe-go/v78"

	"github.com/loopwear/api/internal/domain"
)

// InvoicePaid records a successful subscription payment for the customer.
func (h *Handlers) InvoicePaid(ctx context.Context, shop string, event stripe.Event) error {
	return h.invoicePaymentStatus(ctx, shop, event, "succeeded")
}

// InvoicePaymentFailed records a failed subscription payment for the customer.
func (h *Handlers) InvoicePaymentFailed(ctx context.Context, shop string, event stripe.Event) error {
	return h.invoicePaymentStatus(ctx, shop, event, "failed")
}

func (h *Handlers) invoicePaymentStatus(ctx context.Context, shop string, event stripe.Event, status string) error {
	invoice, err := decodeInvoice(event)
	if err != nil {
		return err
	}

	customerID := ""
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	subscriptionID := ""
	if invoice.Subscription != nil {
		subscriptionID = invoice.Subscription.ID
	}

	// One-off invoices carry no subscription; the service no-ops on missing ids.
	return h.subscriptions.SetPaymentStatus(ctx, shop, customerID, subscriptionID, status)
}

// SubscriptionUpdated syncs the customer's stored subscription id.
func (h *Handlers) SubscriptionUpdated(ctx context.Context, shop string, event stripe.Event) error {
	subscription, err := decodeSubscription(event)
	if err != nil {
		return err
	}

	customerID := ""
	if subscription.Customer != nil {
		customerID = subscription.Customer.ID
	}
	return h.subscriptions.SyncSubscription(ctx, shop, customerID, subscription.ID)
}

// SubscriptionDeleted clears the customer's stored subscription.
func (h *Handlers) SubscriptionDeleted(ctx context.Context, shop string, event stripe.Event) error {
	subscription, err := decodeSubscription(event)
	if err != nil {
		return err
	}

	customerID := ""
	if subscription.Customer != nil {
		customerID = subscription.Customer.ID
	}
	return h.subscriptions.SyncSubscription(ctx, shop, customerID, domain.SubscriptionNone)
}

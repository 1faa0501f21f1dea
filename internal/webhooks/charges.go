package webhooks

import (
	"context"

	"github.com/stripe/stripe-go/v78"

	"github.com/loopwear/api/internal/services"
)

// ChargeRefunded marks the matching order refunded. The refund already
// happened at the provider, so this is pure bookkeeping.
func (h *Handlers) ChargeRefunded(ctx context.Context, shop string, event stripe.Event) error {
	charge, err := decodeCharge(event)
	if err != nil {
		return err
	}

	key := h.sessionKeyForCharge(ctx, chargeView(charge))
	_, err = h.refunds.MarkRefunded(ctx, shop, key, services.RiskUpdate{})
	return err
}

// ChargeSucceeded persists the provider's fraud outcome for the charge.
func (h *Handlers) ChargeSucceeded(ctx context.Context, shop string, event stripe.Event) error {
	charge, err := decodeCharge(event)
	if err != nil {
		return err
	}

	view := chargeView(charge)
	update := riskUpdateFromCharge(view)
	if update.IsEmpty() {
		return nil
	}

	key := h.sessionKeyForCharge(ctx, view)
	_, err = h.risk.UpdateRisk(ctx, shop, key, update)
	return err
}

// PaymentIntentSucceeded persists the fraud outcome of the intent's latest
// charge and back-fills provider linkage onto every order carrying the intent.
func (h *Handlers) PaymentIntentSucceeded(ctx context.Context, shop string, event stripe.Event) error {
	intent, err := decodePaymentIntent(event)
	if err != nil {
		return err
	}

	view := chargeView(intent.LatestCharge)

	key := intent.ID
	if view.ID != "" {
		key = h.sessionKeyForCharge(ctx, view)
	}

	if update := riskUpdateFromCharge(view); !update.IsEmpty() {
		if _, err := h.risk.UpdateRisk(ctx, shop, key, update); err != nil {
			return err
		}
	}

	link := services.PaymentLink{
		StripeChargeID:             stringPtr(view.ID),
		StripeBalanceTransactionID: stringPtr(view.BalanceTransactionID),
	}
	if intent.Customer != nil {
		link.StripeCustomerID = stringPtr(intent.Customer.ID)
	} else if view.CustomerID != "" {
		link.StripeCustomerID = stringPtr(view.CustomerID)
	}

	matched, err := h.orders.LinkPaymentIntent(ctx, shop, intent.ID, link)
	if err != nil {
		return err
	}
	if matched > 0 {
		h.logger(ctx, "webhooks.intent.linked", map[string]any{
			"shop":          shop,
			"paymentIntent": intent.ID,
			"orders":        matched,
		})
	}
	return nil
}

// PaymentIntentFailed flags the matching order for manual attention.
func (h *Handlers) PaymentIntentFailed(ctx context.Context, shop string, event stripe.Event) error {
	intent, err := decodePaymentIntent(event)
	if err != nil {
		return err
	}

	key := intent.ID
	if charge := intent.LatestCharge; charge != nil && charge.Invoice != nil && charge.Invoice.ID != "" {
		key = charge.Invoice.ID
	}

	_, err = h.risk.FlagForReview(ctx, shop, key)
	return err
}

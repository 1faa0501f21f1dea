package webhooks

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v78"

	"github.com/loopwear/api/internal/services"
)

// CheckoutCompleted creates the order from the completed session and applies
// the shop's fraud controls to high-value deposits.
func (h *Handlers) CheckoutCompleted(ctx context.Context, shop string, event stripe.Event) error {
	session, err := decodeSession(event)
	if err != nil {
		return err
	}

	deposit := metadataAmount(session.Metadata, "depositTotal", "deposit")

	input := services.CreateOrderInput{
		Shop:      shop,
		SessionID: session.ID,
		Deposit:   deposit,
		Currency:  strings.ToUpper(string(session.Currency)),

		CustomerID: metadataString(session.Metadata, "customerId"),
		CartID:     metadataString(session.Metadata, "cartId"),
		OrderRef:   metadataString(session.Metadata, "orderId"),
	}
	if session.AmountTotal > 0 {
		total := majorUnits(session.AmountTotal)
		input.TotalAmount = &total
	}
	if session.AmountSubtotal > 0 {
		subtotal := majorUnits(session.AmountSubtotal)
		input.SubtotalAmount = &subtotal
	}
	if details := session.TotalDetails; details != nil {
		if details.AmountTax > 0 {
			tax := majorUnits(details.AmountTax)
			input.TaxAmount = &tax
		}
		if details.AmountShipping > 0 {
			shipping := majorUnits(details.AmountShipping)
			input.ShippingAmount = &shipping
		}
		if details.AmountDiscount > 0 {
			discount := majorUnits(details.AmountDiscount)
			input.DiscountAmount = &discount
		}
	}
	if session.Customer != nil {
		input.StripeCustomerID = stringPtr(session.Customer.ID)
	}
	if session.PaymentIntent != nil {
		input.StripePaymentIntentID = stringPtr(session.PaymentIntent.ID)
	}

	if _, err := h.orders.CreateOrder(ctx, input); err != nil {
		return err
	}

	settings, err := h.settings.Get(ctx, shop)
	if err != nil {
		return err
	}

	threshold := settings.LuxuryFeatures.FraudReviewThreshold
	if threshold <= 0 || deposit <= threshold {
		return nil
	}

	intentID := ""
	if input.StripePaymentIntentID != nil {
		intentID = *input.StripePaymentIntentID
	}
	if intentID == "" {
		resolved, err := h.provider.RetrieveSession(ctx, session.ID)
		if err != nil {
			return err
		}
		intentID = resolved.PaymentIntentID
	}

	if intentID != "" {
		if _, err := h.provider.OpenReview(ctx, intentID); err != nil {
			return err
		}
		if settings.LuxuryFeatures.RequireStrongCustomerAuth {
			if err := h.provider.RequireStrongAuth(ctx, intentID); err != nil {
				return err
			}
		}
	} else {
		h.logger(ctx, "webhooks.checkout.review_skipped", map[string]any{
			"shop":      shop,
			"sessionId": session.ID,
			"reason":    "no payment intent",
		})
	}

	if _, err := h.risk.FlagForReview(ctx, shop, session.ID); err != nil {
		return err
	}

	h.logger(ctx, "webhooks.checkout.flagged", map[string]any{
		"shop":      shop,
		"sessionId": session.ID,
		"deposit":   deposit,
		"threshold": threshold,
	})
	return nil
}

package webhooks

import (
	"context"

	"github.com/stripe/stripe-go/v78"

	"github.com/loopwear/api/internal/payments"
)

// ReviewOpened flags the order behind the reviewed charge. Risk level and
// score stay untouched; only the flag is set.
func (h *Handlers) ReviewOpened(ctx context.Context, shop string, event stripe.Event) error {
	review, err := decodeReview(event)
	if err != nil {
		return err
	}
	if review.Charge == nil || review.Charge.ID == "" {
		return nil
	}

	charge, err := h.reviewCharge(ctx, review)
	if err != nil {
		return err
	}

	key := h.sessionKeyForCharge(ctx, charge)
	_, err = h.risk.FlagForReview(ctx, shop, key)
	return err
}

// ReviewClosed persists the charge's own fraud outcome with the review flag
// explicitly cleared.
func (h *Handlers) ReviewClosed(ctx context.Context, shop string, event stripe.Event) error {
	review, err := decodeReview(event)
	if err != nil {
		return err
	}
	if review.Charge == nil || review.Charge.ID == "" {
		return nil
	}

	charge, err := h.reviewCharge(ctx, review)
	if err != nil {
		return err
	}

	update := riskUpdateFromCharge(charge)
	cleared := false
	update.FlaggedForReview = &cleared

	key := h.sessionKeyForCharge(ctx, charge)
	_, err = h.risk.UpdateRisk(ctx, shop, key, update)
	return err
}

// reviewCharge resolves the full charge behind a review. Review payloads
// embed the charge as a bare id, so the linkage and outcome come from the
// provider.
func (h *Handlers) reviewCharge(ctx context.Context, review *stripe.Review) (payments.Charge, error) {
	embedded := chargeView(review.Charge)
	if embedded.InvoiceID != "" || embedded.PaymentIntentID != "" || embedded.RiskLevel != "" {
		return embedded, nil
	}
	return h.provider.RetrieveCharge(ctx, embedded.ID)
}

package webhooks

import (
	"context"

	"github.com/stripe/stripe-go/v78"

	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/payments"
)

// FraudWarning handles the whole radar early-fraud-warning family: persist
// the charge's fraud outcome with the review flag set, and refund outright
// when the signal is strong enough.
func (h *Handlers) FraudWarning(ctx context.Context, shop string, event stripe.Event) error {
	warning, err := decodeFraudWarning(event)
	if err != nil {
		return err
	}
	if warning.Charge == nil || warning.Charge.ID == "" {
		return nil
	}

	// Warning payloads usually reference the charge by bare id; fetch the
	// full record when the outcome is missing.
	charge := chargeView(warning.Charge)
	if charge.RiskLevel == "" && charge.RiskScore == nil {
		fetched, err := h.provider.RetrieveCharge(ctx, charge.ID)
		if err != nil {
			return err
		}
		charge = fetched
	}

	update := riskUpdateFromCharge(charge)
	flagged := true
	update.FlaggedForReview = &flagged

	key := h.sessionKeyForCharge(ctx, charge)
	if _, err := h.risk.UpdateRisk(ctx, shop, key, update); err != nil {
		return err
	}

	if !shouldAutoRefund(charge) {
		return nil
	}

	h.logger(ctx, "webhooks.fraud.auto_refund", map[string]any{
		"shop":      shop,
		"sessionId": key,
		"charge":    charge.ID,
		"riskLevel": charge.RiskLevel,
		"riskScore": charge.RiskScore,
	})

	_, err = h.refunds.RefundOrder(ctx, shop, key, nil)
	return err
}

// shouldAutoRefund reports whether the fraud signal is strong enough to
// refund without waiting for a human: the highest risk tier, or a score past
// the cutoff.
func shouldAutoRefund(charge payments.Charge) bool {
	if charge.RiskLevel == string(domain.RiskLevelHighest) {
		return true
	}
	return charge.RiskScore != nil && *charge.RiskScore > riskScoreRefundCutoff
}

package webhooks

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v78"

	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/payments"
	"github.com/loopwear/api/internal/repositories"
	"github.com/loopwear/api/internal/services"
)

// riskScoreRefundCutoff is the radar score above which a fraud warning
// triggers an automatic refund. Stripe's elevated band ends at 75.
const riskScoreRefundCutoff = 75

// HandlersDeps bundles the services the per-event handlers compose.
type HandlersDeps struct {
	Orders        services.OrderService
	Refunds       services.RefundService
	Risk          services.RiskService
	Subscriptions services.SubscriptionService
	Settings      repositories.ShopSettingsRepository
	Provider      payments.Provider
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

// Handlers implements one handler per provider event type. Each handler
// decodes the payload once and composes service calls; it never talks to the
// store directly.
type Handlers struct {
	orders        services.OrderService
	refunds       services.RefundService
	risk          services.RiskService
	subscriptions services.SubscriptionService
	settings      repositories.ShopSettingsRepository
	provider      payments.Provider
	logger        func(context.Context, string, map[string]any)
}

// NewHandlers wires dependencies into the webhook handler set.
func NewHandlers(deps HandlersDeps) (*Handlers, error) {
	if deps.Orders == nil {
		return nil, errors.New("webhooks: order service is required")
	}
	if deps.Refunds == nil {
		return nil, errors.New("webhooks: refund service is required")
	}
	if deps.Risk == nil {
		return nil, errors.New("webhooks: risk service is required")
	}
	if deps.Subscriptions == nil {
		return nil, errors.New("webhooks: subscription service is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("webhooks: shop settings repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("webhooks: payment provider is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Handlers{
		orders:        deps.Orders,
		refunds:       deps.Refunds,
		risk:          deps.Risk,
		subscriptions: deps.Subscriptions,
		settings:      deps.Settings,
		provider:      deps.Provider,
		logger:        logger,
	}, nil
}

// chargeView flattens a decoded charge payload into the provider-neutral
// shape shared with charges fetched through the API.
func chargeView(charge *stripe.Charge) payments.Charge {
	if charge == nil {
		return payments.Charge{}
	}

	view := payments.Charge{
		ID:             charge.ID,
		Amount:         charge.Amount,
		AmountRefunded: charge.AmountRefunded,
		Currency:       strings.ToUpper(string(charge.Currency)),
	}
	if charge.PaymentIntent != nil {
		view.PaymentIntentID = charge.PaymentIntent.ID
	}
	if charge.Invoice != nil {
		view.InvoiceID = charge.Invoice.ID
	}
	if charge.Customer != nil {
		view.CustomerID = charge.Customer.ID
	}
	if charge.BalanceTransaction != nil {
		view.BalanceTransactionID = charge.BalanceTransaction.ID
	}
	if outcome := charge.Outcome; outcome != nil {
		view.RiskLevel = outcome.RiskLevel
		score := outcome.RiskScore
		view.RiskScore = &score
	}
	return view
}

// sessionKeyForCharge resolves the logical session key for a charge: its
// invoice, else the invoice behind its payment intent, else the charge id.
// Subscription-backed orders are keyed by invoice, one-off checkouts by the
// charge itself.
func (h *Handlers) sessionKeyForCharge(ctx context.Context, charge payments.Charge) string {
	if charge.InvoiceID != "" {
		return charge.InvoiceID
	}
	if charge.PaymentIntentID != "" {
		intent, err := h.provider.RetrievePaymentIntent(ctx, charge.PaymentIntentID)
		if err != nil {
			h.logger(ctx, "webhooks.intent_lookup_failed", map[string]any{
				"paymentIntent": charge.PaymentIntentID,
				"error":         err.Error(),
			})
		} else if intent.InvoiceID != "" {
			return intent.InvoiceID
		}
	}
	return charge.ID
}

// riskUpdateFromCharge lifts the provider fraud outcome into a partial risk
// mutation. Charges without an outcome yield an empty update.
func riskUpdateFromCharge(charge payments.Charge) services.RiskUpdate {
	var update services.RiskUpdate
	if level := normalizeRiskLevel(charge.RiskLevel); level != nil {
		update.Level = level
	}
	if charge.RiskScore != nil {
		score := float64(*charge.RiskScore)
		update.Score = &score
	}
	return update
}

func normalizeRiskLevel(raw string) *domain.RiskLevel {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return nil
	}
	level := domain.RiskLevel(trimmed)
	return &level
}

// metadataAmount reads the first present metadata key as a major-unit amount.
// Values are string-typed at the provider; fractional values truncate and
// garbage defaults to zero.
func metadataAmount(metadata map[string]string, keys ...string) int64 {
	for _, key := range keys {
		raw, ok := metadata[key]
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || parsed < 0 {
			return 0
		}
		return int64(parsed)
	}
	return 0
}

func metadataString(metadata map[string]string, key string) *string {
	raw, ok := metadata[key]
	if !ok {
		return nil
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// majorUnits converts a provider minor-unit amount to the record's major
// units.
func majorUnits(minor int64) int64 {
	return minor / 100
}

func stringPtr(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

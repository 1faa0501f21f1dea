package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/payments"
	"github.com/loopwear/api/internal/repositories"
)

// ErrRefundUnresolvedIntent indicates a positive refund could not resolve a
// payment intent for the stored session. This is a data-integrity fault, never
// swallowed.
var ErrRefundUnresolvedIntent = errors.New("refund: payment intent unresolved")

// RefundServiceDeps bundles collaborators required to construct the refund service.
type RefundServiceDeps struct {
	Orders   repositories.OrderRepository
	Provider payments.Provider
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type refundService struct {
	orders   repositories.OrderRepository
	provider payments.Provider
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewRefundService wires dependencies into a concrete RefundService implementation.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	if deps.Orders == nil {
		return nil, errors.New("refund service: order repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("refund service: payment provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &refundService{
		orders:   deps.Orders,
		provider: deps.Provider,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// MarkRefunded stamps refundedAt and merges the optional risk fields in the
// same update.
func (s *refundService) MarkRefunded(ctx context.Context, shop, sessionID string, risk RiskUpdate) (*domain.Order, error) {
	now := s.clock()
	patch := repositories.OrderPatch{
		RefundedAt:       &now,
		RiskLevel:        risk.Level,
		RiskScore:        risk.Score,
		FlaggedForReview: risk.FlaggedForReview,
	}

	updated, err := s.orders.Update(ctx, shop, sessionID, patch)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return updated, nil
}

// RefundOrder computes the refundable amount, calls the provider only when it
// is positive, and accumulates refundTotal.
//
// Amounts are major currency units at the record level; the provider boundary
// converts to minor units.
func (s *refundService) RefundOrder(ctx context.Context, shop, sessionID string, amount *int64) (*domain.Order, error) {
	order, err := s.orders.FindBySession(ctx, shop, sessionID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, nil
	}

	already := order.Refunded()
	total := refundableTotal(*order, amount)

	remaining := total - already
	if remaining < 0 {
		remaining = 0
	}

	requested := remaining
	if amount != nil {
		requested = clampAmount(*amount)
	}

	refundable := requested
	if remaining < refundable {
		refundable = remaining
	}

	if refundable > 0 {
		intentID, err := s.resolvePaymentIntent(ctx, *order)
		if err != nil {
			return nil, err
		}

		if _, err := s.provider.CreateRefund(ctx, payments.RefundParams{
			PaymentIntentID: intentID,
			Amount:          minorUnits(refundable),
			IdempotencyKey:  fmt.Sprintf("refund:%s:%s:%d", shop, sessionID, already+refundable),
		}); err != nil {
			return nil, err
		}

		s.logger(ctx, "refund.provider.created", map[string]any{
			"shop":      shop,
			"sessionId": sessionID,
			"amount":    refundable,
		})
	}

	updated, err := s.orders.AddRefund(ctx, shop, sessionID, refundable, s.clock())
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return updated, nil
}

func (s *refundService) resolvePaymentIntent(ctx context.Context, order domain.Order) (string, error) {
	if order.StripePaymentIntentID != nil {
		return *order.StripePaymentIntentID, nil
	}

	// A failing session lookup is an upstream outage: propagate it as-is so
	// the provider's webhook retry gets another attempt. The sentinel is
	// reserved for a session that genuinely carries no payment intent.
	session, err := s.provider.RetrieveSession(ctx, order.SessionID)
	if err != nil {
		return "", fmt.Errorf("refund: retrieve session %s: %w", order.SessionID, err)
	}
	if session.PaymentIntentID == "" {
		return "", fmt.Errorf("%w: session %s carries no payment intent", ErrRefundUnresolvedIntent, order.SessionID)
	}
	return session.PaymentIntentID, nil
}

// refundableTotal picks the first available source of truth: the stored total,
// then the deposit, then the caller's amount.
func refundableTotal(order domain.Order, amount *int64) int64 {
	if order.TotalAmount != nil {
		return *order.TotalAmount
	}
	if order.Deposit > 0 {
		return order.Deposit
	}
	if amount != nil {
		return clampAmount(*amount)
	}
	return 0
}

// minorUnits converts a major-unit amount to the provider's minor-unit
// integer representation.
func minorUnits(major int64) int64 {
	return major * 100
}

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/loopwear/api/internal/repositories"
)

// SubscriptionServiceDeps bundles collaborators required to construct the
// subscription service.
type SubscriptionServiceDeps struct {
	Users  repositories.UserRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type subscriptionService struct {
	users  repositories.UserRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewSubscriptionService wires dependencies into a concrete SubscriptionService
// implementation.
func NewSubscriptionService(deps SubscriptionServiceDeps) (SubscriptionService, error) {
	if deps.Users == nil {
		return nil, errors.New("subscription service: user repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &subscriptionService{
		users: deps.Users,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// SetPaymentStatus records the invoice outcome. Missing ids are a silent
// no-op; invoices for one-off charges carry no subscription.
func (s *subscriptionService) SetPaymentStatus(ctx context.Context, shop, stripeCustomerID, subscriptionID, status string) error {
	customer := strings.TrimSpace(stripeCustomerID)
	subscription := strings.TrimSpace(subscriptionID)
	if customer == "" || subscription == "" {
		return nil
	}

	if err := s.users.SetSubscriptionPaymentStatus(ctx, shop, customer, subscription, strings.TrimSpace(status), s.clock()); err != nil {
		return err
	}

	s.logger(ctx, "subscription.payment_status", map[string]any{
		"shop":         shop,
		"customerId":   customer,
		"subscription": subscription,
		"status":       status,
	})
	return nil
}

// SyncSubscription stores the customer's current subscription id.
func (s *subscriptionService) SyncSubscription(ctx context.Context, shop, stripeCustomerID, subscriptionID string) error {
	customer := strings.TrimSpace(stripeCustomerID)
	if customer == "" {
		return nil
	}

	return s.users.SetSubscriptionID(ctx, shop, customer, strings.TrimSpace(subscriptionID), s.clock())
}

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/repositories"
)

// StatusServiceDeps bundles collaborators required to construct the status service.
type StatusServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type statusService struct {
	orders repositories.OrderRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewStatusService wires dependencies into a concrete StatusService implementation.
func NewStatusService(deps StatusServiceDeps) (StatusService, error) {
	if deps.Orders == nil {
		return nil, errors.New("status service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &statusService{
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// MarkFulfilled stamps fulfilledAt. Missing orders surface as store faults.
func (s *statusService) MarkFulfilled(ctx context.Context, shop, sessionID string) (*domain.Order, error) {
	now := s.clock()
	return s.orders.Update(ctx, shop, sessionID, repositories.OrderPatch{FulfilledAt: &now})
}

// MarkShipped stamps shippedAt. Missing orders surface as store faults.
func (s *statusService) MarkShipped(ctx context.Context, shop, sessionID string) (*domain.Order, error) {
	now := s.clock()
	return s.orders.Update(ctx, shop, sessionID, repositories.OrderPatch{ShippedAt: &now})
}

// MarkDelivered stamps deliveredAt. Missing orders surface as store faults.
func (s *statusService) MarkDelivered(ctx context.Context, shop, sessionID string) (*domain.Order, error) {
	now := s.clock()
	return s.orders.Update(ctx, shop, sessionID, repositories.OrderPatch{DeliveredAt: &now})
}

// MarkCancelled stamps cancelledAt. Missing orders surface as store faults.
func (s *statusService) MarkCancelled(ctx context.Context, shop, sessionID string) (*domain.Order, error) {
	now := s.clock()
	return s.orders.Update(ctx, shop, sessionID, repositories.OrderPatch{CancelledAt: &now})
}

// MarkReturned stamps returnedAt and records damageFee only when supplied.
// Returns may race order expiry, so a missing record yields (nil, nil).
func (s *statusService) MarkReturned(ctx context.Context, shop, sessionID string, damageFee *int64) (*domain.Order, error) {
	now := s.clock()
	patch := repositories.OrderPatch{ReturnedAt: &now}
	if damageFee != nil {
		fee := clampAmount(*damageFee)
		patch.DamageFee = &fee
	}

	updated, err := s.orders.Update(ctx, shop, sessionID, patch)
	return s.absorbNotFound(ctx, "status.returned", shop, sessionID, updated, err)
}

// SetReturnTracking records the return label fields atomically.
func (s *statusService) SetReturnTracking(ctx context.Context, shop, sessionID, trackingNumber, labelURL string) (*domain.Order, error) {
	tn := strings.TrimSpace(trackingNumber)
	label := strings.TrimSpace(labelURL)
	patch := repositories.OrderPatch{
		TrackingNumber: &tn,
		LabelURL:       &label,
	}

	updated, err := s.orders.Update(ctx, shop, sessionID, patch)
	return s.absorbNotFound(ctx, "status.return_tracking", shop, sessionID, updated, err)
}

// SetReturnStatus updates the order addressed by its tracking number.
func (s *statusService) SetReturnStatus(ctx context.Context, shop, trackingNumber string, status domain.ReturnStatus) (*domain.Order, error) {
	patch := repositories.OrderPatch{ReturnStatus: &status}

	updated, err := s.orders.UpdateByTrackingNumber(ctx, shop, trackingNumber, patch)
	return s.absorbNotFound(ctx, "status.return_status", shop, trackingNumber, updated, err)
}

func (s *statusService) absorbNotFound(ctx context.Context, event, shop, key string, order *domain.Order, err error) (*domain.Order, error) {
	if err == nil {
		return order, nil
	}
	if repositories.IsNotFound(err) {
		s.logger(ctx, event+".missing", map[string]any{
			"shop": shop,
			"key":  key,
		})
		return nil, nil
	}
	return nil, err
}

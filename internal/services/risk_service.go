package services

import (
	"context"
	"errors"

	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/repositories"
)

// RiskServiceDeps bundles collaborators required to construct the risk service.
type RiskServiceDeps struct {
	Orders repositories.OrderRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type riskService struct {
	orders repositories.OrderRepository
	logger func(context.Context, string, map[string]any)
}

// NewRiskService wires dependencies into a concrete RiskService implementation.
func NewRiskService(deps RiskServiceDeps) (RiskService, error) {
	if deps.Orders == nil {
		return nil, errors.New("risk service: order repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &riskService{
		orders: deps.Orders,
		logger: logger,
	}, nil
}

// FlagForReview unconditionally sets flaggedForReview.
func (s *riskService) FlagForReview(ctx context.Context, shop, sessionID string) (*domain.Order, error) {
	flag := true
	return s.UpdateRisk(ctx, shop, sessionID, RiskUpdate{FlaggedForReview: &flag})
}

// UpdateRisk merges only the supplied risk fields so unrelated signals are
// never clobbered.
func (s *riskService) UpdateRisk(ctx context.Context, shop, sessionID string, update RiskUpdate) (*domain.Order, error) {
	if update.IsEmpty() {
		return s.orders.FindBySession(ctx, shop, sessionID)
	}

	patch := repositories.OrderPatch{
		RiskLevel:        update.Level,
		RiskScore:        update.Score,
		FlaggedForReview: update.FlaggedForReview,
	}

	updated, err := s.orders.Update(ctx, shop, sessionID, patch)
	if err != nil {
		if repositories.IsNotFound(err) {
			s.logger(ctx, "risk.update.missing", map[string]any{
				"shop":      shop,
				"sessionId": sessionID,
			})
			return nil, nil
		}
		return nil, err
	}
	return updated, nil
}

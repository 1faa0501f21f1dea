package webhooks

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v78"

	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/payments"
	"github.com/loopwear/api/internal/services"
)

func makeEvent(eventType string, payload string) stripe.Event {
	return stripe.Event{
		ID:   "evt_test",
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(payload)},
	}
}

type stubOrderService struct {
	createFn func(ctx context.Context, input services.CreateOrderInput) (*domain.Order, error)
	importFn func(ctx context.Context, input services.ExternalOrderInput) (*domain.Order, error)
	linkFn   func(ctx context.Context, shop, paymentIntentID string, link services.PaymentLink) (int, error)
	listFn   func(ctx context.Context, shop string) ([]domain.Order, error)
	byCustFn func(ctx context.Context, shop, customerID string) ([]domain.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, input services.CreateOrderInput) (*domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return &domain.Order{ID: "ord_1", Shop: input.Shop, SessionID: input.SessionID}, nil
}

func (s *stubOrderService) ImportExternalOrder(ctx context.Context, input services.ExternalOrderInput) (*domain.Order, error) {
	if s.importFn != nil {
		return s.importFn(ctx, input)
	}
	return nil, nil
}

func (s *stubOrderService) LinkPaymentIntent(ctx context.Context, shop, paymentIntentID string, link services.PaymentLink) (int, error) {
	if s.linkFn != nil {
		return s.linkFn(ctx, shop, paymentIntentID, link)
	}
	return 0, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, shop string) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, shop)
	}
	return nil, nil
}

func (s *stubOrderService) OrdersForCustomer(ctx context.Context, shop, customerID string) ([]domain.Order, error) {
	if s.byCustFn != nil {
		return s.byCustFn(ctx, shop, customerID)
	}
	return nil, nil
}

type stubRefundService struct {
	markRefundedFn func(ctx context.Context, shop, sessionID string, risk services.RiskUpdate) (*domain.Order, error)
	refundOrderFn  func(ctx context.Context, shop, sessionID string, amount *int64) (*domain.Order, error)
}

func (s *stubRefundService) MarkRefunded(ctx context.Context, shop, sessionID string, risk services.RiskUpdate) (*domain.Order, error) {
	if s.markRefundedFn != nil {
		return s.markRefundedFn(ctx, shop, sessionID, risk)
	}
	return nil, nil
}

func (s *stubRefundService) RefundOrder(ctx context.Context, shop, sessionID string, amount *int64) (*domain.Order, error) {
	if s.refundOrderFn != nil {
		return s.refundOrderFn(ctx, shop, sessionID, amount)
	}
	return nil, nil
}

type stubRiskService struct {
	flagFn   func(ctx context.Context, shop, sessionID string) (*domain.Order, error)
	updateFn func(ctx context.Context, shop, sessionID string, update services.RiskUpdate) (*domain.Order, error)
}

func (s *stubRiskService) FlagForReview(ctx context.Context, shop, sessionID string) (*domain.Order, error) {
	if s.flagFn != nil {
		return s.flagFn(ctx, shop, sessionID)
	}
	return nil, nil
}

func (s *stubRiskService) UpdateRisk(ctx context.Context, shop, sessionID string, update services.RiskUpdate) (*domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, shop, sessionID, update)
	}
	return nil, nil
}

type stubSubscriptionService struct {
	setStatusFn func(ctx context.Context, shop, customerID, subscriptionID, status string) error
	syncFn      func(ctx context.Context, shop, customerID, subscriptionID string) error
}

func (s *stubSubscriptionService) SetPaymentStatus(ctx context.Context, shop, customerID, subscriptionID, status string) error {
	if s.setStatusFn != nil {
		return s.setStatusFn(ctx, shop, customerID, subscriptionID, status)
	}
	return nil
}

func (s *stubSubscriptionService) SyncSubscription(ctx context.Context, shop, customerID, subscriptionID string) error {
	if s.syncFn != nil {
		return s.syncFn(ctx, shop, customerID, subscriptionID)
	}
	return nil
}

type stubSettingsRepository struct {
	getFn func(ctx context.Context, shop string) (domain.ShopSettings, error)
}

func (s *stubSettingsRepository) Get(ctx context.Context, shop string) (domain.ShopSettings, error) {
	if s.getFn != nil {
		return s.getFn(ctx, shop)
	}
	return domain.ShopSettings{Shop: shop}, nil
}

type stubProvider struct {
	retrieveSessionFn func(ctx context.Context, sessionID string) (payments.CheckoutSession, error)
	retrieveIntentFn  func(ctx context.Context, intentID string) (payments.PaymentIntent, error)
	retrieveChargeFn  func(ctx context.Context, chargeID string) (payments.Charge, error)
	createRefundFn    func(ctx context.Context, req payments.RefundParams) (payments.Refund, error)
	openReviewFn      func(ctx context.Context, paymentIntentID string) (payments.Review, error)
	strongAuthFn      func(ctx context.Context, paymentIntentID string) error
}

func (s *stubProvider) RetrieveSession(ctx context.Context, sessionID string) (payments.CheckoutSession, error) {
	if s.retrieveSessionFn != nil {
		return s.retrieveSessionFn(ctx, sessionID)
	}
	return payments.CheckoutSession{}, nil
}

func (s *stubProvider) RetrievePaymentIntent(ctx context.Context, intentID string) (payments.PaymentIntent, error) {
	if s.retrieveIntentFn != nil {
		return s.retrieveIntentFn(ctx, intentID)
	}
	return payments.PaymentIntent{}, nil
}

func (s *stubProvider) RetrieveCharge(ctx context.Context, chargeID string) (payments.Charge, error) {
	if s.retrieveChargeFn != nil {
		return s.retrieveChargeFn(ctx, chargeID)
	}
	return payments.Charge{}, nil
}

func (s *stubProvider) CreateRefund(ctx context.Context, req payments.RefundParams) (payments.Refund, error) {
	if s.createRefundFn != nil {
		return s.createRefundFn(ctx, req)
	}
	return payments.Refund{}, nil
}

func (s *stubProvider) OpenReview(ctx context.Context, paymentIntentID string) (payments.Review, error) {
	if s.openReviewFn != nil {
		return s.openReviewFn(ctx, paymentIntentID)
	}
	return payments.Review{}, nil
}

func (s *stubProvider) RequireStrongAuth(ctx context.Context, paymentIntentID string) error {
	if s.strongAuthFn != nil {
		return s.strongAuthFn(ctx, paymentIntentID)
	}
	return nil
}

type handlerFixture struct {
	orders        *stubOrderService
	refunds       *stubRefundService
	risk          *stubRiskService
	subscriptions *stubSubscriptionService
	settings      *stubSettingsRepository
	provider      *stubProvider
}

func newFixture() *handlerFixture {
	return &handlerFixture{
		orders:        &stubOrderService{},
		refunds:       &stubRefundService{},
		risk:          &stubRiskService{},
		subscriptions: &stubSubscriptionService{},
		settings:      &stubSettingsRepository{},
		provider:      &stubProvider{},
	}
}

func (f *handlerFixture) handlers() (*Handlers, error) {
	return NewHandlers(HandlersDeps{
		Orders:        f.orders,
		Refunds:       f.refunds,
		Risk:          f.risk,
		Subscriptions: f.subscriptions,
		Settings:      f.settings,
		Provider:      f.provider,
	})
}

package services

import (
	"context"
	"time"

	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/payments"
	"github.com/loopwear/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubOrderRepository struct {
	createFn                 func(ctx context.Context, order domain.Order) error
	updateFn                 func(ctx context.Context, shop, sessionID string, patch repositories.OrderPatch) (*domain.Order, error)
	updateByTrackingNumberFn func(ctx context.Context, shop, trackingNumber string, patch repositories.OrderPatch) (*domain.Order, error)
	updateManyFn             func(ctx context.Context, shop, paymentIntentID string, patch repositories.OrderPatch) (int, error)
	addRefundFn              func(ctx context.Context, shop, sessionID string, amount int64, refundedAt time.Time) (*domain.Order, error)
	findBySessionFn          func(ctx context.Context, shop, sessionID string) (*domain.Order, error)
	listByShopFn             func(ctx context.Context, shop string) ([]domain.Order, error)
	listByCustomerFn         func(ctx context.Context, shop, customerID string) ([]domain.Order, error)
}

func (s *stubOrderRepository) Create(ctx context.Context, order domain.Order) error {
	if s.createFn != nil {
		return s.createFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepository) Update(ctx context.Context, shop, sessionID string, patch repositories.OrderPatch) (*domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, shop, sessionID, patch)
	}
	return nil, &stubRepoError{notFound: true}
}

func (s *stubOrderRepository) UpdateByTrackingNumber(ctx context.Context, shop, trackingNumber string, patch repositories.OrderPatch) (*domain.Order, error) {
	if s.updateByTrackingNumberFn != nil {
		return s.updateByTrackingNumberFn(ctx, shop, trackingNumber, patch)
	}
	return nil, &stubRepoError{notFound: true}
}

func (s *stubOrderRepository) UpdateManyByPaymentIntent(ctx context.Context, shop, paymentIntentID string, patch repositories.OrderPatch) (int, error) {
	if s.updateManyFn != nil {
		return s.updateManyFn(ctx, shop, paymentIntentID, patch)
	}
	return 0, nil
}

func (s *stubOrderRepository) AddRefund(ctx context.Context, shop, sessionID string, amount int64, refundedAt time.Time) (*domain.Order, error) {
	if s.addRefundFn != nil {
		return s.addRefundFn(ctx, shop, sessionID, amount, refundedAt)
	}
	return nil, &stubRepoError{notFound: true}
}

func (s *stubOrderRepository) FindBySession(ctx context.Context, shop, sessionID string) (*domain.Order, error) {
	if s.findBySessionFn != nil {
		return s.findBySessionFn(ctx, shop, sessionID)
	}
	return nil, nil
}

func (s *stubOrderRepository) ListByShop(ctx context.Context, shop string) ([]domain.Order, error) {
	if s.listByShopFn != nil {
		return s.listByShopFn(ctx, shop)
	}
	return nil, nil
}

func (s *stubOrderRepository) ListByCustomer(ctx context.Context, shop, customerID string) ([]domain.Order, error) {
	if s.listByCustomerFn != nil {
		return s.listByCustomerFn(ctx, shop, customerID)
	}
	return nil, nil
}

type stubShopSettingsRepository struct {
	getFn func(ctx context.Context, shop string) (domain.ShopSettings, error)
}

func (s *stubShopSettingsRepository) Get(ctx context.Context, shop string) (domain.ShopSettings, error) {
	if s.getFn != nil {
		return s.getFn(ctx, shop)
	}
	return domain.ShopSettings{Shop: shop}, nil
}

type stubUserRepository struct {
	setSubscriptionIDFn func(ctx context.Context, shop, customerID, subscriptionID string, now time.Time) error
	setPaymentStatusFn  func(ctx context.Context, shop, customerID, subscriptionID, status string, now time.Time) error
}

func (s *stubUserRepository) SetSubscriptionID(ctx context.Context, shop, customerID, subscriptionID string, now time.Time) error {
	if s.setSubscriptionIDFn != nil {
		return s.setSubscriptionIDFn(ctx, shop, customerID, subscriptionID, now)
	}
	return nil
}

func (s *stubUserRepository) SetSubscriptionPaymentStatus(ctx context.Context, shop, customerID, subscriptionID, status string, now time.Time) error {
	if s.setPaymentStatusFn != nil {
		return s.setPaymentStatusFn(ctx, shop, customerID, subscriptionID, status, now)
	}
	return nil
}

type stubUsageRepository struct {
	incrementFn func(ctx context.Context, shop, customerID, period string) (int64, error)
}

func (s *stubUsageRepository) Increment(ctx context.Context, shop, customerID, period string) (int64, error) {
	if s.incrementFn != nil {
		return s.incrementFn(ctx, shop, customerID, period)
	}
	return 1, nil
}

type stubTracker struct {
	trackFn func(ctx context.Context, shop, orderID string, amount int64)
}

func (s *stubTracker) TrackOrder(ctx context.Context, shop, orderID string, amount int64) {
	if s.trackFn != nil {
		s.trackFn(ctx, shop, orderID, amount)
	}
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

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func int64Ptr(v int64) *int64 { return &v }

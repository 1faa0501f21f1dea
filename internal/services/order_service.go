package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loopwear/api/internal/analytics"
	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	ShopSettings repositories.ShopSettingsRepository
	Usage        repositories.SubscriptionUsageRepository
	Analytics    analytics.Tracker
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	shopSettings repositories.ShopSettingsRepository
	usage        repositories.SubscriptionUsageRepository
	analytics    analytics.Tracker
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	tracker := deps.Analytics
	if tracker == nil {
		tracker = analytics.NopTracker{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return orderIDPrefix + ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:       deps.Orders,
		shopSettings: deps.ShopSettings,
		usage:        deps.Usage,
		analytics:    tracker,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateOrder inserts a new order, converging onto the existing record when the
// (shop, sessionID) identity already exists.
func (s *orderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	shop := strings.TrimSpace(input.Shop)
	sessionID := strings.TrimSpace(input.SessionID)
	if shop == "" || sessionID == "" {
		return nil, fmt.Errorf("%w: shop and session id are required", ErrOrderInvalidInput)
	}

	now := s.clock()
	order := domain.Normalize(domain.Order{
		ID:        s.newID(),
		Shop:      shop,
		SessionID: sessionID,

		Currency:       strings.ToUpper(strings.TrimSpace(input.Currency)),
		Deposit:        clampAmount(input.Deposit),
		TotalAmount:    input.TotalAmount,
		SubtotalAmount: input.SubtotalAmount,
		TaxAmount:      input.TaxAmount,
		ShippingAmount: input.ShippingAmount,
		DiscountAmount: input.DiscountAmount,

		StartedAt: now,

		CustomerID:            input.CustomerID,
		StripeCustomerID:      input.StripeCustomerID,
		StripePaymentIntentID: input.StripePaymentIntentID,
		CartID:                input.CartID,
		OrderRef:              input.OrderRef,
	})

	err := s.orders.Create(ctx, order)
	if err == nil {
		s.fireCreateSideEffects(ctx, order)
		return &order, nil
	}
	if !repositories.IsConflict(err) {
		return nil, err
	}

	// The same logical order arrived twice. Converge on the existing record
	// and skip side effects, which fired on the original insert.
	return s.convergeDuplicate(ctx, order)
}

func (s *orderService) convergeDuplicate(ctx context.Context, incoming domain.Order) (*domain.Order, error) {
	existing, err := s.orders.FindBySession(ctx, incoming.Shop, incoming.SessionID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s/%s vanished during duplicate convergence", ErrOrderNotFound, incoming.Shop, incoming.SessionID)
	}

	patch := repositories.OrderPatch{
		CustomerID:            incoming.CustomerID,
		StripeCustomerID:      incoming.StripeCustomerID,
		StripePaymentIntentID: incoming.StripePaymentIntentID,
		CartID:                incoming.CartID,
		OrderRef:              incoming.OrderRef,
	}

	if existing.Deposit != incoming.Deposit {
		s.logger(ctx, "order.duplicate.divergent_deposit", map[string]any{
			"shop":      incoming.Shop,
			"sessionId": incoming.SessionID,
			"stored":    existing.Deposit,
			"incoming":  incoming.Deposit,
		})
		flag := true
		patch.FlaggedForReview = &flag
	}

	if patch.IsEmpty() {
		return existing, nil
	}

	updated, err := s.orders.Update(ctx, incoming.Shop, incoming.SessionID, patch)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *orderService) fireCreateSideEffects(ctx context.Context, order domain.Order) {
	s.analytics.TrackOrder(ctx, order.Shop, order.ID, order.Deposit)

	if order.CustomerID == nil || s.usage == nil || s.shopSettings == nil {
		return
	}

	settings, err := s.shopSettings.Get(ctx, order.Shop)
	if err != nil {
		s.logger(ctx, "order.usage.settings_failed", map[string]any{
			"shop":  order.Shop,
			"error": err.Error(),
		})
		return
	}
	if !settings.SubscriptionsEnabled {
		return
	}

	period := s.clock().Format("2006-01")
	if _, err := s.usage.Increment(ctx, order.Shop, *order.CustomerID, period); err != nil {
		s.logger(ctx, "order.usage.increment_failed", map[string]any{
			"shop":       order.Shop,
			"customerId": *order.CustomerID,
			"period":     period,
			"error":      err.Error(),
		})
	}
}

// ImportExternalOrder coerces the loosely-typed payload into a strict create.
func (s *orderService) ImportExternalOrder(ctx context.Context, input ExternalOrderInput) (*domain.Order, error) {
	total := coerceAmount(input.AmountTotal)
	deposit := coerceAmount(input.Deposit)
	if deposit == 0 {
		deposit = total
	}

	create := CreateOrderInput{
		Shop:      input.Shop,
		SessionID: input.SessionID,
		Deposit:   deposit,
		Currency:  strings.ToUpper(strings.TrimSpace(input.Currency)),
	}
	if total > 0 {
		create.TotalAmount = &total
	}
	if v := strings.TrimSpace(input.CustomerID); v != "" {
		create.CustomerID = &v
	}
	if v := strings.TrimSpace(input.CartID); v != "" {
		create.CartID = &v
	}
	if v := strings.TrimSpace(input.OrderRef); v != "" {
		create.OrderRef = &v
	}

	return s.CreateOrder(ctx, create)
}

// LinkPaymentIntent back-fills provider linkage onto every order matching the
// payment intent.
func (s *orderService) LinkPaymentIntent(ctx context.Context, shop, paymentIntentID string, link PaymentLink) (int, error) {
	if link.IsEmpty() || strings.TrimSpace(paymentIntentID) == "" {
		return 0, nil
	}

	patch := repositories.OrderPatch{
		StripeCustomerID:           link.StripeCustomerID,
		StripeChargeID:             link.StripeChargeID,
		StripeBalanceTransactionID: link.StripeBalanceTransactionID,
	}
	return s.orders.UpdateManyByPaymentIntent(ctx, shop, paymentIntentID, patch)
}

// ListOrders returns the shop's orders, newest first.
func (s *orderService) ListOrders(ctx context.Context, shop string) ([]domain.Order, error) {
	if strings.TrimSpace(shop) == "" {
		return nil, fmt.Errorf("%w: shop is required", ErrOrderInvalidInput)
	}
	return s.orders.ListByShop(ctx, shop)
}

// OrdersForCustomer returns the customer's orders for the shop.
func (s *orderService) OrdersForCustomer(ctx context.Context, shop, customerID string) ([]domain.Order, error) {
	if strings.TrimSpace(shop) == "" || strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("%w: shop and customer id are required", ErrOrderInvalidInput)
	}
	return s.orders.ListByCustomer(ctx, shop, customerID)
}

// coerceAmount accepts string-or-number inputs; invalid or fractional values
// truncate toward zero and anything unparseable defaults to 0.
func coerceAmount(value any) int64 {
	switch v := value.(type) {
	case nil:
		return 0
	case int:
		return clampAmount(int64(v))
	case int32:
		return clampAmount(int64(v))
	case int64:
		return clampAmount(v)
	case float32:
		return clampAmount(int64(v))
	case float64:
		return clampAmount(int64(v))
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0
		}
		return clampAmount(int64(parsed))
	default:
		return 0
	}
}

func clampAmount(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

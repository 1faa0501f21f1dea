package services

import (
	"context"
	"testing"
	"time"

	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/repositories"
)

func TestCreateOrderFiresSideEffectsOnFirstInsert(t *testing.T) {
	now := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)

	var inserted *domain.Order
	repo := &stubOrderRepository{
		createFn: func(_ context.Context, order domain.Order) error {
			inserted = &order
			return nil
		},
	}

	var tracked int
	var incremented []string
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: repo,
		ShopSettings: &stubShopSettingsRepository{
			getFn: func(_ context.Context, shop string) (domain.ShopSettings, error) {
				return domain.ShopSettings{Shop: shop, SubscriptionsEnabled: true}, nil
			},
		},
		Usage: &stubUsageRepository{
			incrementFn: func(_ context.Context, shop, customerID, period string) (int64, error) {
				incremented = append(incremented, shop+"/"+customerID+"/"+period)
				return 1, nil
			},
		},
		Analytics: &stubTracker{
			trackFn: func(_ context.Context, _, _ string, _ int64) { tracked++ },
		},
		Clock:       fixedClock(now),
		IDGenerator: func() string { return "ord_TEST" },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	customer := "cust_1"
	order, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Shop:       "loopwear",
		SessionID:  "cs_1",
		Deposit:    120,
		Currency:   "eur",
		CustomerID: &customer,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "ord_TEST" {
		t.Fatalf("unexpected id %q", order.ID)
	}
	if inserted == nil || !inserted.StartedAt.Equal(now) {
		t.Fatalf("startedAt not stamped: %+v", inserted)
	}
	if inserted.Currency != "EUR" {
		t.Fatalf("currency not uppercased: %q", inserted.Currency)
	}
	if tracked != 1 {
		t.Fatalf("expected one analytics event, got %d", tracked)
	}
	if len(incremented) != 1 || incremented[0] != "loopwear/cust_1/2026-04" {
		t.Fatalf("unexpected usage increments %v", incremented)
	}
}

func TestCreateOrderConvergesOnDuplicateWithoutSideEffects(t *testing.T) {
	existing := domain.Order{
		ID:        "ord_FIRST",
		Shop:      "loopwear",
		SessionID: "cs_1",
		Deposit:   120,
		Currency:  "EUR",
		StartedAt: time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC),
	}

	repo := &stubOrderRepository{
		createFn: func(context.Context, domain.Order) error {
			return &stubRepoError{conflict: true}
		},
		findBySessionFn: func(context.Context, string, string) (*domain.Order, error) {
			order := existing
			return &order, nil
		},
		updateFn: func(_ context.Context, _, _ string, patch repositories.OrderPatch) (*domain.Order, error) {
			order := existing
			if patch.CustomerID != nil {
				order.CustomerID = patch.CustomerID
			}
			return &order, nil
		},
	}

	var tracked, incremented int
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: repo,
		ShopSettings: &stubShopSettingsRepository{
			getFn: func(_ context.Context, shop string) (domain.ShopSettings, error) {
				return domain.ShopSettings{Shop: shop, SubscriptionsEnabled: true}, nil
			},
		},
		Usage: &stubUsageRepository{
			incrementFn: func(context.Context, string, string, string) (int64, error) {
				incremented++
				return 1, nil
			},
		},
		Analytics: &stubTracker{
			trackFn: func(context.Context, string, string, int64) { tracked++ },
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	customer := "cust_1"
	order, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Shop:       "loopwear",
		SessionID:  "cs_1",
		Deposit:    120,
		Currency:   "EUR",
		CustomerID: &customer,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "ord_FIRST" {
		t.Fatalf("expected convergence on existing record, got %q", order.ID)
	}
	if tracked != 0 || incremented != 0 {
		t.Fatalf("side effects must not re-fire on duplicates: tracked=%d incremented=%d", tracked, incremented)
	}
}

func TestCreateOrderFlagsDivergentDepositOnDuplicate(t *testing.T) {
	existing := domain.Order{
		ID:        "ord_FIRST",
		Shop:      "loopwear",
		SessionID: "cs_1",
		Deposit:   120,
	}

	var patched repositories.OrderPatch
	repo := &stubOrderRepository{
		createFn: func(context.Context, domain.Order) error {
			return &stubRepoError{conflict: true}
		},
		findBySessionFn: func(context.Context, string, string) (*domain.Order, error) {
			order := existing
			return &order, nil
		},
		updateFn: func(_ context.Context, _, _ string, patch repositories.OrderPatch) (*domain.Order, error) {
			patched = patch
			order := existing
			return &order, nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{Orders: repo})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Shop:      "loopwear",
		SessionID: "cs_1",
		Deposit:   300,
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if patched.FlaggedForReview == nil || !*patched.FlaggedForReview {
		t.Fatalf("divergent deposit should flag for review, patch=%+v", patched)
	}
}

func TestCreateOrderPropagatesStoreFaults(t *testing.T) {
	repo := &stubOrderRepository{
		createFn: func(context.Context, domain.Order) error {
			return &stubRepoError{unavailable: true}
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{Orders: repo})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.CreateOrder(context.Background(), CreateOrderInput{Shop: "loopwear", SessionID: "cs_1"}); err == nil {
		t.Fatalf("expected store fault to propagate")
	}
}

func TestImportExternalOrderCoercesLooseFields(t *testing.T) {
	var inserted *domain.Order
	repo := &stubOrderRepository{
		createFn: func(_ context.Context, order domain.Order) error {
			inserted = &order
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{Orders: repo})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.ImportExternalOrder(context.Background(), ExternalOrderInput{
		Shop:        "loopwear",
		SessionID:   "cs_1",
		AmountTotal: 1234,
		Currency:    "usd",
	}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if inserted == nil {
		t.Fatalf("nothing inserted")
	}
	if inserted.Deposit != 1234 {
		t.Fatalf("deposit = %d, want 1234", inserted.Deposit)
	}
	if inserted.TotalAmount == nil || *inserted.TotalAmount != 1234 {
		t.Fatalf("totalAmount = %v, want 1234", inserted.TotalAmount)
	}
	if inserted.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", inserted.Currency)
	}
}

func TestCoerceAmountHandlesStringsAndGarbage(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  int64
	}{
		{"int", 42, 42},
		{"float truncates", 19.99, 19},
		{"numeric string", "250", 250},
		{"decimal string truncates", "99.5", 99},
		{"garbage", "free", 0},
		{"empty", "", 0},
		{"nil", nil, 0},
		{"negative clamps", -5, 0},
		{"bool", true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := coerceAmount(tc.input); got != tc.want {
				t.Fatalf("coerceAmount(%v) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/loopwear/api/internal/domain"
	pfirestore "github.com/loopwear/api/internal/platform/firestore"
	"github.com/loopwear/api/internal/repositories"
)

const ordersCollection = "orders"

type orderDocument struct {
	ID        string `firestore:"id"`
	Shop      string `firestore:"shop"`
	SessionID string `firestore:"sessionId"`

	Currency       string `firestore:"currency"`
	Deposit        int64  `firestore:"deposit"`
	TotalAmount    *int64 `firestore:"totalAmount,omitempty"`
	SubtotalAmount *int64 `firestore:"subtotalAmount,omitempty"`
	TaxAmount      *int64 `firestore:"taxAmount,omitempty"`
	ShippingAmount *int64 `firestore:"shippingAmount,omitempty"`
	DiscountAmount *int64 `firestore:"discountAmount,omitempty"`
	RefundTotal    *int64 `firestore:"refundTotal,omitempty"`
	DamageFee      *int64 `firestore:"damageFee,omitempty"`

	StartedAt   time.Time  `firestore:"startedAt"`
	FulfilledAt *time.Time `firestore:"fulfilledAt,omitempty"`
	ShippedAt   *time.Time `firestore:"shippedAt,omitempty"`
	DeliveredAt *time.Time `firestore:"deliveredAt,omitempty"`
	CancelledAt *time.Time `firestore:"cancelledAt,omitempty"`
	ReturnedAt  *time.Time `firestore:"returnedAt,omitempty"`
	RefundedAt  *time.Time `firestore:"refundedAt,omitempty"`

	TrackingNumber *string `firestore:"trackingNumber,omitempty"`
	LabelURL       *string `firestore:"labelUrl,omitempty"`
	ReturnStatus   *string `firestore:"returnStatus,omitempty"`

	RiskLevel        *string  `firestore:"riskLevel,omitempty"`
	RiskScore        *float64 `firestore:"riskScore,omitempty"`
	FlaggedForReview bool     `firestore:"flaggedForReview"`

	CustomerID                 *string `firestore:"customerId,omitempty"`
	StripeCustomerID           *string `firestore:"stripeCustomerId,omitempty"`
	StripePaymentIntentID      *string `firestore:"stripePaymentIntentId,omitempty"`
	StripeChargeID             *string `firestore:"stripeChargeId,omitempty"`
	StripeBalanceTransactionID *string `firestore:"stripeBalanceTransactionId,omitempty"`
	CartID                     *string `firestore:"cartId,omitempty"`
	OrderRef                   *string `firestore:"orderRef,omitempty"`
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
// Document ids are shop + "__" + sessionID, which makes Create the uniqueness
// check for the (shop, sessionID) identity.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository(provider, ordersCollection,
		pfirestore.IdentityEncoder[orderDocument](), pfirestore.StructDecoder[orderDocument]())
	return &OrderRepository{provider: provider, orders: base}, nil
}

func orderDocID(shop, sessionID string) string {
	return strings.TrimSpace(shop) + "__" + strings.TrimSpace(sessionID)
}

// Create inserts the order. A duplicate (shop, sessionID) surfaces as a conflict.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.Shop) == "" || strings.TrimSpace(order.SessionID) == "" {
		return errors.New("order repository: shop and session id are required")
	}

	_, err := r.orders.Create(ctx, orderDocID(order.Shop, order.SessionID), encodeOrder(order))
	return err
}

// Update applies the patch and returns the updated record.
func (r *OrderRepository) Update(ctx context.Context, shop, sessionID string, patch repositories.OrderPatch) (*domain.Order, error) {
	return r.applyPatch(ctx, orderDocID(shop, sessionID), patch)
}

// UpdateByTrackingNumber applies the patch to the order carrying the return
// tracking number.
func (r *OrderRepository) UpdateByTrackingNumber(ctx context.Context, shop, trackingNumber string, patch repositories.OrderPatch) (*domain.Order, error) {
	tn := strings.TrimSpace(trackingNumber)
	if tn == "" {
		return nil, pfirestore.WrapError("orders.updateByTrackingNumber", status.Error(codes.NotFound, "tracking number is required"))
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("shop", "==", strings.TrimSpace(shop)).
			Where("trackingNumber", "==", tn).
			Limit(1)
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, pfirestore.WrapError("orders.updateByTrackingNumber", status.Error(codes.NotFound, "no order for tracking number"))
	}
	return r.applyPatch(ctx, docs[0].ID, patch)
}

// UpdateManyByPaymentIntent patches every order linked to the payment intent.
func (r *OrderRepository) UpdateManyByPaymentIntent(ctx context.Context, shop, paymentIntentID string, patch repositories.OrderPatch) (int, error) {
	intentID := strings.TrimSpace(paymentIntentID)
	if intentID == "" || patch.IsEmpty() {
		return 0, nil
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("shop", "==", strings.TrimSpace(shop)).
			Where("stripePaymentIntentId", "==", intentID)
	})
	if err != nil {
		return 0, err
	}

	updates := patchUpdates(patch)
	for _, doc := range docs {
		if _, err := r.orders.Update(ctx, doc.ID, updates); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}

// AddRefund accumulates amount onto refundTotal inside a transaction so
// concurrent refunds serialise instead of overwriting each other. The
// increment is re-clamped against the document read inside the transaction:
// two deliveries that both computed a refundable amount from the same stale
// refundTotal cannot push the persisted sum past the order's basis.
func (r *OrderRepository) AddRefund(ctx context.Context, shop, sessionID string, amount int64, refundedAt time.Time) (*domain.Order, error) {
	var updated orderDocument
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, orderDocID(shop, sessionID))
		if err != nil {
			return err
		}

		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", snap.Ref.ID, err)
		}

		total := accumulateRefund(doc, amount)
		doc.RefundTotal = &total
		stamp := refundedAt
		doc.RefundedAt = &stamp

		if err := tx.Update(ref, []firestore.Update{
			{Path: "refundTotal", Value: total},
			{Path: "refundedAt", Value: stamp},
		}); err != nil {
			return err
		}
		updated = doc
		return nil
	}, pfirestore.WithTxAttempts(5), pfirestore.WithTxTimeout(10*time.Second))
	if err != nil {
		return nil, pfirestore.WrapError("orders.addRefund", err)
	}

	order := decodeOrder(updated)
	return &order, nil
}

// accumulateRefund returns the new refundTotal after applying amount. The sum
// is monotone and, when the document records a basis, capped at it.
func accumulateRefund(doc orderDocument, amount int64) int64 {
	current := int64(0)
	if doc.RefundTotal != nil {
		current = *doc.RefundTotal
	}
	if amount < 0 {
		amount = 0
	}

	next := current + amount
	if basis, ok := refundBasis(doc); ok && next > basis {
		next = basis
		if next < current {
			next = current
		}
	}
	return next
}

// refundBasis is the refund ceiling: the recorded total, else the deposit.
// Orders recorded without either carry no ceiling of their own.
func refundBasis(doc orderDocument) (int64, bool) {
	if doc.TotalAmount != nil {
		return *doc.TotalAmount, true
	}
	if doc.Deposit > 0 {
		return doc.Deposit, true
	}
	return 0, false
}

// FindBySession returns the order, or nil when no record exists.
func (r *OrderRepository) FindBySession(ctx context.Context, shop, sessionID string) (*domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderDocID(shop, sessionID))
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	order := decodeOrder(doc.Data)
	return &order, nil
}

// ListByShop returns all orders for the shop, newest first.
func (r *OrderRepository) ListByShop(ctx context.Context, shop string) ([]domain.Order, error) {
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("shop", "==", strings.TrimSpace(shop)).
			OrderBy("startedAt", firestore.Desc)
	})
}

// ListByCustomer returns the customer's orders for the shop, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, shop, customerID string) ([]domain.Order, error) {
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("shop", "==", strings.TrimSpace(shop)).
			Where("customerId", "==", strings.TrimSpace(customerID)).
			OrderBy("startedAt", firestore.Desc)
	})
}

func (r *OrderRepository) list(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.Data))
	}
	return orders, nil
}

func (r *OrderRepository) applyPatch(ctx context.Context, id string, patch repositories.OrderPatch) (*domain.Order, error) {
	if updates := patchUpdates(patch); len(updates) > 0 {
		if _, err := r.orders.Update(ctx, id, updates); err != nil {
			return nil, err
		}
	}

	doc, err := r.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	order := decodeOrder(doc.Data)
	return &order, nil
}

func patchUpdates(patch repositories.OrderPatch) []firestore.Update {
	var updates []firestore.Update
	add := func(path string, value any) {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}

	if patch.Currency != nil {
		add("currency", strings.ToUpper(strings.TrimSpace(*patch.Currency)))
	}
	if patch.Deposit != nil {
		add("deposit", *patch.Deposit)
	}
	if patch.TotalAmount != nil {
		add("totalAmount", *patch.TotalAmount)
	}
	if patch.SubtotalAmount != nil {
		add("subtotalAmount", *patch.SubtotalAmount)
	}
	if patch.TaxAmount != nil {
		add("taxAmount", *patch.TaxAmount)
	}
	if patch.ShippingAmount != nil {
		add("shippingAmount", *patch.ShippingAmount)
	}
	if patch.DiscountAmount != nil {
		add("discountAmount", *patch.DiscountAmount)
	}
	if patch.DamageFee != nil {
		add("damageFee", *patch.DamageFee)
	}

	if patch.FulfilledAt != nil {
		add("fulfilledAt", *patch.FulfilledAt)
	}
	if patch.ShippedAt != nil {
		add("shippedAt", *patch.ShippedAt)
	}
	if patch.DeliveredAt != nil {
		add("deliveredAt", *patch.DeliveredAt)
	}
	if patch.CancelledAt != nil {
		add("cancelledAt", *patch.CancelledAt)
	}
	if patch.ReturnedAt != nil {
		add("returnedAt", *patch.ReturnedAt)
	}
	if patch.RefundedAt != nil {
		add("refundedAt", *patch.RefundedAt)
	}

	if patch.TrackingNumber != nil {
		add("trackingNumber", *patch.TrackingNumber)
	}
	if patch.LabelURL != nil {
		add("labelUrl", *patch.LabelURL)
	}
	if patch.ReturnStatus != nil {
		add("returnStatus", string(*patch.ReturnStatus))
	}

	if patch.RiskLevel != nil {
		add("riskLevel", string(*patch.RiskLevel))
	}
	if patch.RiskScore != nil {
		add("riskScore", *patch.RiskScore)
	}
	if patch.FlaggedForReview != nil {
		add("flaggedForReview", *patch.FlaggedForReview)
	}

	if patch.CustomerID != nil {
		add("customerId", *patch.CustomerID)
	}
	if patch.StripeCustomerID != nil {
		add("stripeCustomerId", *patch.StripeCustomerID)
	}
	if patch.StripePaymentIntentID != nil {
		add("stripePaymentIntentId", *patch.StripePaymentIntentID)
	}
	if patch.StripeChargeID != nil {
		add("stripeChargeId", *patch.StripeChargeID)
	}
	if patch.StripeBalanceTransactionID != nil {
		add("stripeBalanceTransactionId", *patch.StripeBalanceTransactionID)
	}
	if patch.CartID != nil {
		add("cartId", *patch.CartID)
	}
	if patch.OrderRef != nil {
		add("orderRef", *patch.OrderRef)
	}

	return updates
}

func encodeOrder(order domain.Order) orderDocument {
	order = domain.Normalize(order)
	return orderDocument{
		ID:        order.ID,
		Shop:      order.Shop,
		SessionID: order.SessionID,

		Currency:       order.Currency,
		Deposit:        order.Deposit,
		TotalAmount:    order.TotalAmount,
		SubtotalAmount: order.SubtotalAmount,
		TaxAmount:      order.TaxAmount,
		ShippingAmount: order.ShippingAmount,
		DiscountAmount: order.DiscountAmount,
		RefundTotal:    order.RefundTotal,
		DamageFee:      order.DamageFee,

		StartedAt:   order.StartedAt,
		FulfilledAt: order.FulfilledAt,
		ShippedAt:   order.ShippedAt,
		DeliveredAt: order.DeliveredAt,
		CancelledAt: order.CancelledAt,
		ReturnedAt:  order.ReturnedAt,
		RefundedAt:  order.RefundedAt,

		TrackingNumber: order.TrackingNumber,
		LabelURL:       order.LabelURL,
		ReturnStatus:   stringFromReturnStatus(order.ReturnStatus),

		RiskLevel:        stringFromRiskLevel(order.RiskLevel),
		RiskScore:        order.RiskScore,
		FlaggedForReview: order.FlaggedForReview,

		CustomerID:                 order.CustomerID,
		StripeCustomerID:           order.StripeCustomerID,
		StripePaymentIntentID:      order.StripePaymentIntentID,
		StripeChargeID:             order.StripeChargeID,
		StripeBalanceTransactionID: order.StripeBalanceTransactionID,
		CartID:                     order.CartID,
		OrderRef:                   order.OrderRef,
	}
}

func decodeOrder(doc orderDocument) domain.Order {
	order := domain.Order{
		ID:        doc.ID,
		Shop:      doc.Shop,
		SessionID: doc.SessionID,

		Currency:       doc.Currency,
		Deposit:        doc.Deposit,
		TotalAmount:    doc.TotalAmount,
		SubtotalAmount: doc.SubtotalAmount,
		TaxAmount:      doc.TaxAmount,
		ShippingAmount: doc.ShippingAmount,
		DiscountAmount: doc.DiscountAmount,
		RefundTotal:    doc.RefundTotal,
		DamageFee:      doc.DamageFee,

		StartedAt:   doc.StartedAt,
		FulfilledAt: doc.FulfilledAt,
		ShippedAt:   doc.ShippedAt,
		DeliveredAt: doc.DeliveredAt,
		CancelledAt: doc.CancelledAt,
		ReturnedAt:  doc.ReturnedAt,
		RefundedAt:  doc.RefundedAt,

		TrackingNumber: doc.TrackingNumber,
		LabelURL:       doc.LabelURL,

		RiskScore:        doc.RiskScore,
		FlaggedForReview: doc.FlaggedForReview,

		CustomerID:                 doc.CustomerID,
		StripeCustomerID:           doc.StripeCustomerID,
		StripePaymentIntentID:      doc.StripePaymentIntentID,
		StripeChargeID:             doc.StripeChargeID,
		StripeBalanceTransactionID: doc.StripeBalanceTransactionID,
		CartID:                     doc.CartID,
		OrderRef:                   doc.OrderRef,
	}
	if doc.ReturnStatus != nil {
		rs := domain.ReturnStatus(*doc.ReturnStatus)
		order.ReturnStatus = &rs
	}
	if doc.RiskLevel != nil {
		rl := domain.RiskLevel(*doc.RiskLevel)
		order.RiskLevel = &rl
	}
	return domain.Normalize(order)
}

func stringFromReturnStatus(v *domain.ReturnStatus) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func stringFromRiskLevel(v *domain.RiskLevel) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/loopwear/api/internal/domain"
	"github.com/loopwear/api/internal/platform/httpx"
	"github.com/loopwear/api/internal/repositories"
	"github.com/loopwear/api/internal/services"
)

const maxOrderBodySize = 4 * 1024

var validReturnStatuses = map[domain.ReturnStatus]struct{}{
	domain.ReturnStatusLabelCreated: {},
	domain.ReturnStatusInTransit:    {},
	domain.ReturnStatusDelivered:    {},
}

// OrderHandlers exposes the order read surface and the warehouse-driven
// lifecycle transitions that never arrive as provider webhooks.
type OrderHandlers struct {
	orders services.OrderService
	status services.StatusService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService, status services.StatusService) *OrderHandlers {
	return &OrderHandlers{
		orders: orders,
		status: status,
	}
}

// Routes registers the order endpoints against the shop-scoped group.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
	r.Post("/import", h.importOrder)
	r.Post("/{sessionID}:fulfill", h.markFulfilled)
	r.Post("/{sessionID}:ship", h.markShipped)
	r.Post("/{sessionID}:deliver", h.markDelivered)
	r.Post("/{sessionID}:cancel", h.markCancelled)
	r.Post("/{sessionID}:return", h.markReturned)
	r.Post("/{sessionID}:return-tracking", h.setReturnTracking)
	r.Post("/returns/{trackingNumber}:status", h.setReturnStatus)
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

// importOrderRequest mirrors the loosely-typed payload exported by legacy shop
// backends: amounts arrive as strings or numbers.
type importOrderRequest struct {
	SessionID   string `json:"sessionId"`
	AmountTotal any    `json:"amountTotal"`
	Deposit     any    `json:"deposit"`
	Currency    string `json:"currency"`
	CustomerID  string `json:"customerId"`
	CartID      string `json:"cartId"`
	OrderRef    string `json:"orderId"`
}

type returnRequest struct {
	DamageFee *int64 `json:"damageFee"`
}

type returnTrackingRequest struct {
	TrackingNumber string `json:"trackingNumber"`
	LabelURL       string `json:"labelUrl"`
}

type returnStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	shop := strings.TrimSpace(chi.URLParam(r, "shop"))
	if shop == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shop is required", http.StatusBadRequest))
		return
	}

	var (
		orders []domain.Order
		err    error
	)
	if customerID := strings.TrimSpace(r.URL.Query().Get("customerId")); customerID != "" {
		orders, err = h.orders.OrdersForCustomer(ctx, shop, customerID)
	} else {
		orders, err = h.orders.ListOrders(ctx, shop)
	}
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items})
}

func (h *OrderHandlers) importOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	shop := strings.TrimSpace(chi.URLParam(r, "shop"))
	if shop == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shop is required", http.StatusBadRequest))
		return
	}

	var payload importOrderRequest
	if !decodeOptionalBody(ctx, w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.SessionID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sessionId is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.ImportExternalOrder(ctx, services.ExternalOrderInput{
		Shop:        shop,
		SessionID:   payload.SessionID,
		AmountTotal: payload.AmountTotal,
		Deposit:     payload.Deposit,
		Currency:    payload.Currency,
		CustomerID:  payload.CustomerID,
		CartID:      payload.CartID,
		OrderRef:    payload.OrderRef,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if order == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to import order", http.StatusInternalServerError))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildOrderPayload(*order))
}

func (h *OrderHandlers) markFulfilled(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.status.MarkFulfilled)
}

func (h *OrderHandlers) markShipped(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.status.MarkShipped)
}

func (h *OrderHandlers) markDelivered(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.status.MarkDelivered)
}

func (h *OrderHandlers) markCancelled(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.status.MarkCancelled)
}

func (h *OrderHandlers) applyTransition(w http.ResponseWriter, r *http.Request, transition func(ctx context.Context, shop, sessionID string) (*domain.Order, error)) {
	ctx := r.Context()
	if h.status == nil {
		httpx.WriteError(ctx, w, httpx.NewError("status_service_unavailable", "status service unavailable", http.StatusServiceUnavailable))
		return
	}

	shop, sessionID, ok := orderIdentity(w, r)
	if !ok {
		return
	}

	order, err := transition(ctx, shop, sessionID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeOrderResponse(ctx, w, order)
}

func (h *OrderHandlers) markReturned(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.status == nil {
		httpx.WriteError(ctx, w, httpx.NewError("status_service_unavailable", "status service unavailable", http.StatusServiceUnavailable))
		return
	}

	shop, sessionID, ok := orderIdentity(w, r)
	if !ok {
		return
	}

	var payload returnRequest
	if !decodeOptionalBody(ctx, w, r, &payload) {
		return
	}

	order, err := h.status.MarkReturned(ctx, shop, sessionID, payload.DamageFee)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeOrderResponse(ctx, w, order)
}

func (h *OrderHandlers) setReturnTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.status == nil {
		httpx.WriteError(ctx, w, httpx.NewError("status_service_unavailable", "status service unavailable", http.StatusServiceUnavailable))
		return
	}

	shop, sessionID, ok := orderIdentity(w, r)
	if !ok {
		return
	}

	var payload returnTrackingRequest
	if !decodeOptionalBody(ctx, w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.TrackingNumber) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "trackingNumber is required", http.StatusBadRequest))
		return
	}

	order, err := h.status.SetReturnTracking(ctx, shop, sessionID, payload.TrackingNumber, payload.LabelURL)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeOrderResponse(ctx, w, order)
}

func (h *OrderHandlers) setReturnStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.status == nil {
		httpx.WriteError(ctx, w, httpx.NewError("status_service_unavailable", "status service unavailable", http.StatusServiceUnavailable))
		return
	}

	shop := strings.TrimSpace(chi.URLParam(r, "shop"))
	trackingNumber := strings.TrimSpace(chi.URLParam(r, "trackingNumber"))
	if shop == "" || trackingNumber == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shop and trackingNumber are required", http.StatusBadRequest))
		return
	}

	var payload returnStatusRequest
	if !decodeOptionalBody(ctx, w, r, &payload) {
		return
	}
	status := domain.ReturnStatus(strings.ToLower(strings.TrimSpace(payload.Status)))
	if _, ok := validReturnStatuses[status]; !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be one of label_created, in_transit, delivered", http.StatusBadRequest))
		return
	}

	order, err := h.status.SetReturnStatus(ctx, shop, trackingNumber, status)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeOrderResponse(ctx, w, order)
}

func orderIdentity(w http.ResponseWriter, r *http.Request) (shop, sessionID string, ok bool) {
	ctx := r.Context()
	shop = strings.TrimSpace(chi.URLParam(r, "shop"))
	sessionID = strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if shop == "" || sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shop and session id are required", http.StatusBadRequest))
		return "", "", false
	}
	return shop, sessionID, true
}

// decodeOptionalBody parses the JSON body into dst; an empty body is accepted
// and leaves dst zeroed.
func decodeOptionalBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOrderBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeOrderResponse(ctx context.Context, w http.ResponseWriter, order *domain.Order) {
	if order == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(*order))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound), repositories.IsNotFound(err):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case repositories.IsConflict(err):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order already exists", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

type orderPayload struct {
	ID        string `json:"id"`
	Shop      string `json:"shop"`
	SessionID string `json:"sessionId"`

	Currency       string `json:"currency,omitempty"`
	Deposit        int64  `json:"deposit"`
	TotalAmount    *int64 `json:"totalAmount,omitempty"`
	SubtotalAmount *int64 `json:"subtotalAmount,omitempty"`
	TaxAmount      *int64 `json:"taxAmount,omitempty"`
	ShippingAmount *int64 `json:"shippingAmount,omitempty"`
	DiscountAmount *int64 `json:"discountAmount,omitempty"`
	RefundTotal    *int64 `json:"refundTotal,omitempty"`
	DamageFee      *int64 `json:"damageFee,omitempty"`

	StartedAt   string  `json:"startedAt,omitempty"`
	FulfilledAt *string `json:"fulfilledAt,omitempty"`
	ShippedAt   *string `json:"shippedAt,omitempty"`
	DeliveredAt *string `json:"deliveredAt,omitempty"`
	CancelledAt *string `json:"cancelledAt,omitempty"`
	ReturnedAt  *string `json:"returnedAt,omitempty"`
	RefundedAt  *string `json:"refundedAt,omitempty"`

	TrackingNumber *string `json:"trackingNumber,omitempty"`
	LabelURL       *string `json:"labelUrl,omitempty"`
	ReturnStatus   *string `json:"returnStatus,omitempty"`

	RiskLevel        *string  `json:"riskLevel,omitempty"`
	RiskScore        *float64 `json:"riskScore,omitempty"`
	FlaggedForReview bool     `json:"flaggedForReview"`

	CustomerID                 *string `json:"customerId,omitempty"`
	StripeCustomerID           *string `json:"stripeCustomerId,omitempty"`
	StripePaymentIntentID      *string `json:"stripePaymentIntentId,omitempty"`
	StripeChargeID             *string `json:"stripeChargeId,omitempty"`
	StripeBalanceTransactionID *string `json:"stripeBalanceTransactionId,omitempty"`
	CartID                     *string `json:"cartId,omitempty"`
	OrderRef                   *string `json:"orderRef,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
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

		FulfilledAt: formatTimePointer(order.FulfilledAt),
		ShippedAt:   formatTimePointer(order.ShippedAt),
		DeliveredAt: formatTimePointer(order.DeliveredAt),
		CancelledAt: formatTimePointer(order.CancelledAt),
		ReturnedAt:  formatTimePointer(order.ReturnedAt),
		RefundedAt:  formatTimePointer(order.RefundedAt),

		TrackingNumber: order.TrackingNumber,
		LabelURL:       order.LabelURL,

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
	if !order.StartedAt.IsZero() {
		payload.StartedAt = order.StartedAt.UTC().Format(time.RFC3339)
	}
	if order.ReturnStatus != nil {
		value := string(*order.ReturnStatus)
		payload.ReturnStatus = &value
	}
	if order.RiskLevel != nil {
		value := string(*order.RiskLevel)
		payload.RiskLevel = &value
	}
	return payload
}

func formatTimePointer(v *time.Time) *string {
	if v == nil {
		return nil
	}
	formatted := v.UTC().Format(time.RFC3339)
	return &formatted
}

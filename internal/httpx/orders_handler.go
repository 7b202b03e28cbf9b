package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-commerce-core/internal/commerce"
	kafkax "github.com/ariefcatur/go-commerce-core/internal/kafka"
	"github.com/ariefcatur/go-commerce-core/internal/redisx"
	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// Producers groups the per-topic publishers the handlers emit to.
type Producers struct {
	OrderPaid        *kafkax.Producer
	OrderCanceled    *kafkax.Producer
	OrderTransferred *kafkax.Producer
	PaymentFailed    *kafkax.Producer
}

type OrdersHandler struct {
	Store     store.Store
	Manager   *commerce.Manager
	Producers Producers
	Redis     *redis.Client
	Service   string
}

type ItemInput struct {
	ID        string                 `json:"id,omitempty"`
	Type      commerce.OrderItemType `json:"type"`
	ProductID string                 `json:"product_id,omitempty"`
	SKUID     string                 `json:"sku_id,omitempty"`
	Quantity  int64                  `json:"quantity"`
	Currency  commerce.Currency      `json:"currency"`
	Amount    int64                  `json:"amount"`
}

type CreateOrderReq struct {
	ExternalID     string                  `json:"external_id"`
	BuyerID        string                  `json:"buyer_id"`
	SellerID       string                  `json:"seller_id"`
	Currency       commerce.Currency       `json:"currency"`
	Amount         int64                   `json:"amount"`
	ExpirationDate time.Time               `json:"expiration_date,omitempty"`
	ShippingTo     map[string]string       `json:"shipping_to,omitempty"`
	Items          []ItemInput             `json:"items"`
	Payment        commerce.PaymentOptions `json:"payment"`
}

type CreateOrderResp struct {
	OrderID       string `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	Idempotent    bool   `json:"idempotent"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/items/{itemID}/cancel", h.cancelOrderItem)
	r.Post("/orders/{id}/transfer", h.transferOrder)
	r.Post("/orders/{id}/transfer/cancel", h.cancelTransfer)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the orchestrator's error kind onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	default:
		switch commerce.KindOf(err) {
		case commerce.KindInvalidArgument, commerce.KindInvalidCurrency, commerce.KindInvalidAmount:
			code = http.StatusBadRequest
		case commerce.KindInvalidStatus:
			code = http.StatusConflict
		case commerce.KindOutOfStock:
			code = http.StatusConflict
		}
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "kind": string(commerce.KindOf(err))})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ExternalID == "" || req.BuyerID == "" || req.SellerID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// Fast-path idempotency via Redis; the store stays the source of truth.
	idemCacheKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, req.ExternalID)
	if id, err := h.Redis.Get(ctx, idemCacheKey).Result(); err == nil && id != "" {
		order, items, gerr := commerce.GetOrder(ctx, h.Store, id)
		if gerr == nil {
			switch order.PaymentStatus {
			case commerce.PaymentNone, commerce.PaymentFailure:
				// settlement never landed; drive the existing order again
				// instead of answering with the failed status
				h.settle(ctx, w, r, order, items, req.Payment, true)
			default:
				writeJSON(w, http.StatusOK, CreateOrderResp{
					OrderID:       order.ID,
					PaymentStatus: string(order.PaymentStatus),
					Idempotent:    true,
				})
			}
			return
		}
	}

	order := &commerce.Order{
		ID:             uuid.NewString(),
		BuyerID:        req.BuyerID,
		SellerID:       req.SellerID,
		Currency:       req.Currency,
		Amount:         req.Amount,
		ShippingTo:     req.ShippingTo,
		ExpirationDate: req.ExpirationDate,
	}
	if order.ExpirationDate.IsZero() {
		order.ExpirationDate = time.Now().UTC().Add(24 * time.Hour)
	}
	items := make([]*commerce.OrderItem, 0, len(req.Items))
	for _, in := range req.Items {
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		items = append(items, &commerce.OrderItem{
			ID:        id,
			Type:      in.Type,
			ProductID: in.ProductID,
			SKUID:     in.SKUID,
			Quantity:  in.Quantity,
			Currency:  in.Currency,
			Amount:    in.Amount,
		})
	}

	if err := commerce.CreateOrder(ctx, h.Store, order, items); err != nil {
		writeError(w, err)
		return
	}
	_ = h.Redis.Set(ctx, idemCacheKey, order.ID, redisx.TTLIdempotency).Err()

	h.settle(ctx, w, r, order, items, req.Payment, false)
}

// settle drives Manager.Order for a created or retried order and answers for
// createOrder.
func (h *OrdersHandler) settle(ctx context.Context, w http.ResponseWriter, r *http.Request,
	order *commerce.Order, items []*commerce.OrderItem, opts commerce.PaymentOptions, retried bool) {
	err := h.Manager.Order(ctx, order, items, opts)
	h.cacheStatus(ctx, order)
	if err != nil {
		h.publishPaymentFailed(r, order, err)
		writeError(w, err)
		return
	}

	h.publishOrderPaid(r, order)
	code := http.StatusCreated
	if retried {
		code = http.StatusOK
	}
	writeJSON(w, code, CreateOrderResp{
		OrderID:       order.ID,
		PaymentStatus: string(order.PaymentStatus),
		Idempotent:    retried,
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) status cache
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	// 2) fallback to the store
	order, items, err := commerce.GetOrder(ctx, h.Store, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, map[string]any{"order": order, "items": items})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, items, err := commerce.GetOrder(ctx, h.Store, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Manager.OrderCancel(ctx, order, items); err != nil {
		h.cacheStatus(ctx, order)
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	h.publish(r, h.Producers.OrderCanceled, commerce.EventOrderCanceled, order.ID,
		commerce.OrderCanceledPayload{
			OrderID:        order.ID,
			Currency:       order.Currency,
			RefundedAmount: order.Amount,
		})
	writeJSON(w, http.StatusOK, map[string]string{
		"order_id":       order.ID,
		"payment_status": string(order.PaymentStatus),
	})
}

type cancelItemReq struct {
	UnitID string `json:"unit_id,omitempty"`
}

// cancelOrderItem cancels one fulfillment unit of a line item. With no body
// the first unit still active is picked.
func (h *OrdersHandler) cancelOrderItem(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	itemID := chi.URLParam(r, "itemID")

	var req cancelItemReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, items, err := commerce.GetOrder(ctx, h.Store, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	var item *commerce.OrderItem
	for _, it := range items {
		if it.ID == itemID {
			item = it
			break
		}
	}
	if item == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown order item"})
		return
	}
	if err := h.Manager.OrderChange(ctx, order, item, req.UnitID); err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, map[string]string{
		"order_id":    order.ID,
		"item_id":     item.ID,
		"item_status": string(item.Status),
	})
}

func (h *OrdersHandler) transferOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, _, err := commerce.GetOrder(ctx, h.Store, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Manager.Transfer(ctx, order); err != nil {
		h.cacheStatus(ctx, order)
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	h.publish(r, h.Producers.OrderTransferred, commerce.EventOrderTransferred, order.ID,
		commerce.OrderTransferredPayload{
			OrderID:  order.ID,
			SellerID: order.SellerID,
			Currency: order.Currency,
			Amount:   order.Amount,
		})
	writeJSON(w, http.StatusOK, map[string]string{
		"order_id":        order.ID,
		"transfer_status": string(order.TransferStatus),
	})
}

func (h *OrdersHandler) cancelTransfer(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, _, err := commerce.GetOrder(ctx, h.Store, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Manager.TransferCancel(ctx, order); err != nil {
		h.cacheStatus(ctx, order)
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, map[string]string{
		"order_id":        order.ID,
		"transfer_status": string(order.TransferStatus),
	})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, order *commerce.Order) {
	body, err := json.Marshal(map[string]string{
		"order_id":        order.ID,
		"payment_status":  string(order.PaymentStatus),
		"transfer_status": string(order.TransferStatus),
	})
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, order.ID)
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) publishOrderPaid(r *http.Request, order *commerce.Order) {
	h.publish(r, h.Producers.OrderPaid, commerce.EventOrderPaid, order.ID,
		commerce.OrderPaidPayload{
			OrderID:  order.ID,
			BuyerID:  order.BuyerID,
			SellerID: order.SellerID,
			Currency: order.Currency,
			Amount:   order.Amount,
		})
}

func (h *OrdersHandler) publishPaymentFailed(r *http.Request, order *commerce.Order, cause error) {
	h.publish(r, h.Producers.PaymentFailed, commerce.EventPaymentFailed, order.ID,
		commerce.PaymentFailedPayload{
			OrderID: order.ID,
			Reason:  cause.Error(),
		})
}

func (h *OrdersHandler) publish(r *http.Request, p *kafkax.Producer, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	ev := commerce.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(commerce.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

package commerce

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPaid        = "OrderPaid"
	EventOrderCanceled    = "OrderCanceled"
	EventOrderTransferred = "OrderTransferred"
	EventPaymentFailed    = "PaymentFailed"
)

// Envelope wraps every published event with routing metadata. CorrelationID
// is the order id.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderPaidPayload struct {
	OrderID  string   `json:"order_id"`
	BuyerID  string   `json:"buyer_id"`
	SellerID string   `json:"seller_id"`
	Currency Currency `json:"currency"`
	Amount   int64    `json:"amount"`
}

type OrderCanceledPayload struct {
	OrderID        string   `json:"order_id"`
	Currency       Currency `json:"currency"`
	RefundedAmount int64    `json:"refunded_amount"`
}

type OrderTransferredPayload struct {
	OrderID  string   `json:"order_id"`
	SellerID string   `json:"seller_id"`
	Currency Currency `json:"currency"`
	Amount   int64    `json:"amount"`
}

type PaymentFailedPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

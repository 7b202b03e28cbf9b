package commerce

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// VendorResult is the opaque payload a gateway returns for one call. It is
// stored as-is on the order and the ledger entry.
type VendorResult = json.RawMessage

// PaymentOptions forwards gateway-specific charge parameters.
type PaymentOptions struct {
	Source   string `json:"source,omitempty"`
	Customer string `json:"customer,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
}

// PaymentDelegate performs external money movement. An external call cannot
// join a store transaction, so every call takes an idempotency key derived
// from the order (or payout request) plus the operation; implementations
// must make retries with the same key safe.
type PaymentDelegate interface {
	Pay(ctx context.Context, currency Currency, amount int64, order *Order, opts PaymentOptions, idemKey string) (VendorResult, error)
	Refund(ctx context.Context, currency Currency, amount int64, order *Order, idemKey string) (VendorResult, error)
	PartialRefund(ctx context.Context, currency Currency, amount int64, order *Order, idemKey string) (VendorResult, error)
	Transfer(ctx context.Context, currency Currency, amount int64, order *Order, seller *Account, idemKey string) (VendorResult, error)
	TransferCancel(ctx context.Context, currency Currency, amount int64, order *Order, idemKey string) (VendorResult, error)
	Payout(ctx context.Context, currency Currency, amount int64, accountID, idemKey string) (VendorResult, error)
	PayoutCancel(ctx context.Context, currency Currency, amount int64, accountID, idemKey string) (VendorResult, error)
}

// ItemRef points at one reserved fulfillment unit and remembers which shard
// counted it, so a later release decrements the exact shard that was
// incremented. Canceled refs stay visible so repeated cancels can be told
// apart from units that never existed.
type ItemRef struct {
	ID       string `json:"id"`
	Shard    int    `json:"shard"`
	Canceled bool   `json:"canceled,omitempty"`
}

// TradeDelegate materializes and cancels concrete per-unit stock records
// inside the caller's transaction. Units track physical fulfillment
// independent of the shard counters.
type TradeDelegate interface {
	CreateItem(ctx context.Context, tx store.Tx, order *Order, item *OrderItem, shard int) (ItemRef, error)
	CancelItem(ctx context.Context, tx store.Tx, order *Order, item *OrderItem, ref ItemRef) error
	Items(ctx context.Context, tx store.Tx, order *Order, item *OrderItem) ([]ItemRef, error)
}

func idemKey(id, op string) string { return id + ":" + op }

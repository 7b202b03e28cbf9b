package commerce

import (
	"encoding/json"
	"time"
)

// PlatformAccount is the pseudo-party for money held by the platform itself.
// BankAccount is the pseudo-party for the external payout sink. Neither has
// an Account document.
const (
	PlatformAccount = "platform"
	BankAccount     = "bank"
)

type InventoryType string

const (
	InventoryFinite   InventoryType = "finite"
	InventoryBucket   InventoryType = "bucket"
	InventoryInfinite InventoryType = "infinite"
)

type StockValue string

const (
	StockInStock    StockValue = "inStock"
	StockLimited    StockValue = "limited"
	StockOutOfStock StockValue = "outOfStock"
)

// Inventory describes how a SKU counts its stock: an exact finite pool, a
// coarse tri-state bucket, or unlimited.
type Inventory struct {
	Type     InventoryType `json:"type"`
	Quantity int64         `json:"quantity,omitempty"` // finite only
	Value    StockValue    `json:"value,omitempty"`    // bucket only
}

const DefaultStockShards = 5

type SKU struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	SellerID  string    `json:"seller_id"`
	CreatedBy string    `json:"created_by"`
	Currency  Currency  `json:"currency"`
	Amount    int64     `json:"amount"` // unit price
	Inventory Inventory `json:"inventory"`
	UnitSales int64     `json:"unit_sales"`

	IsPublished bool `json:"is_published"`
	IsActive    bool `json:"is_active"`
	// IsOutOfStock is a best-effort listing flag; the shard sum inside the
	// reserving transaction is the authoritative check.
	IsOutOfStock bool `json:"is_out_of_stock"`

	NumberOfShards int       `json:"number_of_shards"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Shards returns the shard count, defaulting for SKUs that predate sharding.
func (s *SKU) Shards() int {
	if s.NumberOfShards <= 0 {
		return DefaultStockShards
	}
	return s.NumberOfShards
}

// InventoryShard holds one partition of a SKU's reserved-unit counter.
// Splitting the counter across shards bounds write contention to 1/N of the
// traffic on the SKU.
type InventoryShard struct {
	ID       string `json:"id"`
	SKUID    string `json:"sku_id"`
	Reserved int64  `json:"reserved"`
}

type OrderItemType string

const (
	ItemTypeSKU      OrderItemType = "sku"
	ItemTypeTax      OrderItemType = "tax"
	ItemTypeShipping OrderItemType = "shipping"
	ItemTypeDiscount OrderItemType = "discount"
)

type OrderItemStatus string

const (
	ItemStatusNone     OrderItemStatus = "NONE"
	ItemStatusChanged  OrderItemStatus = "CHANGED"
	ItemStatusCanceled OrderItemStatus = "CANCELED"
)

// OrderItem is one line of an order; its lifetime is bound to the order.
// Amount is the per-unit price.
type OrderItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Type      OrderItemType   `json:"type"`
	ProductID string          `json:"product_id,omitempty"`
	SKUID     string          `json:"sku_id,omitempty"`
	Quantity  int64           `json:"quantity"`
	Currency  Currency        `json:"currency"`
	Amount    int64           `json:"amount"`
	Status    OrderItemStatus `json:"status,omitempty"`
}

type Order struct {
	ID       string   `json:"id"`
	BuyerID  string   `json:"buyer_id"`
	SellerID string   `json:"seller_id"`
	Currency Currency `json:"currency"`
	Amount   int64    `json:"amount"`
	ItemIDs  []string `json:"item_ids,omitempty"`

	PaymentStatus  PaymentStatus  `json:"payment_status"`
	TransferStatus TransferStatus `json:"transfer_status"`

	// RefundedAmount is the pre-fee total already reversed by item changes,
	// in minor units. Cancellation refunds Amount minus this.
	RefundedAmount int64 `json:"refunded_amount,omitempty"`

	ShippingTo          map[string]string `json:"shipping_to,omitempty"`
	PaymentInformation  json.RawMessage   `json:"payment_information,omitempty"`
	RefundInformation   json.RawMessage   `json:"refund_information,omitempty"`
	TransferInformation json.RawMessage   `json:"transfer_information,omitempty"`

	ExpirationDate time.Time `json:"expiration_date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Amounts keys minor-unit totals by currency.
type Amounts map[Currency]int64

// Balance keeps the two ledger phases apart: AccountsReceivable is money owed
// to the account but not yet transferred, Available is money transferred and
// payable out. The split prevents paying out funds that were never settled.
type Balance struct {
	Available          Amounts `json:"available"`
	AccountsReceivable Amounts `json:"accounts_receivable"`
}

func (b *Balance) CreditAvailable(c Currency, amount int64) {
	if b.Available == nil {
		b.Available = Amounts{}
	}
	b.Available[c] += amount
}

func (b *Balance) DebitAvailable(c Currency, amount int64) error {
	if b.Available[c] < amount {
		return newError(KindInvalidAmount, "",
			"available %s balance %d is less than %d", c, b.Available[c], amount)
	}
	b.Available[c] -= amount
	return nil
}

func (b *Balance) CreditReceivable(c Currency, amount int64) {
	if b.AccountsReceivable == nil {
		b.AccountsReceivable = Amounts{}
	}
	b.AccountsReceivable[c] += amount
}

func (b *Balance) DebitReceivable(c Currency, amount int64) error {
	if b.AccountsReceivable[c] < amount {
		return newError(KindInvalidAmount, "",
			"receivable %s balance %d is less than %d", c, b.AccountsReceivable[c], amount)
	}
	b.AccountsReceivable[c] -= amount
	return nil
}

type Account struct {
	ID        string    `json:"id"`
	Country   string    `json:"country,omitempty"`
	Balance   Balance   `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BalanceTransactionType string

const (
	BalanceTxPayment        BalanceTransactionType = "payment"
	BalanceTxPaymentRefund  BalanceTransactionType = "paymentRefund"
	BalanceTxTransfer       BalanceTransactionType = "transfer"
	BalanceTxTransferRefund BalanceTransactionType = "transferRefund"
	BalanceTxPayout         BalanceTransactionType = "payout"
	BalanceTxPayoutCancel   BalanceTransactionType = "payoutCancel"
)

// BalanceTransaction is an immutable ledger entry recording one money
// movement between two parties. Vendor results may be appended later via
// array union; nothing else ever changes.
type BalanceTransaction struct {
	ID              string                 `json:"id"`
	Type            BalanceTransactionType `json:"type"`
	Currency        Currency               `json:"currency"`
	Amount          int64                  `json:"amount"`
	From            string                 `json:"from"` // account id, PlatformAccount or BankAccount
	To              string                 `json:"to"`
	OrderID         string                 `json:"order_id,omitempty"`
	TransferResults []json.RawMessage      `json:"transfer_results,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

type TradeTransactionType string

const (
	TradeTxOrder       TradeTransactionType = "order"
	TradeTxOrderChange TradeTransactionType = "orderChange"
	TradeTxOrderCancel TradeTransactionType = "orderCancel"
)

// TradeTransaction is an immutable record of one stock movement, written once
// per stock operation into both the buyer's and the seller's history.
type TradeTransaction struct {
	ID        string               `json:"id"`
	Type      TradeTransactionType `json:"type"`
	Quantity  int64                `json:"quantity"`
	SellerID  string               `json:"seller_id"`
	BuyerID   string               `json:"buyer_id"`
	OrderID   string               `json:"order_id"`
	ProductID string               `json:"product_id"`
	SKUID     string               `json:"sku_id"`
	ItemIDs   []string             `json:"item_ids"`
	CreatedAt time.Time            `json:"created_at"`
}

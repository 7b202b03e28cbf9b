package commerce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// fakeGateway counts calls per operation and records every idempotency key.
// Individual operations can be told to fail.
type fakeGateway struct {
	mu      sync.Mutex
	calls   map[string]int
	amounts map[string]int64
	keys    []string
	fail    map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		calls:   map[string]int{},
		amounts: map[string]int64{},
		fail:    map[string]bool{},
	}
}

func (g *fakeGateway) record(op, key string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[op]++
	g.amounts[op] = amount
	g.keys = append(g.keys, key)
	if g.fail[op] {
		return errors.New(op + " declined")
	}
	return nil
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) lastAmount(op string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.amounts[op]
}

func (g *fakeGateway) sawKey(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range g.keys {
		if k == key {
			return true
		}
	}
	return false
}

func (g *fakeGateway) keysWithPrefix(prefix string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, k := range g.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

var okResult = VendorResult(`{"ok":true}`)

func (g *fakeGateway) Pay(ctx context.Context, c Currency, amount int64, o *Order, opts PaymentOptions, key string) (VendorResult, error) {
	if err := g.record("pay", key, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (g *fakeGateway) Refund(ctx context.Context, c Currency, amount int64, o *Order, key string) (VendorResult, error) {
	if err := g.record("refund", key, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (g *fakeGateway) PartialRefund(ctx context.Context, c Currency, amount int64, o *Order, key string) (VendorResult, error) {
	if err := g.record("partialRefund", key, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (g *fakeGateway) Transfer(ctx context.Context, c Currency, amount int64, o *Order, seller *Account, key string) (VendorResult, error) {
	if err := g.record("transfer", key, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (g *fakeGateway) TransferCancel(ctx context.Context, c Currency, amount int64, o *Order, key string) (VendorResult, error) {
	if err := g.record("transferCancel", key, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (g *fakeGateway) Payout(ctx context.Context, c Currency, amount int64, accountID, key string) (VendorResult, error) {
	if err := g.record("payout", key, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (g *fakeGateway) PayoutCancel(ctx context.Context, c Currency, amount int64, accountID, key string) (VendorResult, error) {
	if err := g.record("payoutCancel", key, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

// flakyStore fails a configured number of transactions, optionally after
// letting some pass first, to exercise the compensation paths.
type flakyStore struct {
	store.Store
	mu       sync.Mutex
	skip     int
	failures int
}

func (s *flakyStore) breakAfter(skip, failures int) {
	s.mu.Lock()
	s.skip, s.failures = skip, failures
	s.mu.Unlock()
}

func (s *flakyStore) RunTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	if s.failures > 0 {
		if s.skip > 0 {
			s.skip--
		} else {
			s.failures--
			s.mu.Unlock()
			return errors.New("store unavailable")
		}
	}
	s.mu.Unlock()
	return s.Store.RunTransaction(ctx, fn)
}

type managerEnv struct {
	st  *flakyStore
	gw  *fakeGateway
	mgr *Manager
}

func newManagerEnv(t *testing.T, cfg Config) *managerEnv {
	t.Helper()
	st := &flakyStore{Store: store.NewMemory()}
	gw := newFakeGateway()
	mgr := NewManager(st, gw, NewItemStore(), cfg)

	ctx := context.Background()
	for _, id := range []string{"b1", "s1"} {
		if err := CreateAccount(ctx, st, &Account{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := CreateSKU(ctx, st, &SKU{
		ID: "sku1", ProductID: "p1", SellerID: "s1",
		Currency: JPY, Amount: 100,
		Inventory: Inventory{Type: InventoryFinite, Quantity: 5},
	}); err != nil {
		t.Fatal(err)
	}
	return &managerEnv{st: st, gw: gw, mgr: mgr}
}

func (e *managerEnv) newOrder(t *testing.T, qty int64) (*Order, []*OrderItem) {
	t.Helper()
	order := &Order{
		ID: "o1", BuyerID: "b1", SellerID: "s1",
		Currency: JPY, Amount: 100 * qty,
		ExpirationDate: time.Now().UTC().Add(time.Hour),
	}
	items := []*OrderItem{
		{ID: "i1", Type: ItemTypeSKU, ProductID: "p1", SKUID: "sku1", Quantity: qty, Currency: JPY, Amount: 100},
	}
	if err := CreateOrder(context.Background(), e.st, order, items); err != nil {
		t.Fatal(err)
	}
	return order, items
}

func (e *managerEnv) paidOrder(t *testing.T, qty int64) (*Order, []*OrderItem) {
	t.Helper()
	order, items := e.newOrder(t, qty)
	if err := e.mgr.Order(context.Background(), order, items, PaymentOptions{}); err != nil {
		t.Fatal(err)
	}
	return order, items
}

func (e *managerEnv) account(t *testing.T, id string) *Account {
	t.Helper()
	acct, err := GetAccount(context.Background(), e.st, id)
	if err != nil {
		t.Fatal(err)
	}
	return acct
}

func (e *managerEnv) reloadOrder(t *testing.T, id string) *Order {
	t.Helper()
	order, _, err := GetOrder(context.Background(), e.st, id)
	if err != nil {
		t.Fatal(err)
	}
	return order
}

func TestOrderSettlesAndBooksReceivable(t *testing.T) {
	env := newManagerEnv(t, Config{PlatformFeeBPS: 1000})
	order, _ := env.paidOrder(t, 1)

	if order.PaymentStatus != PaymentPaid {
		t.Fatalf("status = %s, want PAID", order.PaymentStatus)
	}
	if env.gw.count("pay") != 1 || !env.gw.sawKey("o1:order") {
		t.Fatalf("charge not keyed as expected: %+v", env.gw.keys)
	}

	// 10% platform fee: seller is owed 90, held as receivable until transfer
	seller := env.account(t, "s1")
	if seller.Balance.AccountsReceivable[JPY] != 90 {
		t.Fatalf("receivable = %d, want 90", seller.Balance.AccountsReceivable[JPY])
	}
	if seller.Balance.Available[JPY] != 0 {
		t.Fatalf("available = %d before transfer, want 0", seller.Balance.Available[JPY])
	}

	// the fan-out views carry the same paid order
	for _, ref := range []store.Ref{buyerOrderRef("b1", "o1"), receivedOrderRef("s1", "o1")} {
		var view Order
		if err := env.st.RunTransaction(context.Background(), func(tx store.Tx) error {
			return tx.Get(ref, &view)
		}); err != nil {
			t.Fatalf("view %s missing: %v", ref, err)
		}
		if view.PaymentStatus != PaymentPaid {
			t.Fatalf("view %s status = %s, want PAID", ref, view.PaymentStatus)
		}
	}
}

func TestOrderZeroAmountSkipsGateway(t *testing.T) {
	env := newManagerEnv(t, Config{})
	order := &Order{
		ID: "o1", BuyerID: "b1", SellerID: "s1",
		Currency: JPY, ExpirationDate: time.Now().UTC().Add(time.Hour),
	}
	items := []*OrderItem{
		{ID: "i1", Type: ItemTypeSKU, ProductID: "p1", SKUID: "sku1", Quantity: 1, Currency: JPY, Amount: 0},
	}
	if err := CreateOrder(context.Background(), env.st, order, items); err != nil {
		t.Fatal(err)
	}
	if err := env.mgr.Order(context.Background(), order, items, PaymentOptions{}); err != nil {
		t.Fatal(err)
	}
	if order.PaymentStatus != PaymentPaid {
		t.Fatalf("status = %s, want PAID", order.PaymentStatus)
	}
	if env.gw.count("pay") != 0 {
		t.Fatal("zero-amount order must not hit the gateway")
	}
	// stock is still reserved
	if sum, _ := ReservedUnits(context.Background(), env.st, "sku1", DefaultStockShards); sum != 1 {
		t.Fatalf("reserved = %d, want 1", sum)
	}
}

func TestOrderRetryAfterSuccessIsNoop(t *testing.T) {
	env := newManagerEnv(t, Config{})
	order, items := env.paidOrder(t, 1)

	if err := env.mgr.Order(context.Background(), order, items, PaymentOptions{}); err != nil {
		t.Fatalf("retry on paid order: %v", err)
	}
	if env.gw.count("pay") != 1 {
		t.Fatalf("pay called %d times, want 1", env.gw.count("pay"))
	}
	if sum, _ := ReservedUnits(context.Background(), env.st, "sku1", DefaultStockShards); sum != 1 {
		t.Fatalf("reserved = %d after retry, want 1", sum)
	}
}

func TestOrderValidationRejectsAndPersists(t *testing.T) {
	env := newManagerEnv(t, Config{})
	order, items := env.newOrder(t, 1)
	order.Amount = 150 // item total is 100

	err := env.mgr.Order(context.Background(), order, items, PaymentOptions{})
	if KindOf(err) != KindInvalidAmount {
		t.Fatalf("want INVALID_AMOUNT, got %v", err)
	}
	if env.gw.count("pay") != 0 {
		t.Fatal("rejected order must not be charged")
	}
	if got := env.reloadOrder(t, "o1"); got.PaymentStatus != PaymentRejected {
		t.Fatalf("persisted status = %s, want REJECTED", got.PaymentStatus)
	}
}

func TestOrderChargeFailureIsRetryable(t *testing.T) {
	env := newManagerEnv(t, Config{})
	order, items := env.newOrder(t, 1)

	env.gw.fail["pay"] = true
	if err := env.mgr.Order(context.Background(), order, items, PaymentOptions{}); err == nil {
		t.Fatal("want error on declined charge")
	}
	if got := env.reloadOrder(t, "o1"); got.PaymentStatus != PaymentFailure {
		t.Fatalf("persisted status = %s, want PAYMENT_FAILURE", got.PaymentStatus)
	}
	if env.gw.count("refund") != 0 {
		t.Fatal("nothing was charged, nothing to refund")
	}

	// same operation retried after the failure succeeds
	env.gw.fail["pay"] = false
	if err := env.mgr.Order(context.Background(), order, items, PaymentOptions{}); err != nil {
		t.Fatal(err)
	}
	if order.PaymentStatus != PaymentPaid {
		t.Fatalf("status = %s after retry, want PAID", order.PaymentStatus)
	}
}

func TestOrderRefundsChargeWhenSettlementFails(t *testing.T) {
	env := newManagerEnv(t, Config{})
	order, items := env.newOrder(t, 1)

	env.st.breakAfter(0, 1) // the settlement transaction
	err := env.mgr.Order(context.Background(), order, items, PaymentOptions{})
	if err == nil {
		t.Fatal("want error when the settlement transaction fails")
	}
	if env.gw.count("refund") != 1 || env.gw.lastAmount("refund") != 100 {
		t.Fatalf("charge not compensated: %d calls, amount %d",
			env.gw.count("refund"), env.gw.lastAmount("refund"))
	}
	if !env.gw.sawKey("o1:order.refund") {
		t.Fatalf("compensating refund not keyed: %+v", env.gw.keys)
	}
	if got := env.reloadOrder(t, "o1"); got.PaymentStatus != PaymentFailure {
		t.Fatalf("persisted status = %s, want PAYMENT_FAILURE", got.PaymentStatus)
	}
	if sum, _ := ReservedUnits(context.Background(), env.st, "sku1", DefaultStockShards); sum != 0 {
		t.Fatalf("failed settlement must not hold stock, reserved = %d", sum)
	}
}

func TestOrderCancelRoundTrip(t *testing.T) {
	env := newManagerEnv(t, Config{PlatformFeeBPS: 1000, RefundFeeBPS: 1000})
	order, items := env.paidOrder(t, 1)

	if err := env.mgr.OrderCancel(context.Background(), order, items); err != nil {
		t.Fatal(err)
	}
	if order.PaymentStatus != PaymentCanceled {
		t.Fatalf("status = %s, want CANCELED", order.PaymentStatus)
	}
	// 10% refund fee: the buyer gets 90 back
	if env.gw.count("refund") != 1 || env.gw.lastAmount("refund") != 90 {
		t.Fatalf("refund: %d calls, amount %d, want 1 call of 90",
			env.gw.count("refund"), env.gw.lastAmount("refund"))
	}
	if !env.gw.sawKey("o1:orderCancel") {
		t.Fatalf("refund not keyed: %+v", env.gw.keys)
	}

	seller := env.account(t, "s1")
	if seller.Balance.AccountsReceivable[JPY] != 0 {
		t.Fatalf("receivable = %d after cancel, want 0", seller.Balance.AccountsReceivable[JPY])
	}
	if sum, _ := ReservedUnits(context.Background(), env.st, "sku1", DefaultStockShards); sum != 0 {
		t.Fatalf("reserved = %d after cancel, want 0", sum)
	}
	if got := env.reloadOrder(t, "o1"); got.PaymentStatus != PaymentCanceled {
		t.Fatalf("persisted status = %s, want CANCELED", got.PaymentStatus)
	}

	// cancel again: terminal success, no second refund
	if err := env.mgr.OrderCancel(context.Background(), order, items); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if env.gw.count("refund") != 1 {
		t.Fatalf("refund called %d times, want 1", env.gw.count("refund"))
	}
}

func TestOrderChangeCancelsOneUnit(t *testing.T) {
	env := newManagerEnv(t, Config{PlatformFeeBPS: 1000})
	order, items := env.paidOrder(t, 2)
	item := items[0]

	if err := env.mgr.OrderChange(context.Background(), order, item, ""); err != nil {
		t.Fatal(err)
	}
	if item.Status != ItemStatusChanged {
		t.Fatalf("item status = %s, want CHANGED", item.Status)
	}
	// per-unit price refunded in full (no refund fee configured)
	if env.gw.count("partialRefund") != 1 || env.gw.lastAmount("partialRefund") != 100 {
		t.Fatalf("partial refund: %d calls, amount %d",
			env.gw.count("partialRefund"), env.gw.lastAmount("partialRefund"))
	}
	if sum, _ := ReservedUnits(context.Background(), env.st, "sku1", DefaultStockShards); sum != 1 {
		t.Fatalf("reserved = %d after change, want 1", sum)
	}
	// receivable drops by the seller's share of one unit: 180 - 90
	seller := env.account(t, "s1")
	if seller.Balance.AccountsReceivable[JPY] != 90 {
		t.Fatalf("receivable = %d, want 90", seller.Balance.AccountsReceivable[JPY])
	}
}

func TestOrderCancelAfterChangeRefundsRemainder(t *testing.T) {
	env := newManagerEnv(t, Config{})
	order, items := env.paidOrder(t, 2) // charged 200

	if err := env.mgr.OrderChange(context.Background(), order, items[0], ""); err != nil {
		t.Fatal(err)
	}
	if env.gw.lastAmount("partialRefund") != 100 {
		t.Fatalf("partial refund = %d, want 100", env.gw.lastAmount("partialRefund"))
	}

	if err := env.mgr.OrderCancel(context.Background(), order, items); err != nil {
		t.Fatal(err)
	}
	// only the half of the charge not yet reversed goes back to the buyer
	if env.gw.count("refund") != 1 || env.gw.lastAmount("refund") != 100 {
		t.Fatalf("cancel refund: %d calls, amount %d, want 1 call of 100",
			env.gw.count("refund"), env.gw.lastAmount("refund"))
	}
	if order.PaymentStatus != PaymentCanceled {
		t.Fatalf("status = %s, want CANCELED", order.PaymentStatus)
	}
	seller := env.account(t, "s1")
	if seller.Balance.AccountsReceivable[JPY] != 0 {
		t.Fatalf("receivable = %d after cancel, want 0", seller.Balance.AccountsReceivable[JPY])
	}
	if sum, _ := ReservedUnits(context.Background(), env.st, "sku1", DefaultStockShards); sum != 0 {
		t.Fatalf("reserved = %d after cancel, want 0", sum)
	}
}

func TestOrderChangeKeysEachUnit(t *testing.T) {
	env := newManagerEnv(t, Config{})
	order, items := env.paidOrder(t, 2)
	item := items[0]

	for i := 0; i < 2; i++ {
		if err := env.mgr.OrderChange(context.Background(), order, item, ""); err != nil {
			t.Fatal(err)
		}
	}
	// each cancellation refunds a different unit, so the gateway must see two
	// different keys, not one deduped call
	keys := env.gw.keysWithPrefix("o1:orderChange:i1:")
	if len(keys) != 2 || keys[0] == keys[1] {
		t.Fatalf("per-unit keys = %+v, want two distinct", keys)
	}
	if env.gw.count("partialRefund") != 2 {
		t.Fatalf("partialRefund called %d times, want 2", env.gw.count("partialRefund"))
	}
	seller := env.account(t, "s1")
	if seller.Balance.AccountsReceivable[JPY] != 0 {
		t.Fatalf("receivable = %d after both units refunded, want 0", seller.Balance.AccountsReceivable[JPY])
	}

	// nothing active remains; another change stays clear of the gateway
	if err := env.mgr.OrderChange(context.Background(), order, item, ""); err != nil {
		t.Fatal(err)
	}
	if env.gw.count("partialRefund") != 2 {
		t.Fatal("exhausted item must not reach the gateway")
	}
}

func TestTransferMovesReceivableToAvailable(t *testing.T) {
	env := newManagerEnv(t, Config{PlatformFeeBPS: 1000})
	order, _ := env.paidOrder(t, 1)

	if err := env.mgr.Transfer(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	if order.TransferStatus != TransferTransferred {
		t.Fatalf("transfer status = %s, want TRANSFERRED", order.TransferStatus)
	}
	if env.gw.count("transfer") != 1 || env.gw.lastAmount("transfer") != 90 || !env.gw.sawKey("o1:transfer") {
		t.Fatalf("transfer call: %d calls, amount %d, keys %+v",
			env.gw.count("transfer"), env.gw.lastAmount("transfer"), env.gw.keys)
	}

	seller := env.account(t, "s1")
	if seller.Balance.Available[JPY] != 90 || seller.Balance.AccountsReceivable[JPY] != 0 {
		t.Fatalf("seller balance = %+v, want available 90 / receivable 0", seller.Balance)
	}

	// retry is a no-op
	if err := env.mgr.Transfer(context.Background(), order); err != nil {
		t.Fatalf("retry on transferred order: %v", err)
	}
	if env.gw.count("transfer") != 1 {
		t.Fatalf("transfer called %d times, want 1", env.gw.count("transfer"))
	}
}

func TestTransferRequiresPaidOrder(t *testing.T) {
	env := newManagerEnv(t, Config{})
	order, _ := env.newOrder(t, 1)

	err := env.mgr.Transfer(context.Background(), order)
	if KindOf(err) != KindInvalidStatus {
		t.Fatalf("want INVALID_STATUS, got %v", err)
	}
}

func TestTransferCompensatesWhenLedgerFails(t *testing.T) {
	env := newManagerEnv(t, Config{PlatformFeeBPS: 1000})
	order, _ := env.paidOrder(t, 1)

	env.st.breakAfter(1, 1) // let the account load pass, fail the ledger tx
	if err := env.mgr.Transfer(context.Background(), order); err == nil {
		t.Fatal("want error when the ledger transaction fails")
	}
	if env.gw.count("transferCancel") != 1 || !env.gw.sawKey("o1:transfer.cancel") {
		t.Fatalf("transfer not compensated: %d calls, keys %+v",
			env.gw.count("transferCancel"), env.gw.keys)
	}
	if got := env.reloadOrder(t, "o1"); got.TransferStatus != TransferFailure {
		t.Fatalf("persisted transfer status = %s, want TRANSFER_FAILURE", got.TransferStatus)
	}
	seller := env.account(t, "s1")
	if seller.Balance.Available[JPY] != 0 || seller.Balance.AccountsReceivable[JPY] != 90 {
		t.Fatalf("seller balance = %+v, want untouched", seller.Balance)
	}

	// the failure state is retryable
	if err := env.mgr.Transfer(context.Background(), order); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if got := env.reloadOrder(t, "o1"); got.TransferStatus != TransferTransferred {
		t.Fatalf("status = %s after retry, want TRANSFERRED", got.TransferStatus)
	}
}

func TestTransferCancelRestoresReceivable(t *testing.T) {
	env := newManagerEnv(t, Config{PlatformFeeBPS: 1000})
	order, _ := env.paidOrder(t, 1)
	if err := env.mgr.Transfer(context.Background(), order); err != nil {
		t.Fatal(err)
	}

	if err := env.mgr.TransferCancel(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	if order.TransferStatus != TransferCanceled {
		t.Fatalf("transfer status = %s, want CANCELED", order.TransferStatus)
	}
	if !env.gw.sawKey("o1:transferCancel") {
		t.Fatalf("cancel not keyed: %+v", env.gw.keys)
	}
	seller := env.account(t, "s1")
	if seller.Balance.Available[JPY] != 0 || seller.Balance.AccountsReceivable[JPY] != 90 {
		t.Fatalf("seller balance = %+v, want available 0 / receivable 90", seller.Balance)
	}

	// repeat is a no-op
	before := env.gw.count("transferCancel")
	if err := env.mgr.TransferCancel(context.Background(), order); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if env.gw.count("transferCancel") != before {
		t.Fatal("repeat cancel hit the gateway")
	}
}

func TestPayout(t *testing.T) {
	env := newManagerEnv(t, Config{PlatformFeeBPS: 1000})
	order, _ := env.paidOrder(t, 1)
	if err := env.mgr.Transfer(context.Background(), order); err != nil {
		t.Fatal(err)
	}

	if err := env.mgr.Payout(context.Background(), "s1", JPY, 50, "req1"); err != nil {
		t.Fatal(err)
	}
	if !env.gw.sawKey("req1:payout") {
		t.Fatalf("payout not keyed: %+v", env.gw.keys)
	}
	if got := env.account(t, "s1"); got.Balance.Available[JPY] != 40 {
		t.Fatalf("available = %d after payout, want 40", got.Balance.Available[JPY])
	}
}

func TestPayoutCompensatesWhenLedgerFails(t *testing.T) {
	env := newManagerEnv(t, Config{PlatformFeeBPS: 1000})
	order, _ := env.paidOrder(t, 1)
	if err := env.mgr.Transfer(context.Background(), order); err != nil {
		t.Fatal(err)
	}

	// available is 90; the external payout of 200 goes through, the ledger
	// debit cannot, so the payout is canceled
	err := env.mgr.Payout(context.Background(), "s1", JPY, 200, "req1")
	if err == nil {
		t.Fatal("want error on insufficient funds")
	}
	if env.gw.count("payout") != 1 || env.gw.count("payoutCancel") != 1 {
		t.Fatalf("payout/cancel calls = %d/%d, want 1/1",
			env.gw.count("payout"), env.gw.count("payoutCancel"))
	}
	if !env.gw.sawKey("req1:payout.cancel") {
		t.Fatalf("compensating cancel not keyed: %+v", env.gw.keys)
	}
	if got := env.account(t, "s1"); got.Balance.Available[JPY] != 90 {
		t.Fatalf("available = %d, want untouched 90", got.Balance.Available[JPY])
	}
}

func TestCanceledOrderCannotBePaidAgain(t *testing.T) {
	env := newManagerEnv(t, Config{})
	order, items := env.paidOrder(t, 1)
	if err := env.mgr.OrderCancel(context.Background(), order, items); err != nil {
		t.Fatal(err)
	}

	err := env.mgr.Order(context.Background(), order, items, PaymentOptions{})
	if KindOf(err) != KindInvalidStatus {
		t.Fatalf("want INVALID_STATUS, got %v", err)
	}
}

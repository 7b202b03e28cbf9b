package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-commerce-core/internal/commerce"
	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// stubGateway approves everything; Pay can be told to fail.
type stubGateway struct {
	mu       sync.Mutex
	payCalls int
	failPay  bool
}

var okResult = commerce.VendorResult(`{"ok":true}`)

func (g *stubGateway) Pay(ctx context.Context, c commerce.Currency, amount int64, o *commerce.Order, opts commerce.PaymentOptions, key string) (commerce.VendorResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payCalls++
	if g.failPay {
		return nil, errors.New("charge declined")
	}
	return okResult, nil
}

func (g *stubGateway) Refund(ctx context.Context, c commerce.Currency, amount int64, o *commerce.Order, key string) (commerce.VendorResult, error) {
	return okResult, nil
}

func (g *stubGateway) PartialRefund(ctx context.Context, c commerce.Currency, amount int64, o *commerce.Order, key string) (commerce.VendorResult, error) {
	return okResult, nil
}

func (g *stubGateway) Transfer(ctx context.Context, c commerce.Currency, amount int64, o *commerce.Order, seller *commerce.Account, key string) (commerce.VendorResult, error) {
	return okResult, nil
}

func (g *stubGateway) TransferCancel(ctx context.Context, c commerce.Currency, amount int64, o *commerce.Order, key string) (commerce.VendorResult, error) {
	return okResult, nil
}

func (g *stubGateway) Payout(ctx context.Context, c commerce.Currency, amount int64, accountID, key string) (commerce.VendorResult, error) {
	return okResult, nil
}

func (g *stubGateway) PayoutCancel(ctx context.Context, c commerce.Currency, amount int64, accountID, key string) (commerce.VendorResult, error) {
	return okResult, nil
}

func (g *stubGateway) pays() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.payCalls
}

type handlerEnv struct {
	router *chi.Mux
	st     store.Store
	gw     *stubGateway
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewMemory()
	gw := &stubGateway{}
	mgr := commerce.NewManager(st, gw, commerce.NewItemStore(), commerce.Config{})

	ctx := context.Background()
	for _, id := range []string{"b1", "s1"} {
		if err := commerce.CreateAccount(ctx, st, &commerce.Account{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := commerce.CreateSKU(ctx, st, &commerce.SKU{
		ID: "sku1", ProductID: "p1", SellerID: "s1",
		Currency: commerce.JPY, Amount: 100,
		Inventory: commerce.Inventory{Type: commerce.InventoryFinite, Quantity: 5},
	}); err != nil {
		t.Fatal(err)
	}

	h := &OrdersHandler{Store: st, Manager: mgr, Redis: rdb, Service: "api-test"}
	r := NewRouter()
	h.Register(r)
	return &handlerEnv{router: r, st: st, gw: gw}
}

func (e *handlerEnv) postOrder(t *testing.T, externalID string) (int, CreateOrderResp) {
	t.Helper()
	body, err := json.Marshal(CreateOrderReq{
		ExternalID: externalID,
		BuyerID:    "b1",
		SellerID:   "s1",
		Currency:   commerce.JPY,
		Amount:     100,
		Items: []ItemInput{
			{ID: "i1", Type: commerce.ItemTypeSKU, ProductID: "p1", SKUID: "sku1", Quantity: 1, Currency: commerce.JPY, Amount: 100},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp CreateOrderResp
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec.Code, resp
}

func TestCreateOrderIdempotentReplay(t *testing.T) {
	env := newHandlerEnv(t)

	code, first := env.postOrder(t, "ext1")
	if code != http.StatusCreated || first.PaymentStatus != string(commerce.PaymentPaid) {
		t.Fatalf("first post: code %d, resp %+v", code, first)
	}

	code, second := env.postOrder(t, "ext1")
	if code != http.StatusOK || !second.Idempotent {
		t.Fatalf("replay: code %d, resp %+v", code, second)
	}
	if second.OrderID != first.OrderID {
		t.Fatalf("replay returned order %s, want %s", second.OrderID, first.OrderID)
	}
	if env.gw.pays() != 1 {
		t.Fatalf("pay called %d times, want 1", env.gw.pays())
	}
}

func TestCreateOrderReplayRetriesFailedPayment(t *testing.T) {
	env := newHandlerEnv(t)

	env.gw.failPay = true
	if code, _ := env.postOrder(t, "ext1"); code != http.StatusInternalServerError {
		t.Fatalf("declined charge: code %d, want 500", code)
	}

	// the same request drives the parked order through settlement again
	// instead of echoing the failed status back
	env.gw.failPay = false
	code, second := env.postOrder(t, "ext1")
	if code != http.StatusOK || !second.Idempotent {
		t.Fatalf("retry: code %d, resp %+v", code, second)
	}
	if second.PaymentStatus != string(commerce.PaymentPaid) {
		t.Fatalf("retry status = %s, want PAID", second.PaymentStatus)
	}
	if env.gw.pays() != 2 {
		t.Fatalf("pay called %d times, want 2", env.gw.pays())
	}

	got, _, err := commerce.GetOrder(context.Background(), env.st, second.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != commerce.PaymentPaid {
		t.Fatalf("persisted status = %s after retry, want PAID", got.PaymentStatus)
	}

	// once paid, further replays stay answers, not retries
	code, third := env.postOrder(t, "ext1")
	if code != http.StatusOK || !third.Idempotent || env.gw.pays() != 2 {
		t.Fatalf("replay after success: code %d, resp %+v, pays %d", code, third, env.gw.pays())
	}
}

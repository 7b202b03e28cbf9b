package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-commerce-core/internal/commerce"
)

// Client implements commerce.PaymentDelegate against a JSON-over-HTTP payment
// gateway. Every call carries an Idempotency-Key header, so the gateway
// dedups retried calls and the orchestrator's compensation logic stays safe.
type Client struct {
	base string
	http *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

type moneyRequest struct {
	Currency commerce.Currency `json:"currency"`
	Amount   int64             `json:"amount"`
	OrderID  string            `json:"order_id,omitempty"`
	Account  string            `json:"account,omitempty"`
	Source   string            `json:"source,omitempty"`
	Customer string            `json:"customer,omitempty"`
	Vendor   string            `json:"vendor,omitempty"`
}

func (c *Client) Pay(ctx context.Context, currency commerce.Currency, amount int64, order *commerce.Order, opts commerce.PaymentOptions, idemKey string) (commerce.VendorResult, error) {
	return c.post(ctx, "/charges", idemKey, moneyRequest{
		Currency: currency, Amount: amount, OrderID: order.ID,
		Source: opts.Source, Customer: opts.Customer, Vendor: opts.Vendor,
	})
}

func (c *Client) Refund(ctx context.Context, currency commerce.Currency, amount int64, order *commerce.Order, idemKey string) (commerce.VendorResult, error) {
	return c.post(ctx, "/refunds", idemKey, moneyRequest{Currency: currency, Amount: amount, OrderID: order.ID})
}

func (c *Client) PartialRefund(ctx context.Context, currency commerce.Currency, amount int64, order *commerce.Order, idemKey string) (commerce.VendorResult, error) {
	return c.post(ctx, "/refunds/partial", idemKey, moneyRequest{Currency: currency, Amount: amount, OrderID: order.ID})
}

func (c *Client) Transfer(ctx context.Context, currency commerce.Currency, amount int64, order *commerce.Order, seller *commerce.Account, idemKey string) (commerce.VendorResult, error) {
	return c.post(ctx, "/transfers", idemKey, moneyRequest{
		Currency: currency, Amount: amount, OrderID: order.ID, Account: seller.ID,
	})
}

func (c *Client) TransferCancel(ctx context.Context, currency commerce.Currency, amount int64, order *commerce.Order, idemKey string) (commerce.VendorResult, error) {
	return c.post(ctx, "/transfers/cancel", idemKey, moneyRequest{Currency: currency, Amount: amount, OrderID: order.ID})
}

func (c *Client) Payout(ctx context.Context, currency commerce.Currency, amount int64, accountID, idemKey string) (commerce.VendorResult, error) {
	return c.post(ctx, "/payouts", idemKey, moneyRequest{Currency: currency, Amount: amount, Account: accountID})
}

func (c *Client) PayoutCancel(ctx context.Context, currency commerce.Currency, amount int64, accountID, idemKey string) (commerce.VendorResult, error) {
	return c.post(ctx, "/payouts/cancel", idemKey, moneyRequest{Currency: currency, Amount: amount, Account: accountID})
}

func (c *Client) post(ctx context.Context, path, idemKey string, body any) (commerce.VendorResult, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gateway %s: encode: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("gateway %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idemKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("gateway %s: read response: %w", path, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("gateway %s: status %d: %s", path, resp.StatusCode, payload)
	}
	return commerce.VendorResult(payload), nil
}

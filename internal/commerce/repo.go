package commerce

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// Persistence helpers for the hosting service. Orders and their items are
// created by the caller before orchestration; the Manager only ever mutates
// status and metadata.

var errExists = errors.New("already exists")

// CreateOrder persists a fresh order and its line items. The order keeps the
// item ids so it can be reloaded without a collection scan.
func CreateOrder(ctx context.Context, st store.Store, order *Order, items []*OrderItem) error {
	return st.RunTransaction(ctx, func(tx store.Tx) error {
		var existing Order
		if err := tx.Get(orderRef(order.ID), &existing); err == nil {
			return newError(KindInvalidArgument, order.ID, "order %s %v", order.ID, errExists)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		order.PaymentStatus = PaymentNone
		order.TransferStatus = TransferNone
		order.CreatedAt = tx.ServerTime()
		order.UpdatedAt = order.CreatedAt
		order.ItemIDs = order.ItemIDs[:0]
		for _, item := range items {
			item.OrderID = order.ID
			if item.Status == "" {
				item.Status = ItemStatusNone
			}
			order.ItemIDs = append(order.ItemIDs, item.ID)
			if err := tx.Set(orderItemRef(order.ID, item.ID), item); err != nil {
				return err
			}
		}
		return tx.Set(orderRef(order.ID), order)
	})
}

// GetOrder loads an order and its line items.
func GetOrder(ctx context.Context, st store.Store, orderID string) (*Order, []*OrderItem, error) {
	var order Order
	var items []*OrderItem
	err := st.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Get(orderRef(orderID), &order); err != nil {
			return err
		}
		items = items[:0]
		for _, itemID := range order.ItemIDs {
			var item OrderItem
			if err := tx.Get(orderItemRef(orderID, itemID), &item); err != nil {
				return err
			}
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &order, items, nil
}

// CreateAccount persists a new seller/buyer account with empty balances.
func CreateAccount(ctx context.Context, st store.Store, acct *Account) error {
	return st.RunTransaction(ctx, func(tx store.Tx) error {
		var existing Account
		if err := tx.Get(accountRef(acct.ID), &existing); err == nil {
			return newError(KindInvalidArgument, "", "account %s %v", acct.ID, errExists)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		acct.CreatedAt = tx.ServerTime()
		acct.UpdatedAt = acct.CreatedAt
		return tx.Set(accountRef(acct.ID), acct)
	})
}

// GetAccount loads one account.
func GetAccount(ctx context.Context, st store.Store, accountID string) (*Account, error) {
	var acct Account
	err := st.RunTransaction(ctx, func(tx store.Tx) error {
		return tx.Get(accountRef(accountID), &acct)
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// CreateSKU persists a new SKU.
func CreateSKU(ctx context.Context, st store.Store, sku *SKU) error {
	return st.RunTransaction(ctx, func(tx store.Tx) error {
		var existing SKU
		if err := tx.Get(skuRef(sku.ID), &existing); err == nil {
			return newError(KindInvalidArgument, "", "sku %s %v", sku.ID, errExists)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		sku.CreatedAt = tx.ServerTime()
		sku.UpdatedAt = sku.CreatedAt
		return tx.Set(skuRef(sku.ID), sku)
	})
}

// GetSKU loads one SKU.
func GetSKU(ctx context.Context, st store.Store, skuID string) (*SKU, error) {
	var sku SKU
	err := st.RunTransaction(ctx, func(tx store.Tx) error {
		return tx.Get(skuRef(skuID), &sku)
	})
	if err != nil {
		return nil, err
	}
	return &sku, nil
}

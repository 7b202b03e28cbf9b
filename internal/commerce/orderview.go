package commerce

import (
	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// OrderManager writes the authoritative order document and fans the same
// value out to the buyer's and seller's own order views, plus per-item copies
// under the seller's received-orders subview. Everything lands in one
// transaction so a partial fan-out is never visible.
type OrderManager struct{}

func (m *OrderManager) Update(tx store.Tx, order *Order, items []*OrderItem) error {
	order.UpdatedAt = tx.ServerTime()
	if err := tx.Set(orderRef(order.ID), order); err != nil {
		return err
	}
	for _, view := range []store.Ref{
		buyerOrderRef(order.BuyerID, order.ID),
		receivedOrderRef(order.SellerID, order.ID),
	} {
		if err := tx.Set(view, order); err != nil {
			return err
		}
	}
	for _, item := range items {
		if err := tx.Set(orderItemRef(order.ID, item.ID), item); err != nil {
			return err
		}
		if err := tx.Set(receivedOrderItemRef(order.SellerID, order.ID, item.ID), item); err != nil {
			return err
		}
	}
	return nil
}

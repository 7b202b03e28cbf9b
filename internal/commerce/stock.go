package commerce

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// StockManager reserves and releases SKU stock inside a caller-supplied
// transaction. For finite SKUs the reserved count lives across N shards: one
// randomly chosen shard takes the write while every shard joins the read-set,
// so the sum check stays authoritative and concurrent overselling surfaces as
// a store conflict, which the store resolves by retrying.
type StockManager struct {
	trade     TradeDelegate
	pickShard func(n int) int
}

func NewStockManager(trade TradeDelegate) *StockManager {
	return &StockManager{trade: trade, pickShard: rand.IntN}
}

// Reserve counts the item's quantity against the SKU and materializes one
// fulfillment unit per reserved unit through the trade delegate.
func (m *StockManager) Reserve(ctx context.Context, tx store.Tx, order *Order, item *OrderItem) (*TradeTransaction, error) {
	if err := m.checkItem(order, item); err != nil {
		return nil, err
	}

	var sku SKU
	if err := tx.Get(skuRef(item.SKUID), &sku); err != nil {
		return nil, wrapInternal(order.ID, err, "load sku %s", item.SKUID)
	}

	shard := -1
	switch sku.Inventory.Type {
	case InventoryFinite:
		n := sku.Shards()
		reserved, shards, err := readShards(tx, sku.ID, n)
		if err != nil {
			return nil, wrapInternal(order.ID, err, "read shards of sku %s", sku.ID)
		}
		if reserved+item.Quantity > sku.Inventory.Quantity {
			return nil, newError(KindOutOfStock, order.ID,
				"sku %s: requested %d, %d left", sku.ID, item.Quantity, sku.Inventory.Quantity-reserved)
		}
		shard = m.pickShard(n)
		shards[shard].Reserved += item.Quantity
		if err := tx.Set(shardRef(sku.ID, shard), &shards[shard]); err != nil {
			return nil, wrapInternal(order.ID, err, "write shard %d of sku %s", shard, sku.ID)
		}
		// best-effort listing flag, never consulted for correctness
		sku.IsOutOfStock = reserved+item.Quantity == sku.Inventory.Quantity
	case InventoryBucket:
		if sku.Inventory.Value == StockOutOfStock {
			return nil, newError(KindOutOfStock, order.ID, "sku %s is out of stock", sku.ID)
		}
	case InventoryInfinite:
		// unit-sales bookkeeping only
	default:
		return nil, newError(KindInvalidArgument, order.ID,
			"sku %s has unknown inventory type %q", sku.ID, sku.Inventory.Type)
	}

	sku.UnitSales += item.Quantity
	sku.UpdatedAt = tx.ServerTime()
	if err := tx.Set(skuRef(sku.ID), &sku); err != nil {
		return nil, wrapInternal(order.ID, err, "write sku %s", sku.ID)
	}

	trade := m.newTrade(tx, TradeTxOrder, order, item, item.Quantity)
	for i := int64(0); i < item.Quantity; i++ {
		ref, err := m.trade.CreateItem(ctx, tx, order, item, shard)
		if err != nil {
			return nil, wrapInternal(order.ID, err, "create unit for item %s", item.ID)
		}
		trade.ItemIDs = append(trade.ItemIDs, ref.ID)
	}
	if err := writeTradeTransaction(tx, trade); err != nil {
		return nil, wrapInternal(order.ID, err, "record trade transaction")
	}
	return trade, nil
}

// Release cancels every active unit of the item and gives the counted
// quantity back to the exact shards that took it. Releasing an item with no
// active units is a no-op, so cancellation retries stay safe.
func (m *StockManager) Release(ctx context.Context, tx store.Tx, order *Order, item *OrderItem) (*TradeTransaction, error) {
	if err := m.checkItem(order, item); err != nil {
		return nil, err
	}

	refs, err := m.trade.Items(ctx, tx, order, item)
	if err != nil {
		return nil, wrapInternal(order.ID, err, "list units of item %s", item.ID)
	}
	active := activeRefs(refs)
	if len(active) == 0 {
		return nil, nil
	}

	var sku SKU
	if err := tx.Get(skuRef(item.SKUID), &sku); err != nil {
		return nil, wrapInternal(order.ID, err, "load sku %s", item.SKUID)
	}

	if sku.Inventory.Type == InventoryFinite {
		if err := m.returnToShards(tx, &sku, order.ID, active); err != nil {
			return nil, err
		}
		sku.IsOutOfStock = false
	}
	sku.UnitSales -= int64(len(active))
	sku.UpdatedAt = tx.ServerTime()
	if err := tx.Set(skuRef(sku.ID), &sku); err != nil {
		return nil, wrapInternal(order.ID, err, "write sku %s", sku.ID)
	}

	trade := m.newTrade(tx, TradeTxOrderCancel, order, item, int64(len(active)))
	for _, ref := range active {
		if err := m.trade.CancelItem(ctx, tx, order, item, ref); err != nil {
			return nil, wrapInternal(order.ID, err, "cancel unit %s", ref.ID)
		}
		trade.ItemIDs = append(trade.ItemIDs, ref.ID)
	}
	if err := writeTradeTransaction(tx, trade); err != nil {
		return nil, wrapInternal(order.ID, err, "record trade transaction")
	}
	return trade, nil
}

// ChangeReserve cancels a single unit of the item. An empty targetItemID
// picks the first active unit. Returns (nil, nil) when the target was already
// canceled, so callers can treat retries as no-ops.
func (m *StockManager) ChangeReserve(ctx context.Context, tx store.Tx, order *Order, item *OrderItem, targetItemID string) (*TradeTransaction, error) {
	target, err := m.findUnit(ctx, tx, order, item, targetItemID)
	if err != nil || target == nil {
		return nil, err
	}

	var sku SKU
	if err := tx.Get(skuRef(item.SKUID), &sku); err != nil {
		return nil, wrapInternal(order.ID, err, "load sku %s", item.SKUID)
	}
	if sku.Inventory.Type == InventoryFinite {
		if err := m.returnToShards(tx, &sku, order.ID, []ItemRef{*target}); err != nil {
			return nil, err
		}
		sku.IsOutOfStock = false
	}
	sku.UnitSales--
	sku.UpdatedAt = tx.ServerTime()
	if err := tx.Set(skuRef(sku.ID), &sku); err != nil {
		return nil, wrapInternal(order.ID, err, "write sku %s", sku.ID)
	}

	if err := m.trade.CancelItem(ctx, tx, order, item, *target); err != nil {
		return nil, wrapInternal(order.ID, err, "cancel unit %s", target.ID)
	}
	trade := m.newTrade(tx, TradeTxOrderChange, order, item, 1)
	trade.ItemIDs = []string{target.ID}
	if err := writeTradeTransaction(tx, trade); err != nil {
		return nil, wrapInternal(order.ID, err, "record trade transaction")
	}
	return trade, nil
}

// findUnit resolves the unit a change targets. An empty targetItemID picks the
// first unit still active. Returns (nil, nil) when the target was already
// canceled or no active unit remains, so callers can treat retries as no-ops.
func (m *StockManager) findUnit(ctx context.Context, tx store.Tx, order *Order, item *OrderItem, targetItemID string) (*ItemRef, error) {
	if err := m.checkItem(order, item); err != nil {
		return nil, err
	}
	refs, err := m.trade.Items(ctx, tx, order, item)
	if err != nil {
		return nil, wrapInternal(order.ID, err, "list units of item %s", item.ID)
	}
	for i := range refs {
		if targetItemID == "" && !refs[i].Canceled {
			return &refs[i], nil
		}
		if refs[i].ID == targetItemID {
			if refs[i].Canceled {
				return nil, nil
			}
			return &refs[i], nil
		}
	}
	if targetItemID == "" {
		return nil, nil // nothing left to cancel
	}
	return nil, newError(KindInvalidArgument, order.ID,
		"item %s has no unit %s", item.ID, targetItemID)
}

func (m *StockManager) checkItem(order *Order, item *OrderItem) error {
	if item.Type != ItemTypeSKU {
		return newError(KindInvalidArgument, order.ID, "item %s is not a sku item", item.ID)
	}
	if item.SKUID == "" || item.Quantity <= 0 {
		return newError(KindInvalidArgument, order.ID,
			"item %s needs a sku reference and a positive quantity", item.ID)
	}
	return nil
}

// returnToShards decrements the recorded shard of every ref, keeping
// sum(shards) equal to the units actually reserved.
func (m *StockManager) returnToShards(tx store.Tx, sku *SKU, orderID string, refs []ItemRef) error {
	byShard := map[int]int64{}
	for _, r := range refs {
		byShard[r.Shard]++
	}
	for idx, qty := range byShard {
		var shard InventoryShard
		if err := tx.Get(shardRef(sku.ID, idx), &shard); err != nil {
			return wrapInternal(orderID, err, "read shard %d of sku %s", idx, sku.ID)
		}
		if shard.Reserved < qty {
			return newError(KindInternal, orderID,
				"shard %d of sku %s holds %d units, cannot release %d", idx, sku.ID, shard.Reserved, qty)
		}
		shard.Reserved -= qty
		if err := tx.Set(shardRef(sku.ID, idx), &shard); err != nil {
			return wrapInternal(orderID, err, "write shard %d of sku %s", idx, sku.ID)
		}
	}
	return nil
}

func (m *StockManager) newTrade(tx store.Tx, typ TradeTransactionType, order *Order, item *OrderItem, qty int64) *TradeTransaction {
	return &TradeTransaction{
		ID:        uuid.NewString(),
		Type:      typ,
		Quantity:  qty,
		SellerID:  order.SellerID,
		BuyerID:   order.BuyerID,
		OrderID:   order.ID,
		ProductID: item.ProductID,
		SKUID:     item.SKUID,
		CreatedAt: tx.ServerTime(),
	}
}

func readShards(tx store.Tx, skuID string, n int) (int64, []InventoryShard, error) {
	shards := make([]InventoryShard, n)
	var sum int64
	for i := 0; i < n; i++ {
		if err := tx.Get(shardRef(skuID, i), &shards[i]); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return 0, nil, err
			}
			shards[i] = InventoryShard{ID: strconv.Itoa(i), SKUID: skuID}
		}
		sum += shards[i].Reserved
	}
	return sum, shards, nil
}

func activeRefs(refs []ItemRef) []ItemRef {
	out := refs[:0:0]
	for _, r := range refs {
		if !r.Canceled {
			out = append(out, r)
		}
	}
	return out
}

// the same record lands in both parties' histories
func writeTradeTransaction(tx store.Tx, trade *TradeTransaction) error {
	if err := tx.Set(accountTradeTxRef(trade.SellerID, trade.ID), trade); err != nil {
		return err
	}
	return tx.Set(accountTradeTxRef(trade.BuyerID, trade.ID), trade)
}

// ReservedUnits sums a finite SKU's shard counters outside any order flow,
// e.g. for a stock read API. The value is advisory: only the sum taken inside
// a reserving transaction is authoritative.
func ReservedUnits(ctx context.Context, st store.Store, skuID string, shards int) (int64, error) {
	var sum int64
	err := st.RunTransaction(ctx, func(tx store.Tx) error {
		var err error
		sum, _, err = readShards(tx, skuID, shards)
		return err
	})
	return sum, err
}

package commerce

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// ItemStore is the default TradeDelegate. It keeps one unit-list document per
// order item; every reserved unit becomes an entry carrying the shard that
// counted it. Canceled units stay recorded so a repeated cancel can be told
// apart from a unit that never existed.
type ItemStore struct{}

func NewItemStore() *ItemStore { return &ItemStore{} }

type unitRecord struct {
	ID       string `json:"id"`
	Shard    int    `json:"shard"`
	Canceled bool   `json:"canceled,omitempty"`
}

type unitList struct {
	OrderID string       `json:"order_id"`
	ItemID  string       `json:"item_id"`
	Units   []unitRecord `json:"units"`
}

func (s *ItemStore) CreateItem(ctx context.Context, tx store.Tx, order *Order, item *OrderItem, shard int) (ItemRef, error) {
	var list unitList
	if err := tx.Get(unitListRef(order.ID, item.ID), &list); err != nil && !errors.Is(err, store.ErrNotFound) {
		return ItemRef{}, err
	}
	list.OrderID, list.ItemID = order.ID, item.ID
	rec := unitRecord{ID: uuid.NewString(), Shard: shard}
	list.Units = append(list.Units, rec)
	if err := tx.Set(unitListRef(order.ID, item.ID), &list); err != nil {
		return ItemRef{}, err
	}
	return ItemRef{ID: rec.ID, Shard: rec.Shard}, nil
}

func (s *ItemStore) CancelItem(ctx context.Context, tx store.Tx, order *Order, item *OrderItem, ref ItemRef) error {
	var list unitList
	if err := tx.Get(unitListRef(order.ID, item.ID), &list); err != nil {
		return err
	}
	for i := range list.Units {
		if list.Units[i].ID == ref.ID {
			list.Units[i].Canceled = true
			return tx.Set(unitListRef(order.ID, item.ID), &list)
		}
	}
	return fmt.Errorf("unit %s of item %s: %w", ref.ID, item.ID, store.ErrNotFound)
}

// Items returns every unit ever reserved for the item, including canceled
// ones.
func (s *ItemStore) Items(ctx context.Context, tx store.Tx, order *Order, item *OrderItem) ([]ItemRef, error) {
	var list unitList
	if err := tx.Get(unitListRef(order.ID, item.ID), &list); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	refs := make([]ItemRef, 0, len(list.Units))
	for _, u := range list.Units {
		refs = append(refs, ItemRef{ID: u.ID, Shard: u.Shard, Canceled: u.Canceled})
	}
	return refs, nil
}

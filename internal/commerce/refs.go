package commerce

import (
	"strconv"

	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// Collection layout. Nested collections join the parent path with slashes so
// the document store stays flat.
const (
	colSKUs               = "skus"
	colOrders             = "orders"
	colAccounts           = "accounts"
	colBalanceTransaction = "balance_transactions" // global audit ledger
)

func skuRef(id string) store.Ref {
	return store.Ref{Collection: colSKUs, ID: id}
}

func shardRef(skuID string, n int) store.Ref {
	return store.Ref{Collection: colSKUs + "/" + skuID + "/shards", ID: strconv.Itoa(n)}
}

func orderRef(id string) store.Ref {
	return store.Ref{Collection: colOrders, ID: id}
}

func orderItemRef(orderID, itemID string) store.Ref {
	return store.Ref{Collection: colOrders + "/" + orderID + "/items", ID: itemID}
}

func unitListRef(orderID, itemID string) store.Ref {
	return store.Ref{Collection: colOrders + "/" + orderID + "/units", ID: itemID}
}

func accountRef(id string) store.Ref {
	return store.Ref{Collection: colAccounts, ID: id}
}

func balanceTxRef(id string) store.Ref {
	return store.Ref{Collection: colBalanceTransaction, ID: id}
}

func accountBalanceTxRef(accountID, id string) store.Ref {
	return store.Ref{Collection: colAccounts + "/" + accountID + "/balance_transactions", ID: id}
}

func accountTradeTxRef(accountID, id string) store.Ref {
	return store.Ref{Collection: colAccounts + "/" + accountID + "/trade_transactions", ID: id}
}

func buyerOrderRef(buyerID, orderID string) store.Ref {
	return store.Ref{Collection: colAccounts + "/" + buyerID + "/orders", ID: orderID}
}

func receivedOrderRef(sellerID, orderID string) store.Ref {
	return store.Ref{Collection: colAccounts + "/" + sellerID + "/received_orders", ID: orderID}
}

func receivedOrderItemRef(sellerID, orderID, itemID string) store.Ref {
	return store.Ref{
		Collection: colAccounts + "/" + sellerID + "/received_orders/" + orderID + "/items",
		ID:         itemID,
	}
}

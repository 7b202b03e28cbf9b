package commerce

import (
	"github.com/google/uuid"

	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// BalanceManager posts immutable ledger entries and applies the available-
// balance movements they describe. Every entry is written twice in the same
// transaction, once to the global audit ledger and once under each affected
// account, so the ledger and the balances cannot diverge. Receivable
// bookkeeping is deliberately NOT done here: BalanceManager records who paid
// whom, and the orchestrator decides how that maps to seller receivables.
type BalanceManager struct{}

func NewBalanceManager() *BalanceManager { return &BalanceManager{} }

// Payment records external money entering the system: buyer -> platform.
// No account balance moves; the charge happened at the gateway.
func (b *BalanceManager) Payment(tx store.Tx, order *Order, result VendorResult) (*BalanceTransaction, error) {
	btx := b.entry(tx, BalanceTxPayment, order.Currency, order.Amount, order.BuyerID, PlatformAccount, order.ID, result)
	return btx, b.post(tx, btx)
}

// PaymentRefund records money leaving the system back to the buyer:
// platform -> buyer. Amount may be partial.
func (b *BalanceManager) PaymentRefund(tx store.Tx, order *Order, amount int64, result VendorResult) (*BalanceTransaction, error) {
	if amount <= 0 {
		return nil, newError(KindInvalidAmount, order.ID, "refund amount must be positive")
	}
	btx := b.entry(tx, BalanceTxPaymentRefund, order.Currency, amount, PlatformAccount, order.BuyerID, order.ID, result)
	return btx, b.post(tx, btx)
}

// Transfer moves settled money. Three shapes: platform->user credits the
// receiver's available balance, user->platform debits the sender's, and
// user->user does both. Only the accounts actually mutated are fetched, to
// keep the transaction's read-set small.
func (b *BalanceManager) Transfer(tx store.Tx, currency Currency, amount int64, from, to, orderID string, result VendorResult) (*BalanceTransaction, error) {
	return b.move(tx, BalanceTxTransfer, currency, amount, from, to, orderID, result)
}

// TransferRefund reverses a transfer with the same three shapes.
func (b *BalanceManager) TransferRefund(tx store.Tx, currency Currency, amount int64, from, to, orderID string, result VendorResult) (*BalanceTransaction, error) {
	return b.move(tx, BalanceTxTransferRefund, currency, amount, from, to, orderID, result)
}

func (b *BalanceManager) move(tx store.Tx, typ BalanceTransactionType, currency Currency, amount int64, from, to, orderID string, result VendorResult) (*BalanceTransaction, error) {
	if amount <= 0 {
		return nil, newError(KindInvalidAmount, orderID, "%s amount must be positive", typ)
	}
	switch {
	case from == PlatformAccount && to == PlatformAccount:
		return nil, newError(KindInvalidArgument, orderID, "%s needs at least one real account", typ)
	case from == PlatformAccount:
		if err := b.mutate(tx, to, func(acct *Account) error {
			acct.Balance.CreditAvailable(currency, amount)
			return nil
		}); err != nil {
			return nil, err
		}
	case to == PlatformAccount:
		if err := b.mutate(tx, from, func(acct *Account) error {
			return acct.Balance.DebitAvailable(currency, amount)
		}); err != nil {
			return nil, err
		}
	default:
		if err := b.mutate(tx, from, func(acct *Account) error {
			return acct.Balance.DebitAvailable(currency, amount)
		}); err != nil {
			return nil, err
		}
		if err := b.mutate(tx, to, func(acct *Account) error {
			acct.Balance.CreditAvailable(currency, amount)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	btx := b.entry(tx, typ, currency, amount, from, to, orderID, result)
	return btx, b.post(tx, btx)
}

// Payout debits an account's available balance against the external bank
// sink.
func (b *BalanceManager) Payout(tx store.Tx, accountID string, currency Currency, amount int64, result VendorResult) (*BalanceTransaction, error) {
	if amount <= 0 {
		return nil, newError(KindInvalidAmount, "", "payout amount must be positive")
	}
	if err := b.mutate(tx, accountID, func(acct *Account) error {
		return acct.Balance.DebitAvailable(currency, amount)
	}); err != nil {
		return nil, err
	}
	btx := b.entry(tx, BalanceTxPayout, currency, amount, accountID, BankAccount, "", result)
	return btx, b.post(tx, btx)
}

// PayoutCancel credits a canceled payout back.
func (b *BalanceManager) PayoutCancel(tx store.Tx, accountID string, currency Currency, amount int64, result VendorResult) (*BalanceTransaction, error) {
	if amount <= 0 {
		return nil, newError(KindInvalidAmount, "", "payout cancel amount must be positive")
	}
	if err := b.mutate(tx, accountID, func(acct *Account) error {
		acct.Balance.CreditAvailable(currency, amount)
		return nil
	}); err != nil {
		return nil, err
	}
	btx := b.entry(tx, BalanceTxPayoutCancel, currency, amount, BankAccount, accountID, "", result)
	return btx, b.post(tx, btx)
}

func (b *BalanceManager) mutate(tx store.Tx, accountID string, fn func(*Account) error) error {
	var acct Account
	if err := tx.Get(accountRef(accountID), &acct); err != nil {
		return wrapInternal("", err, "load account %s", accountID)
	}
	if err := fn(&acct); err != nil {
		return err
	}
	acct.UpdatedAt = tx.ServerTime()
	return tx.Set(accountRef(accountID), &acct)
}

func (b *BalanceManager) entry(tx store.Tx, typ BalanceTransactionType, currency Currency, amount int64, from, to, orderID string, result VendorResult) *BalanceTransaction {
	btx := &BalanceTransaction{
		ID:        uuid.NewString(),
		Type:      typ,
		Currency:  currency,
		Amount:    amount,
		From:      from,
		To:        to,
		OrderID:   orderID,
		CreatedAt: tx.ServerTime(),
	}
	if result != nil {
		btx.TransferResults = []VendorResult{result}
	}
	return btx
}

func (b *BalanceManager) post(tx store.Tx, btx *BalanceTransaction) error {
	if err := tx.Set(balanceTxRef(btx.ID), btx); err != nil {
		return err
	}
	for _, id := range []string{btx.From, btx.To} {
		if id == "" || id == PlatformAccount || id == BankAccount {
			continue
		}
		if err := tx.Set(accountBalanceTxRef(id, btx.ID), btx); err != nil {
			return err
		}
	}
	return nil
}

// AppendVendorResult attaches a late gateway payload to an existing ledger
// entry via array union, without rewriting the entry.
func (b *BalanceManager) AppendVendorResult(tx store.Tx, btx *BalanceTransaction, result VendorResult) error {
	if err := tx.ArrayUnion(balanceTxRef(btx.ID), "transfer_results", result); err != nil {
		return err
	}
	for _, id := range []string{btx.From, btx.To} {
		if id == "" || id == PlatformAccount || id == BankAccount {
			continue
		}
		if err := tx.ArrayUnion(accountBalanceTxRef(id, btx.ID), "transfer_results", result); err != nil {
			return err
		}
	}
	return nil
}

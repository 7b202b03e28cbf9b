package commerce

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// Config carries the pricing knobs of the orchestrator. Fee rates are basis
// points of the amount they apply to.
type Config struct {
	PlatformFeeBPS int64
	RefundFeeBPS   int64
	TransferFeeBPS int64
	// Minimums overrides DefaultMinimums when non-nil.
	Minimums map[Currency]int64
}

func (c Config) minimums() map[Currency]int64 {
	if c.Minimums != nil {
		return c.Minimums
	}
	return DefaultMinimums()
}

func feeBPS(amount, bps int64) int64 { return amount * bps / 10000 }

// Manager sequences validator, stock, payment gateway, ledger and order views
// for every commerce operation. The gateway is called outside the store
// transaction - an external charge cannot join an optimistic commit - so
// calls are keyed for idempotent retry and a transaction failure after a
// successful external call triggers best-effort compensation. If the
// compensation fails too, both errors propagate and the order is parked in a
// *_FAILURE status for manual reconciliation: fail loud, never retry
// silently.
type Manager struct {
	store   store.Store
	stock   *StockManager
	balance *BalanceManager
	orders  *OrderManager
	payment PaymentDelegate
	trade   TradeDelegate
	cfg     Config
}

func NewManager(st store.Store, payment PaymentDelegate, trade TradeDelegate, cfg Config) *Manager {
	return &Manager{
		store:   st,
		stock:   NewStockManager(trade),
		balance: NewBalanceManager(),
		orders:  &OrderManager{},
		payment: payment,
		trade:   trade,
		cfg:     cfg,
	}
}

// Order settles a created order: validation, stock reservation, external
// charge, ledger entry, status and view updates. Re-invoking on an already
// paid order is a no-op so client retries stay safe.
func (m *Manager) Order(ctx context.Context, order *Order, items []*OrderItem, opts PaymentOptions) error {
	cur := normalizePayment(order.PaymentStatus)
	if cur == PaymentPaid {
		return nil
	}
	if !cur.CanTransition(PaymentPaid) {
		return newError(KindInvalidStatus, order.ID, "cannot pay an order in status %s", cur)
	}
	if m.trade == nil {
		return newError(KindInvalidArgument, order.ID, "trade delegate is not configured")
	}
	if order.Amount > 0 && m.payment == nil {
		return newError(KindInvalidArgument, order.ID, "payment delegate is not configured")
	}

	if err := ValidateOrder(order, items, m.cfg.minimums()); err != nil {
		order.PaymentStatus = PaymentRejected
		if perr := m.persistOrder(ctx, order, items); perr != nil {
			return errors.Join(err, perr)
		}
		return err
	}

	var charge VendorResult
	if order.Amount > 0 {
		result, err := m.payment.Pay(ctx, order.Currency, order.Amount, order, opts, idemKey(order.ID, "order"))
		if err != nil {
			order.PaymentStatus = PaymentFailure
			if perr := m.persistOrder(ctx, order, items); perr != nil {
				return errors.Join(wrapInternal(order.ID, err, "charge failed"), perr)
			}
			return wrapInternal(order.ID, err, "charge failed")
		}
		charge = result
	}

	order.PaymentStatus = PaymentPaid
	order.PaymentInformation = charge
	err := m.store.RunTransaction(ctx, func(tx store.Tx) error {
		for _, item := range items {
			if item.Type != ItemTypeSKU {
				continue
			}
			if _, err := m.stock.Reserve(ctx, tx, order, item); err != nil {
				return err
			}
		}
		if order.Amount > 0 {
			if _, err := m.balance.Payment(tx, order, charge); err != nil {
				return err
			}
			if err := m.creditSeller(tx, order, order.Amount); err != nil {
				return err
			}
		}
		return m.orders.Update(tx, order, items)
	})
	if err == nil {
		return nil
	}

	order.PaymentStatus = PaymentFailure
	order.PaymentInformation = nil
	if charge != nil {
		refund, rerr := m.payment.Refund(ctx, order.Currency, order.Amount, order, idemKey(order.ID, "order.refund"))
		if rerr != nil {
			err = errors.Join(
				fmt.Errorf("settlement failed after a successful charge: %w", err),
				fmt.Errorf("compensating refund failed, reconcile manually: %w", rerr),
			)
		} else {
			order.RefundInformation = refund
			err = fmt.Errorf("settlement failed after a successful charge of %d %s, charge refunded: %w",
				order.Amount, order.Currency, err)
		}
	}
	if perr := m.persistOrder(ctx, order, items); perr != nil {
		err = errors.Join(err, perr)
	}
	return err
}

// OrderCancel reverses a paid order: every reserved unit goes back to its
// shard, the buyer is refunded minus the refund fee, and the seller's
// receivable is reversed. Only the part of the order not already reversed by
// prior changes is refunded, so cancel after change never over-refunds. The
// refund call precedes the ledger transaction; if the transaction then fails,
// the order parks in CANCEL_FAILURE and the error carries the refund outcome
// for the operator.
func (m *Manager) OrderCancel(ctx context.Context, order *Order, items []*OrderItem) error {
	cur := normalizePayment(order.PaymentStatus)
	if cur == PaymentCanceled {
		return nil
	}
	if !cur.CanTransition(PaymentCanceled) {
		return newError(KindInvalidStatus, order.ID, "cannot cancel an order in status %s", cur)
	}
	if m.trade == nil {
		return newError(KindInvalidArgument, order.ID, "trade delegate is not configured")
	}

	remaining := order.Amount - order.RefundedAmount
	refundAmount := remaining - feeBPS(remaining, m.cfg.RefundFeeBPS)
	if refundAmount > 0 && m.payment == nil {
		return newError(KindInvalidArgument, order.ID, "payment delegate is not configured")
	}

	var refund VendorResult
	if refundAmount > 0 {
		result, err := m.payment.Refund(ctx, order.Currency, refundAmount, order, idemKey(order.ID, "orderCancel"))
		if err != nil {
			return wrapInternal(order.ID, err, "refund failed")
		}
		refund = result
	}

	prevRefunded := order.RefundedAmount
	order.PaymentStatus = PaymentCanceled
	order.RefundInformation = refund
	order.RefundedAmount = order.Amount
	err := m.store.RunTransaction(ctx, func(tx store.Tx) error {
		for _, item := range items {
			if item.Type != ItemTypeSKU {
				continue
			}
			if _, err := m.stock.Release(ctx, tx, order, item); err != nil {
				return err
			}
			item.Status = ItemStatusCanceled
		}
		if refundAmount > 0 {
			if _, err := m.balance.PaymentRefund(tx, order, refundAmount, refund); err != nil {
				return err
			}
			if err := m.debitSeller(tx, order, remaining); err != nil {
				return err
			}
		}
		return m.orders.Update(tx, order, items)
	})
	if err == nil {
		return nil
	}

	// keep the persisted RefundedAmount at its pre-cancel value so a retry
	// recomputes the same refund and the gateway dedups it by key
	order.PaymentStatus = PaymentCancelFailure
	order.RefundedAmount = prevRefunded
	if refund != nil {
		err = fmt.Errorf("refund of %d %s succeeded but the ledger transaction failed, reconcile manually: %w",
			refundAmount, order.Currency, err)
	}
	if perr := m.persistOrder(ctx, order, items); perr != nil {
		err = errors.Join(err, perr)
	}
	return err
}

// OrderChange cancels a single unit of one line item and refunds its price
// minus the refund fee. An empty targetItemID cancels the first unit still
// active. The unit is resolved before the gateway call so the idempotency key
// names the exact unit being refunded: distinct cancellations never share a
// key, and a retry of the same unit dedups at the gateway.
func (m *Manager) OrderChange(ctx context.Context, order *Order, item *OrderItem, targetItemID string) error {
	if cur := normalizePayment(order.PaymentStatus); cur != PaymentPaid {
		return newError(KindInvalidStatus, order.ID, "cannot change an order in status %s", cur)
	}
	if m.trade == nil {
		return newError(KindInvalidArgument, order.ID, "trade delegate is not configured")
	}

	var unit *ItemRef
	if err := m.store.RunTransaction(ctx, func(tx store.Tx) error {
		var err error
		unit, err = m.stock.findUnit(ctx, tx, order, item, targetItemID)
		return err
	}); err != nil {
		return err
	}
	if unit == nil {
		return nil // already applied
	}

	refundAmount := item.Amount - feeBPS(item.Amount, m.cfg.RefundFeeBPS)
	if refundAmount > 0 && m.payment == nil {
		return newError(KindInvalidArgument, order.ID, "payment delegate is not configured")
	}

	var refund VendorResult
	if refundAmount > 0 {
		result, err := m.payment.PartialRefund(ctx, order.Currency, refundAmount, order,
			idemKey(order.ID, "orderChange:"+item.ID+":"+unit.ID))
		if err != nil {
			return wrapInternal(order.ID, err, "partial refund failed")
		}
		refund = result
	}

	prevRefunded := order.RefundedAmount
	order.RefundedAmount = prevRefunded + item.Amount
	applied := false
	err := m.store.RunTransaction(ctx, func(tx store.Tx) error {
		applied = false
		trade, err := m.stock.ChangeReserve(ctx, tx, order, item, unit.ID)
		if err != nil {
			return err
		}
		if trade == nil {
			return nil // canceled underneath us, nothing to post
		}
		applied = true
		if refundAmount > 0 {
			if _, err := m.balance.PaymentRefund(tx, order, refundAmount, refund); err != nil {
				return err
			}
			if err := m.debitSeller(tx, order, item.Amount); err != nil {
				return err
			}
		}
		item.Status = ItemStatusChanged
		return m.orders.Update(tx, order, []*OrderItem{item})
	})
	if err != nil || !applied {
		order.RefundedAmount = prevRefunded
	}
	if err != nil && refund != nil {
		err = fmt.Errorf("partial refund of %d %s succeeded but the ledger transaction failed, reconcile manually: %w",
			refundAmount, order.Currency, err)
	}
	return err
}

// Transfer moves the seller's receivable for a paid order into their
// available balance, wiring the external movement through the gateway first.
// Re-invoking on an already transferred order is a no-op.
func (m *Manager) Transfer(ctx context.Context, order *Order) error {
	if cur := normalizePayment(order.PaymentStatus); cur != PaymentPaid {
		return newError(KindInvalidStatus, order.ID, "transfer requires a paid order, status is %s", cur)
	}
	cur := normalizeTransfer(order.TransferStatus)
	if cur == TransferTransferred {
		return nil
	}
	if !cur.CanTransition(TransferTransferred) {
		return newError(KindInvalidStatus, order.ID, "cannot transfer an order in transfer status %s", cur)
	}
	if m.payment == nil {
		return newError(KindInvalidArgument, order.ID, "payment delegate is not configured")
	}
	if order.Amount <= 0 {
		return newError(KindInvalidAmount, order.ID, "transfer needs a non-zero amount")
	}

	gross, net := m.transferAmounts(order)

	// the gateway needs the seller's account details; the balance mutation
	// happens in the settlement transaction below
	var seller Account
	if err := m.store.RunTransaction(ctx, func(tx store.Tx) error {
		return tx.Get(accountRef(order.SellerID), &seller)
	}); err != nil {
		return wrapInternal(order.ID, err, "load seller account %s", order.SellerID)
	}

	result, err := m.payment.Transfer(ctx, order.Currency, net, order, &seller, idemKey(order.ID, "transfer"))
	if err != nil {
		order.TransferStatus = TransferFailure
		if perr := m.persistOrder(ctx, order, nil); perr != nil {
			return errors.Join(wrapInternal(order.ID, err, "transfer failed"), perr)
		}
		return wrapInternal(order.ID, err, "transfer failed")
	}

	order.TransferStatus = TransferTransferred
	order.TransferInformation = result
	err = m.store.RunTransaction(ctx, func(tx store.Tx) error {
		if _, err := m.balance.Transfer(tx, order.Currency, net, PlatformAccount, order.SellerID, order.ID, result); err != nil {
			return err
		}
		// receivable side is order bookkeeping, the same split as payment
		if err := m.mutateAccount(tx, order.SellerID, func(acct *Account) error {
			return acct.Balance.DebitReceivable(order.Currency, gross)
		}); err != nil {
			return err
		}
		return m.orders.Update(tx, order, nil)
	})
	if err == nil {
		return nil
	}

	order.TransferStatus = TransferFailure
	order.TransferInformation = nil
	if _, cerr := m.payment.TransferCancel(ctx, order.Currency, net, order, idemKey(order.ID, "transfer.cancel")); cerr != nil {
		err = errors.Join(
			fmt.Errorf("ledger transaction failed after a successful transfer: %w", err),
			fmt.Errorf("compensating transfer cancel failed, reconcile manually: %w", cerr),
		)
	} else {
		err = fmt.Errorf("ledger transaction failed after a successful transfer of %d %s, transfer canceled: %w",
			net, order.Currency, err)
	}
	if perr := m.persistOrder(ctx, order, nil); perr != nil {
		err = errors.Join(err, perr)
	}
	return err
}

// TransferCancel reverses a completed transfer. The gateway cancel precedes
// the ledger posting; if the posting then fails there is nothing left to
// compensate with, so the order parks in TRANSFER_FAILURE and both facts
// reach the caller.
func (m *Manager) TransferCancel(ctx context.Context, order *Order) error {
	cur := normalizeTransfer(order.TransferStatus)
	if cur == TransferCanceled {
		return nil
	}
	if !cur.CanTransition(TransferCanceled) {
		return newError(KindInvalidStatus, order.ID, "cannot cancel a transfer in status %s", cur)
	}
	if m.payment == nil {
		return newError(KindInvalidArgument, order.ID, "payment delegate is not configured")
	}

	gross, net := m.transferAmounts(order)
	result, err := m.payment.TransferCancel(ctx, order.Currency, net, order, idemKey(order.ID, "transferCancel"))
	if err != nil {
		return wrapInternal(order.ID, err, "transfer cancel failed")
	}

	order.TransferStatus = TransferCanceled
	order.TransferInformation = result
	err = m.store.RunTransaction(ctx, func(tx store.Tx) error {
		if _, err := m.balance.TransferRefund(tx, order.Currency, net, order.SellerID, PlatformAccount, order.ID, result); err != nil {
			return err
		}
		if err := m.mutateAccount(tx, order.SellerID, func(acct *Account) error {
			acct.Balance.CreditReceivable(order.Currency, gross)
			return nil
		}); err != nil {
			return err
		}
		return m.orders.Update(tx, order, nil)
	})
	if err == nil {
		return nil
	}

	order.TransferStatus = TransferFailure
	err = fmt.Errorf("transfer cancel of %d %s succeeded but the ledger transaction failed, reconcile manually: %w",
		net, order.Currency, err)
	if perr := m.persistOrder(ctx, order, nil); perr != nil {
		err = errors.Join(err, perr)
	}
	return err
}

// Payout sends an account's available funds to its bank account. requestID
// distinguishes independent payouts for the same account and feeds the
// idempotency key.
func (m *Manager) Payout(ctx context.Context, accountID string, currency Currency, amount int64, requestID string) error {
	if amount <= 0 {
		return newError(KindInvalidAmount, "", "payout amount must be positive")
	}
	if m.payment == nil {
		return newError(KindInvalidArgument, "", "payment delegate is not configured")
	}

	result, err := m.payment.Payout(ctx, currency, amount, accountID, idemKey(requestID, "payout"))
	if err != nil {
		return wrapInternal("", err, "payout for account %s failed", accountID)
	}

	err = m.store.RunTransaction(ctx, func(tx store.Tx) error {
		_, err := m.balance.Payout(tx, accountID, currency, amount, result)
		return err
	})
	if err == nil {
		return nil
	}

	if _, cerr := m.payment.PayoutCancel(ctx, currency, amount, accountID, idemKey(requestID, "payout.cancel")); cerr != nil {
		return errors.Join(
			fmt.Errorf("ledger transaction failed after a successful payout: %w", err),
			fmt.Errorf("compensating payout cancel failed, reconcile manually: %w", cerr),
		)
	}
	return fmt.Errorf("ledger transaction failed after a successful payout of %d %s, payout canceled: %w",
		amount, currency, err)
}

// PayoutCancel reverses a payout: gateway first, then the ledger credit.
func (m *Manager) PayoutCancel(ctx context.Context, accountID string, currency Currency, amount int64, requestID string) error {
	if amount <= 0 {
		return newError(KindInvalidAmount, "", "payout cancel amount must be positive")
	}
	if m.payment == nil {
		return newError(KindInvalidArgument, "", "payment delegate is not configured")
	}

	result, err := m.payment.PayoutCancel(ctx, currency, amount, accountID, idemKey(requestID, "payoutCancel"))
	if err != nil {
		return wrapInternal("", err, "payout cancel for account %s failed", accountID)
	}

	err = m.store.RunTransaction(ctx, func(tx store.Tx) error {
		_, err := m.balance.PayoutCancel(tx, accountID, currency, amount, result)
		return err
	})
	if err != nil {
		return fmt.Errorf("payout cancel of %d %s succeeded but the ledger transaction failed, reconcile manually: %w",
			amount, currency, err)
	}
	return nil
}

// transferAmounts derives the receivable owed to the seller (gross) and the
// amount actually moved by the gateway after the transfer fee (net).
func (m *Manager) transferAmounts(order *Order) (gross, net int64) {
	gross = order.Amount - feeBPS(order.Amount, m.cfg.PlatformFeeBPS)
	net = gross - feeBPS(gross, m.cfg.TransferFeeBPS)
	return gross, net
}

// creditSeller books the seller's share of a settled order as receivable.
func (m *Manager) creditSeller(tx store.Tx, order *Order, amount int64) error {
	share := amount - feeBPS(amount, m.cfg.PlatformFeeBPS)
	return m.mutateAccount(tx, order.SellerID, func(acct *Account) error {
		acct.Balance.CreditReceivable(order.Currency, share)
		return nil
	})
}

func (m *Manager) debitSeller(tx store.Tx, order *Order, amount int64) error {
	share := amount - feeBPS(amount, m.cfg.PlatformFeeBPS)
	return m.mutateAccount(tx, order.SellerID, func(acct *Account) error {
		return acct.Balance.DebitReceivable(order.Currency, share)
	})
}

func (m *Manager) mutateAccount(tx store.Tx, accountID string, fn func(*Account) error) error {
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

func (m *Manager) persistOrder(ctx context.Context, order *Order, items []*OrderItem) error {
	return m.store.RunTransaction(ctx, func(tx store.Tx) error {
		return m.orders.Update(tx, order, items)
	})
}

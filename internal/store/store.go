package store

import (
	"context"
	"errors"
	"time"
)

// Ref addresses one document inside a collection. Nested collections use
// slash-joined parent paths (e.g. "accounts/acc_1/balance_transactions") so
// the store itself stays flat.
type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string { return r.Collection + "/" + r.ID }

var (
	ErrNotFound = errors.New("store: document not found")
	ErrConflict = errors.New("store: transaction conflict")
)

// Tx is the handle to one atomic read-then-write unit. Every Get joins the
// transaction's read-set; if any document in the read-set is changed by a
// concurrent committed transaction, the commit fails and RunTransaction
// re-runs the whole function. Writes are buffered and become visible
// atomically at commit, or not at all.
type Tx interface {
	// Get decodes the document into out. Missing documents return
	// ErrNotFound but still join the read-set, so concurrent creation is
	// detected.
	Get(ref Ref, out any) error

	// Set buffers a full-value write of v.
	Set(ref Ref, v any) error

	// Delete buffers a delete.
	Delete(ref Ref) error

	// ArrayUnion appends elems to a list field without reading the
	// document first. The merge happens at commit; the document is created
	// if it does not exist.
	ArrayUnion(ref Ref, field string, elems ...any) error

	// ServerTime is the store-assigned timestamp the commit will carry.
	// Monotonic across commits of one store.
	ServerTime() time.Time
}

// Store runs optimistic serializable transactions. Implementations retry a
// bounded number of times on read-set conflicts before giving up with an
// error wrapping ErrConflict.
type Store interface {
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
}

package commerce

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so transports can map it to a status code
// without string matching.
type ErrorKind string

const (
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	KindInvalidStatus   ErrorKind = "INVALID_STATUS"
	KindInvalidCurrency ErrorKind = "INVALID_CURRENCY"
	KindInvalidAmount   ErrorKind = "INVALID_AMOUNT"
	KindOutOfStock      ErrorKind = "OUT_OF_STOCK"
	KindInternal        ErrorKind = "INTERNAL"
)

// Error is the typed failure for commerce operations. Domain-rule violations
// (wrong status, bad amounts, out of stock) carry their kind; unexpected
// store or gateway failures are wrapped as KindInternal with the original
// error preserved for Unwrap.
type Error struct {
	Kind    ErrorKind
	OrderID string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.OrderID != "" {
		msg = fmt.Sprintf("order %s: %s", e.OrderID, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, orderID, format string, args ...any) *Error {
	return &Error{Kind: kind, OrderID: orderID, Message: fmt.Sprintf(format, args...)}
}

func wrapInternal(orderID string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, OrderID: orderID, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

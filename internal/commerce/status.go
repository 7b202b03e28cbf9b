package commerce

// Statuses are one-way, except that a failure state may be retried back
// toward its forward state by re-invoking the same operation.

type PaymentStatus string

const (
	PaymentNone          PaymentStatus = "NONE"
	PaymentRejected      PaymentStatus = "REJECTED"
	PaymentPaid          PaymentStatus = "PAID"
	PaymentFailure       PaymentStatus = "PAYMENT_FAILURE"
	PaymentCanceled      PaymentStatus = "CANCELED"
	PaymentCancelFailure PaymentStatus = "CANCEL_FAILURE"
)

var validNextPayment = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentNone:          {PaymentPaid: true, PaymentFailure: true, PaymentRejected: true},
	PaymentFailure:       {PaymentPaid: true, PaymentFailure: true, PaymentRejected: true},
	PaymentPaid:          {PaymentCanceled: true, PaymentCancelFailure: true},
	PaymentCancelFailure: {PaymentCanceled: true, PaymentCancelFailure: true},
	PaymentRejected:      {},
	PaymentCanceled:      {},
}

func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	return validNextPayment[s][to]
}

type TransferStatus string

const (
	TransferNone        TransferStatus = "NONE"
	TransferTransferred TransferStatus = "TRANSFERRED"
	TransferFailure     TransferStatus = "TRANSFER_FAILURE"
	TransferCanceled    TransferStatus = "CANCELED"
)

var validNextTransfer = map[TransferStatus]map[TransferStatus]bool{
	TransferNone:        {TransferTransferred: true, TransferFailure: true},
	TransferFailure:     {TransferTransferred: true, TransferCanceled: true, TransferFailure: true},
	TransferTransferred: {TransferCanceled: true, TransferFailure: true},
	TransferCanceled:    {},
}

func (s TransferStatus) CanTransition(to TransferStatus) bool {
	return validNextTransfer[s][to]
}

// Orders created outside this package may carry empty statuses.
func normalizePayment(s PaymentStatus) PaymentStatus {
	if s == "" {
		return PaymentNone
	}
	return s
}

func normalizeTransfer(s TransferStatus) TransferStatus {
	if s == "" {
		return TransferNone
	}
	return s
}

package commerce

const (
	TopicOrderPaid        = "commerce.order.paid"
	TopicOrderCanceled    = "commerce.order.canceled"
	TopicOrderTransferred = "commerce.order.transferred"
	TopicPaymentFailed    = "commerce.order.payment.failed"
)

// Partition key is the order id so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

package events

// Topics emitted by the payments flow.
const (
	TopicOrderCreated  = "order.created"
	TopicOrderPaid     = "order.paid"
	TopicPaymentFailed = "payment.failed"
)

package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated          = "order.created"
	TopicOrderPaid             = "order.paid"
	TopicOrderCanceled         = "order.canceled"
	TopicOrderTotalsRecomputed = "order.totals_recomputed"
	TopicPaymentInitiated      = "payment.initiated"
	TopicPaymentFailed         = "payment.failed"
	TopicPaymentExpired        = "payment.expired"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicOrderCanceled,
		TopicOrderTotalsRecomputed,
		TopicPaymentInitiated,
		TopicPaymentFailed,
		TopicPaymentExpired,
	}
}

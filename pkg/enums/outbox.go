package enums

// OutboxEventType enumerates the notification events emitted by the reconciliation engine.
type OutboxEventType string

const (
	EventPaymentApproved OutboxEventType = "payment.approved"
	EventPaymentDeclined OutboxEventType = "payment.declined"
	EventPaymentVoided   OutboxEventType = "payment.voided"
	EventOrderConfirmed  OutboxEventType = "order.confirmed"
	EventOrderCancelled  OutboxEventType = "order.cancelled"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateTransaction OutboxAggregateType = "payment_transaction"
)

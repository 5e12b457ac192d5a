package orders

const (
	TopicLifecycle = "stonefab.lifecycle"
	TopicLedger    = "stonefab.ledger"
	TopicStock     = "stonefab.stock"
	TopicAudit     = "stonefab.audit"
)

// TopicFor routes an event type to its topic.
func TopicFor(eventType string) string {
	switch eventType {
	case EventInvoiceIssued, EventInvoiceVoided, EventPaymentRecorded, EventInvoicesOverdue:
		return TopicLedger
	case EventStockAdjusted:
		return TopicStock
	case EventAuditRecorded:
		return TopicAudit
	}
	return TopicLifecycle
}

// Partition key = quote id, so every event of one quote keeps its order.
func PartitionKey(quoteID string) []byte { return []byte(quoteID) }

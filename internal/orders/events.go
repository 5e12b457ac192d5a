package orders

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventQuoteTransitioned = "QuoteTransitioned"
	EventInvoiceIssued     = "InvoiceIssued"
	EventInvoiceVoided     = "InvoiceVoided"
	EventPaymentRecorded   = "PaymentRecorded"
	EventInvoicesOverdue   = "InvoicesOverdue"
	EventStockAdjusted     = "StockAdjusted"
	EventAuditRecorded     = "AuditRecorded"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "stonefab-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually quote_id
	Payload       json.RawMessage `json:"payload"`
}

// EventSink receives facts after their unit of work committed. Implementations
// must not block the caller for long and must not fail it.
type EventSink interface {
	Emit(ctx context.Context, eventType, correlationID string, payload any)
}

type NopEvents struct{}

func (NopEvents) Emit(context.Context, string, string, any) {}

// ---- payloads ----

type QuoteTransitionedPayload struct {
	QuoteID     string    `json:"quote_id"`
	OrderNumber string    `json:"order_number,omitempty"`
	Action      Action    `json:"action"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	ActorID     string    `json:"actor_id"`
	GrandTotal  float64   `json:"grand_total"`
	At          time.Time `json:"at"`
}

type InvoiceIssuedPayload struct {
	InvoiceID   string      `json:"invoice_id"`
	Number      string      `json:"number"`
	QuoteID     string      `json:"quote_id"`
	Type        InvoiceType `json:"type"`
	TotalAmount float64     `json:"total_amount"`
	DueDate     time.Time   `json:"due_date"`
}

type PaymentRecordedPayload struct {
	PaymentID  string        `json:"payment_id"`
	InvoiceID  string        `json:"invoice_id"`
	QuoteID    string        `json:"quote_id"`
	Amount     float64       `json:"amount"`
	AmountPaid float64       `json:"amount_paid"`
	BalanceDue float64       `json:"balance_due"`
	Status     InvoiceStatus `json:"status"`
}

type InvoicesOverduePayload struct {
	InvoiceIDs []string  `json:"invoice_ids"`
	AsOf       time.Time `json:"as_of"`
}

type StockAdjustedPayload struct {
	ProductID     string       `json:"product_id"`
	Kind          MovementKind `json:"kind"`
	Delta         float64      `json:"delta"`
	CurrentStock  float64      `json:"current_stock"`
	ReservedStock float64      `json:"reserved_stock"`
	NeedsReorder  bool         `json:"needs_reorder"`
}

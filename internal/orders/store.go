package orders

import (
	"context"
	"time"
)

// Store runs units of work atomically. fn either commits entirely or leaves
// every row untouched.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the per-row surface available inside a unit of work.
type Tx interface {
	QuoteTx
	CatalogTx
	StockTx
	LedgerTx
	SettingsTx
}

type QuoteTx interface {
	// GetQuote with lock=true holds the row until the unit of work ends.
	GetQuote(ctx context.Context, id string, lock bool) (Quote, error)
	InsertQuote(ctx context.Context, q Quote) error
	// UpdateQuote replaces header and items and bumps Version. q.Version must
	// match the stored row, otherwise *ConflictError.
	UpdateQuote(ctx context.Context, q Quote) (Quote, error)
	AppendApproval(ctx context.Context, l ApprovalLog) error
	ListApprovals(ctx context.Context, quoteID string) ([]ApprovalLog, error)
	// NextSequence returns the next value of a named monotonic counter.
	NextSequence(ctx context.Context, name string) (int64, error)
}

type CatalogTx interface {
	GetCustomer(ctx context.Context, id string) (Customer, error)
	UpsertCustomer(ctx context.Context, c Customer) error
	GetProduct(ctx context.Context, id string) (Product, error)
	FindProductByName(ctx context.Context, name string) (Product, error)
	UpsertProduct(ctx context.Context, p Product) error
}

// StockTx mutations are single conditional updates; none of them read then write.
type StockTx interface {
	// ReserveStock fails with *InsufficientStock when sqm exceeds available.
	ReserveStock(ctx context.Context, productID string, sqm float64) (Product, error)
	// ReleaseStock decrements reserved, floored at 0.
	ReleaseStock(ctx context.Context, productID string, sqm float64) (Product, error)
	// DeductStock decrements on hand (and reserved when fromReserved), floored at 0.
	DeductStock(ctx context.Context, productID string, sqm float64, fromReserved bool) (Product, error)
	// AdjustStock adds delta to on hand, floored at 0.
	AdjustStock(ctx context.Context, productID string, delta float64) (Product, error)
	InsertStockMovement(ctx context.Context, m StockMovement) error
	ListStockMovements(ctx context.Context, productID string) ([]StockMovement, error)
}

type LedgerTx interface {
	GetInvoice(ctx context.Context, id string, lock bool) (Invoice, error)
	ListInvoicesByQuote(ctx context.Context, quoteID string) ([]Invoice, error)
	ListOpenInvoicesByCustomer(ctx context.Context, customerID string) ([]Invoice, error)
	InsertInvoice(ctx context.Context, inv Invoice) error
	UpdateInvoice(ctx context.Context, inv Invoice) error
	// InsertPayment is idempotent on Payment.ID; inserted is false for a replay.
	InsertPayment(ctx context.Context, p Payment) (inserted bool, err error)
	GetPayment(ctx context.Context, id string) (Payment, error)
	SumPayments(ctx context.Context, invoiceID string) (sum float64, count int, err error)
	ListPayments(ctx context.Context, invoiceID string) ([]Payment, error)
	// MarkOverdue flips open invoices due before today in one statement.
	MarkOverdue(ctx context.Context, today time.Time) ([]string, error)
}

type SettingsTx interface {
	GetSetting(ctx context.Context, key string) (Setting, bool, error)
	PutSetting(ctx context.Context, s Setting) error
}

// AuditStore persists audit records. It is outside the unit of work.
type AuditStore interface {
	InsertAudit(ctx context.Context, r AuditRecord) error
	// ListAudit treats an empty entityType or entityID as a wildcard.
	ListAudit(ctx context.Context, entityType, entityID string) ([]AuditRecord, error)
}

// Sequence names.
const (
	SeqQuote   = "quote_number"
	SeqOrder   = "order_number"
	SeqInvoice = "invoice_number"
)

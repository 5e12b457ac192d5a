// Package ledger issues invoices against orders, applies payments and keeps
// invoice balances derived from the payment rows.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/audit"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
	"github.com/ariefcatur/stonefab-orders/internal/pricing"
)

type Ledger struct {
	Store  orders.Store
	Audit  audit.Sink
	Events orders.EventSink
	Log    *zap.Logger
	Now    func() time.Time
}

func New(store orders.Store, sink audit.Sink, events orders.EventSink, log *zap.Logger) *Ledger {
	if sink == nil {
		sink = audit.Nop{}
	}
	if events == nil {
		events = orders.NopEvents{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{Store: store, Audit: sink, Events: events, Log: log, Now: time.Now}
}

func (l *Ledger) now() time.Time { return l.Now().UTC() }

type IssueRequest struct {
	QuoteID string             `json:"quote_id" validate:"required"`
	Type    orders.InvoiceType `json:"type" validate:"required"`
	// Percentage of the grand total for Deposit, Standard and CreditNote.
	// Ignored for Final, which bills the remainder.
	Percentage       float64 `json:"percentage" validate:"gte=0,lte=100"`
	PaymentTermsDays int     `json:"payment_terms_days" validate:"gte=0"`
	Notes            string  `json:"notes,omitempty"`
}

func (r IssueRequest) validate() error {
	if !r.Type.Valid() {
		return &orders.ValidationError{Field: "type", Message: "unknown invoice type " + string(r.Type)}
	}
	if r.Type != orders.InvoiceFinal && (r.Percentage <= 0 || r.Percentage > 100) {
		return &orders.ValidationError{Field: "percentage", Message: "must be in (0, 100]"}
	}
	if r.PaymentTermsDays < 0 {
		return &orders.ValidationError{Field: "payment_terms_days", Message: "must not be negative"}
	}
	return nil
}

// Invoiced sums the totals of billable invoices. Credit notes are not billing;
// they lower what is owed instead.
func Invoiced(invs []orders.Invoice) float64 {
	var billed []float64
	for _, inv := range invs {
		if inv.Billable() {
			billed = append(billed, inv.TotalAmount)
		}
	}
	return pricing.Sum(billed...)
}

// PaidOn sums amountPaid over the billable invoices of a quote.
func PaidOn(invs []orders.Invoice) float64 {
	var paid []float64
	for _, inv := range invs {
		if inv.Billable() {
			paid = append(paid, inv.AmountPaid)
		}
	}
	return pricing.Sum(paid...)
}

// Credited sums non-void credit notes.
func Credited(invs []orders.Invoice) float64 {
	var cn []float64
	for _, inv := range invs {
		if inv.Type == orders.InvoiceCreditNote && inv.Status != orders.InvoiceVoid {
			cn = append(cn, inv.TotalAmount)
		}
	}
	return pricing.Sum(cn...)
}

// AmountOwed is what the customer must pay in total: grand total less credit notes.
func AmountOwed(grandTotal float64, invs []orders.Invoice) float64 {
	return pricing.BalanceDue(grandTotal, Credited(invs))
}

// DepositPaid sums amountPaid over non-void Deposit invoices.
func DepositPaid(invs []orders.Invoice) float64 {
	var paid []float64
	for _, inv := range invs {
		if inv.Type == orders.InvoiceDeposit && inv.Status != orders.InvoiceVoid {
			paid = append(paid, inv.AmountPaid)
		}
	}
	return pricing.Sum(paid...)
}

// invoiceAmount decides how much a new invoice bills. Nothing is ever billed
// past the amount owed (grand total less credit notes).
func invoiceAmount(q orders.Quote, existing []orders.Invoice, req IssueRequest) (float64, error) {
	remaining := pricing.BalanceDue(AmountOwed(q.GrandTotal, existing), Invoiced(existing))

	var amount float64
	switch req.Type {
	case orders.InvoiceFinal:
		amount = remaining
	case orders.InvoiceCreditNote:
		amount = pricing.Percent(q.GrandTotal, req.Percentage)
		if amount > remaining+0.005 {
			return 0, &orders.ValidationError{Field: "percentage", Message: "credit note exceeds the amount not yet invoiced"}
		}
	default:
		amount = pricing.Percent(q.GrandTotal, req.Percentage)
		if amount > remaining {
			amount = remaining
		}
	}
	amount = pricing.RoundMoney(amount)
	if pricing.Negligible(amount) {
		return 0, &orders.AlreadyInvoiced{QuoteID: q.ID}
	}
	return amount, nil
}

// IssueInvoice bills an order. A human decides when to bill; the lifecycle
// never calls this.
func (l *Ledger) IssueInvoice(ctx context.Context, actor orders.Actor, req IssueRequest) (orders.Invoice, error) {
	if err := actor.Validate(); err != nil {
		return orders.Invoice{}, err
	}
	if err := orders.Require(actor.Role, orders.PermIssueInvoice); err != nil {
		return orders.Invoice{}, err
	}
	if err := req.validate(); err != nil {
		return orders.Invoice{}, err
	}

	var inv orders.Invoice
	err := l.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		// the quote row lock serialises concurrent invoicing of one order
		q, err := tx.GetQuote(ctx, req.QuoteID, true)
		if err != nil {
			return err
		}
		if !q.Status.IsOrder() {
			return &orders.IllegalTransition{From: q.Status, Action: "INVOICE"}
		}
		existing, err := tx.ListInvoicesByQuote(ctx, q.ID)
		if err != nil {
			return err
		}
		amount, err := invoiceAmount(q, existing, req)
		if err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, orders.SeqInvoice)
		if err != nil {
			return err
		}
		issued := l.now()
		inv = orders.Invoice{
			ID:          uuid.NewString(),
			Number:      fmt.Sprintf("INV-%06d", seq),
			QuoteID:     q.ID,
			OrderNumber: q.OrderNumber,
			CustomerID:  q.CustomerID,
			Type:        req.Type,
			Status:      orders.InvoiceIssued,
			TotalAmount: amount,
			BalanceDue:  amount,
			IssuedAt:    issued,
			DueDate:     issued.AddDate(0, 0, req.PaymentTermsDays),
			Notes:       req.Notes,
		}
		if req.Type == orders.InvoiceCreditNote {
			// a credit note owes nothing; it only reduces what was billed
			inv.Status = orders.InvoicePaid
			inv.BalanceDue = 0
		}
		return tx.InsertInvoice(ctx, inv)
	})
	if err != nil {
		return orders.Invoice{}, err
	}

	rec := audit.Entry(actor, "INVOICE_ISSUED", orders.EntityInvoice, inv.ID)
	l.Audit.Record(ctx, audit.Diff(rec, nil, inv))
	l.Events.Emit(ctx, orders.EventInvoiceIssued, inv.QuoteID, orders.InvoiceIssuedPayload{
		InvoiceID: inv.ID, Number: inv.Number, QuoteID: inv.QuoteID, Type: inv.Type,
		TotalAmount: inv.TotalAmount, DueDate: inv.DueDate,
	})
	l.Log.Info("invoice issued",
		zap.String("invoice", inv.Number), zap.String("quote_id", inv.QuoteID),
		zap.String("type", string(inv.Type)), zap.Float64("amount", inv.TotalAmount))
	return inv, nil
}

type PaymentInput struct {
	// ID makes retries idempotent; generated when empty.
	ID        string               `json:"id,omitempty"`
	InvoiceID string               `json:"invoice_id" validate:"required"`
	Amount    float64              `json:"amount" validate:"gt=0"`
	Method    orders.PaymentMethod `json:"method" validate:"required"`
	Reference string               `json:"reference,omitempty"`
	PaidAt    time.Time            `json:"paid_at"`
}

type PaymentResult struct {
	Invoice orders.Invoice `json:"invoice"`
	Payment orders.Payment `json:"payment"`
	Replay  bool           `json:"replay"`
}

// settle derives paid, balance and status from the authoritative payment sum.
func settle(inv orders.Invoice, paid float64) orders.Invoice {
	inv.AmountPaid = paid
	inv.BalanceDue = pricing.BalanceDue(inv.TotalAmount, paid)
	if pricing.IsPaid(inv.TotalAmount, paid) {
		inv.Status = orders.InvoicePaid
	} else {
		inv.Status = orders.InvoicePartiallyPaid
	}
	return inv
}

// RecordPayment appends a payment and resums the invoice from every payment row.
// A known payment id returns the stored payment and leaves the invoice as it is;
// reusing that id on another invoice is a conflict.
func (l *Ledger) RecordPayment(ctx context.Context, actor orders.Actor, in PaymentInput) (PaymentResult, error) {
	if err := actor.Validate(); err != nil {
		return PaymentResult{}, err
	}
	if err := orders.Require(actor.Role, orders.PermRecordPayment); err != nil {
		return PaymentResult{}, err
	}
	in.Amount = pricing.RoundMoney(in.Amount)
	if in.Amount <= 0 {
		return PaymentResult{}, &orders.ValidationError{Field: "amount", Message: "must be at least 0.01"}
	}
	if !in.Method.Valid() {
		return PaymentResult{}, &orders.ValidationError{Field: "method", Message: "unknown payment method " + string(in.Method)}
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.PaidAt.IsZero() {
		in.PaidAt = l.now()
	}

	var res PaymentResult
	err := l.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		inv, err := tx.GetInvoice(ctx, in.InvoiceID, true)
		if err != nil {
			return err
		}
		if inv.Status == orders.InvoiceVoid {
			return &orders.InvoiceLocked{InvoiceID: inv.ID, Reason: "invoice is void"}
		}
		if inv.Type == orders.InvoiceCreditNote {
			return &orders.InvoiceLocked{InvoiceID: inv.ID, Reason: "credit notes take no payments"}
		}
		p := orders.Payment{
			ID:         in.ID,
			InvoiceID:  inv.ID,
			QuoteID:    inv.QuoteID,
			Amount:     in.Amount,
			Method:     in.Method,
			Reference:  in.Reference,
			PaidAt:     in.PaidAt.UTC(),
			RecordedBy: actor.ID,
		}
		inserted, err := tx.InsertPayment(ctx, p)
		if err != nil {
			return err
		}
		if !inserted {
			// replay: hand back what is stored, invoice untouched
			stored, err := tx.GetPayment(ctx, p.ID)
			if err != nil {
				return err
			}
			if stored.InvoiceID != inv.ID {
				return &orders.ConflictError{Resource: "payment " + p.ID + " belongs to invoice " + stored.InvoiceID}
			}
			res = PaymentResult{Invoice: inv, Payment: stored, Replay: true}
			return nil
		}
		paid, _, err := tx.SumPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		inv = settle(inv, paid)
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		res = PaymentResult{Invoice: inv, Payment: p}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	if res.Replay {
		return res, nil
	}

	rec := audit.Entry(actor, "PAYMENT_RECORDED", orders.EntityPayment, res.Payment.ID)
	rec.NewValue = fmt.Sprintf(`{"invoice_id":%q,"amount":%.2f}`, res.Invoice.ID, res.Payment.Amount)
	l.Audit.Record(ctx, rec)
	l.Events.Emit(ctx, orders.EventPaymentRecorded, res.Invoice.QuoteID, orders.PaymentRecordedPayload{
		PaymentID: res.Payment.ID, InvoiceID: res.Invoice.ID, QuoteID: res.Invoice.QuoteID,
		Amount: res.Payment.Amount, AmountPaid: res.Invoice.AmountPaid,
		BalanceDue: res.Invoice.BalanceDue, Status: res.Invoice.Status,
	})
	return res, nil
}

// VoidInvoice cancels an invoice that has no payments against it.
func (l *Ledger) VoidInvoice(ctx context.Context, actor orders.Actor, invoiceID, reason string) (orders.Invoice, error) {
	if err := actor.Validate(); err != nil {
		return orders.Invoice{}, err
	}
	if err := orders.Require(actor.Role, orders.PermVoidInvoice); err != nil {
		return orders.Invoice{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return orders.Invoice{}, &orders.ValidationError{Field: "reason", Message: "required"}
	}

	var before, inv orders.Invoice
	err := l.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		if before, err = tx.GetInvoice(ctx, invoiceID, true); err != nil {
			return err
		}
		if before.Status == orders.InvoiceVoid {
			inv = before
			return nil
		}
		_, n, err := tx.SumPayments(ctx, invoiceID)
		if err != nil {
			return err
		}
		if n > 0 {
			return &orders.InvoiceLocked{InvoiceID: invoiceID, Reason: "invoice has payments"}
		}
		inv = before
		inv.Status = orders.InvoiceVoid
		inv.BalanceDue = 0
		inv.VoidReason = reason
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return orders.Invoice{}, err
	}
	if before.Status == orders.InvoiceVoid {
		return inv, nil
	}

	rec := audit.Entry(actor, "INVOICE_VOIDED", orders.EntityInvoice, inv.ID)
	rec.Reason = reason
	l.Audit.Record(ctx, audit.Diff(rec, map[string]any{"status": before.Status}, map[string]any{"status": inv.Status}))
	l.Events.Emit(ctx, orders.EventInvoiceVoided, inv.QuoteID, orders.InvoiceIssuedPayload{
		InvoiceID: inv.ID, Number: inv.Number, QuoteID: inv.QuoteID, Type: inv.Type, TotalAmount: inv.TotalAmount,
	})
	return inv, nil
}

// SweepOverdue marks Issued and PartiallyPaid invoices due before today as
// Overdue. Running it twice changes nothing the second time.
func (l *Ledger) SweepOverdue(ctx context.Context, actor orders.Actor) ([]string, error) {
	if err := orders.Require(actor.Role, orders.PermSweepOverdue); err != nil {
		return nil, err
	}
	today := l.now()
	var ids []string
	err := l.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		ids, err = tx.MarkOverdue(ctx, today)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		rec := audit.Entry(actor, "INVOICES_OVERDUE", orders.EntityInvoice, strings.Join(ids, ","))
		l.Audit.Record(ctx, rec)
		l.Events.Emit(ctx, orders.EventInvoicesOverdue, "overdue-sweep", orders.InvoicesOverduePayload{InvoiceIDs: ids, AsOf: today})
	}
	l.Log.Info("overdue sweep", zap.Int("marked", len(ids)))
	return ids, nil
}

// OutstandingDebtIn sums the open balances of a customer inside a unit of work.
func OutstandingDebtIn(ctx context.Context, tx orders.LedgerTx, customerID string) (float64, error) {
	invs, err := tx.ListOpenInvoicesByCustomer(ctx, customerID)
	if err != nil {
		return 0, err
	}
	var due []float64
	for _, inv := range invs {
		due = append(due, inv.BalanceDue)
	}
	return pricing.Sum(due...), nil
}

func (l *Ledger) OutstandingDebt(ctx context.Context, customerID string) (float64, error) {
	var debt float64
	err := l.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		debt, err = OutstandingDebtIn(ctx, tx, customerID)
		return err
	})
	return debt, err
}

type Summary struct {
	QuoteID         string           `json:"quote_id"`
	OrderNumber     string           `json:"order_number,omitempty"`
	GrandTotal      float64          `json:"grand_total"`
	Invoiced        float64          `json:"invoiced"`
	Paid            float64          `json:"paid"`
	BalanceDue      float64          `json:"balance_due"`
	PercentInvoiced float64          `json:"percent_invoiced"`
	FullyPaid       bool             `json:"fully_paid"`
	Invoices        []orders.Invoice `json:"invoices"`
}

// Summary is the finance view of one order.
func (l *Ledger) Summary(ctx context.Context, quoteID string) (Summary, error) {
	var s Summary
	err := l.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		q, err := tx.GetQuote(ctx, quoteID, false)
		if err != nil {
			return err
		}
		invs, err := tx.ListInvoicesByQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		s = Summary{
			QuoteID:     q.ID,
			OrderNumber: q.OrderNumber,
			GrandTotal:  q.GrandTotal,
			Invoiced:    Invoiced(invs),
			Paid:        PaidOn(invs),
			Invoices:    invs,
		}
		owed := AmountOwed(q.GrandTotal, invs)
		s.BalanceDue = pricing.BalanceDue(owed, s.Paid)
		s.FullyPaid = pricing.IsPaid(owed, s.Paid)
		if owed > 0 {
			s.PercentInvoiced = pricing.RoundMoney(s.Invoiced / owed * 100)
		}
		return nil
	})
	return s, err
}

func (l *Ledger) Payments(ctx context.Context, invoiceID string) ([]orders.Payment, error) {
	var out []orders.Payment
	err := l.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.GetInvoice(ctx, invoiceID, false); err != nil {
			return err
		}
		var err error
		out, err = tx.ListPayments(ctx, invoiceID)
		return err
	})
	return out, err
}

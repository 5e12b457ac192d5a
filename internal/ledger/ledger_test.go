package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/stonefab-orders/internal/audit"
	"github.com/ariefcatur/stonefab-orders/internal/memstore"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

var (
	finance = orders.Actor{ID: "u-fin", Name: "Ana", Role: orders.RoleFinance}
	sales   = orders.Actor{ID: "u-sales", Name: "Sam", Role: orders.RoleSalesRep}
)

type fixture struct {
	l     *Ledger
	st    *memstore.Store
	clock time.Time
}

func newFixture(t *testing.T, quotes ...orders.Quote) *fixture {
	t.Helper()
	f := &fixture{st: memstore.New(), clock: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, f.st.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		for _, q := range quotes {
			if err := tx.InsertQuote(ctx, q); err != nil {
				return err
			}
		}
		return nil
	}))
	f.l = New(f.st, audit.StoreSink{Store: f.st}, nil, zaptest.NewLogger(t))
	f.l.Now = func() time.Time { return f.clock }
	return f
}

func order(id string, grand float64) orders.Quote {
	return orders.Quote{
		ID: id, Number: "Q-1001", OrderNumber: "ORD-000001", CustomerID: "c-1",
		Status: orders.StatusOrdered, GrandTotal: grand,
	}
}

func TestDepositThenFinalThenPayments(t *testing.T) {
	f := newFixture(t, order("q-1", 10000))
	ctx := context.Background()

	dep, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceDeposit, Percentage: 50, PaymentTermsDays: 14})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, dep.TotalAmount)
	assert.Equal(t, 5000.0, dep.BalanceDue)
	assert.Equal(t, orders.InvoiceIssued, dep.Status)
	assert.Equal(t, "INV-000001", dep.Number)
	assert.Equal(t, "ORD-000001", dep.OrderNumber)
	assert.Equal(t, f.clock.AddDate(0, 0, 14), dep.DueDate)

	fin, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceFinal, PaymentTermsDays: 30})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, fin.TotalAmount)
	assert.Equal(t, "INV-000002", fin.Number)

	res, err := f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: dep.ID, Amount: 2000, Method: orders.PaymentBankTransfer})
	require.NoError(t, err)
	assert.Equal(t, 2000.0, res.Invoice.AmountPaid)
	assert.Equal(t, 3000.0, res.Invoice.BalanceDue)
	assert.Equal(t, orders.InvoicePartiallyPaid, res.Invoice.Status)

	res, err = f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: dep.ID, Amount: 3000, Method: orders.PaymentCash})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, res.Invoice.AmountPaid)
	assert.Equal(t, 0.0, res.Invoice.BalanceDue)
	assert.Equal(t, orders.InvoicePaid, res.Invoice.Status)

	sum, err := f.l.Summary(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, 10000.0, sum.Invoiced)
	assert.Equal(t, 5000.0, sum.Paid)
	assert.Equal(t, 5000.0, sum.BalanceDue)
	assert.Equal(t, 100.0, sum.PercentInvoiced)
	assert.False(t, sum.FullyPaid)
}

func TestFullyInvoicedOrderRejectsAnotherInvoice(t *testing.T) {
	f := newFixture(t, order("q-1", 10000))
	ctx := context.Background()

	_, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceStandard, Percentage: 100})
	require.NoError(t, err)

	_, err = f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceFinal})
	var done *orders.AlreadyInvoiced
	require.ErrorAs(t, err, &done)
	assert.ErrorIs(t, err, orders.ErrGuardViolation)

	_, err = f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceDeposit, Percentage: 30})
	assert.ErrorAs(t, err, &done)

	s, _ := f.l.Summary(ctx, "q-1")
	assert.Len(t, s.Invoices, 1, "no invoice is created on rejection")
}

func TestDepositIsCappedAtRemainder(t *testing.T) {
	f := newFixture(t, order("q-1", 1000))
	ctx := context.Background()
	_, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceDeposit, Percentage: 80})
	require.NoError(t, err)
	inv, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceStandard, Percentage: 50})
	require.NoError(t, err)
	assert.Equal(t, 200.0, inv.TotalAmount)
}

func TestCreditNoteLowersWhatIsOwed(t *testing.T) {
	f := newFixture(t, order("q-1", 1000))
	ctx := context.Background()
	dep, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceDeposit, Percentage: 50})
	require.NoError(t, err)

	cn, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceCreditNote, Percentage: 10, Notes: "chipped edge"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, cn.TotalAmount)
	assert.Equal(t, orders.InvoicePaid, cn.Status)
	assert.Equal(t, 0.0, cn.BalanceDue)

	fin, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceFinal})
	require.NoError(t, err)
	assert.Equal(t, 400.0, fin.TotalAmount)

	_, err = f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceCreditNote, Percentage: 5})
	assert.ErrorIs(t, err, orders.ErrValidation, "nothing left unbilled to credit")

	_, err = f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: cn.ID, Amount: 1, Method: orders.PaymentCash})
	assert.ErrorIs(t, err, orders.ErrGuardViolation)

	for _, inv := range []orders.Invoice{dep, fin} {
		_, err = f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: inv.ID, Amount: inv.TotalAmount, Method: orders.PaymentCash})
		require.NoError(t, err)
	}
	s, err := f.l.Summary(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, 900.0, s.Invoiced)
	assert.Equal(t, 100.0, s.PercentInvoiced)
	assert.True(t, s.FullyPaid)
}

func TestIssueInvoiceGuards(t *testing.T) {
	draft := order("q-draft", 500)
	draft.Status = orders.StatusApproved
	f := newFixture(t, order("q-1", 500), draft)
	ctx := context.Background()

	_, err := f.l.IssueInvoice(ctx, sales, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceDeposit, Percentage: 30})
	assert.ErrorIs(t, err, orders.ErrGuardViolation, "sales cannot bill")

	_, err = f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-draft", Type: orders.InvoiceDeposit, Percentage: 30})
	var illegal *orders.IllegalTransition
	assert.ErrorAs(t, err, &illegal, "only orders are billed")

	_, err = f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceDeposit, Percentage: 0})
	assert.ErrorIs(t, err, orders.ErrValidation)
	_, err = f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: "Bogus", Percentage: 10})
	assert.ErrorIs(t, err, orders.ErrValidation)
	_, err = f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "missing", Type: orders.InvoiceFinal})
	assert.ErrorIs(t, err, orders.ErrNotFound)

	admin := orders.Actor{ID: "root", Name: "Root", Role: orders.RoleAdmin}
	_, err = f.l.IssueInvoice(ctx, admin, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceFinal})
	assert.NoError(t, err, "admin holds every permission")
}

func TestRecordPaymentValidationAndReplay(t *testing.T) {
	f := newFixture(t, order("q-1", 1000))
	ctx := context.Background()
	inv, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceFinal})
	require.NoError(t, err)

	_, err = f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: inv.ID, Amount: 0, Method: orders.PaymentCash})
	assert.ErrorIs(t, err, orders.ErrValidation)
	_, err = f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: inv.ID, Amount: 10, Method: "IOU"})
	assert.ErrorIs(t, err, orders.ErrValidation)

	in := PaymentInput{ID: "pay-1", InvoiceID: inv.ID, Amount: 400, Method: orders.PaymentCard}
	first, err := f.l.RecordPayment(ctx, finance, in)
	require.NoError(t, err)
	assert.False(t, first.Replay)
	again, err := f.l.RecordPayment(ctx, finance, in)
	require.NoError(t, err)
	assert.True(t, again.Replay)
	assert.Equal(t, 400.0, again.Invoice.AmountPaid, "replayed payment is not counted twice")

	pays, err := f.l.Payments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, pays, 1)
}

func TestReplayLeavesInvoiceAlone(t *testing.T) {
	f := newFixture(t, order("q-1", 1000))
	ctx := context.Background()
	inv, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceFinal, PaymentTermsDays: 7})
	require.NoError(t, err)

	in := PaymentInput{ID: "pay-1", InvoiceID: inv.ID, Amount: 400, Method: orders.PaymentBankTransfer, Reference: "TRX-1"}
	_, err = f.l.RecordPayment(ctx, finance, in)
	require.NoError(t, err)

	f.clock = f.clock.AddDate(0, 0, 8)
	ids, err := f.l.SweepOverdue(ctx, orders.SystemActor)
	require.NoError(t, err)
	require.Equal(t, []string{inv.ID}, ids)

	in.Reference = "TRX-1-retry"
	again, err := f.l.RecordPayment(ctx, finance, in)
	require.NoError(t, err)
	assert.True(t, again.Replay)
	assert.Equal(t, orders.InvoiceOverdue, again.Invoice.Status)
	assert.Equal(t, 400.0, again.Invoice.AmountPaid)
	assert.Equal(t, "TRX-1", again.Payment.Reference, "stored payment comes back")

	s, err := f.l.Summary(ctx, "q-1")
	require.NoError(t, err)
	require.Len(t, s.Invoices, 1)
	assert.Equal(t, orders.InvoiceOverdue, s.Invoices[0].Status)
}

func TestPaymentIDCannotMoveToAnotherInvoice(t *testing.T) {
	f := newFixture(t, order("q-1", 1000))
	ctx := context.Background()
	a, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceDeposit, Percentage: 30})
	require.NoError(t, err)
	b, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceStandard, Percentage: 30})
	require.NoError(t, err)

	_, err = f.l.RecordPayment(ctx, finance, PaymentInput{ID: "pay-1", InvoiceID: a.ID, Amount: 100, Method: orders.PaymentCash})
	require.NoError(t, err)
	_, err = f.l.RecordPayment(ctx, finance, PaymentInput{ID: "pay-1", InvoiceID: b.ID, Amount: 100, Method: orders.PaymentCash})
	assert.ErrorIs(t, err, orders.ErrConcurrencyConflict)

	pays, err := f.l.Payments(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, pays)
	s, err := f.l.Summary(ctx, "q-1")
	require.NoError(t, err)
	for _, inv := range s.Invoices {
		if inv.ID == b.ID {
			assert.Equal(t, orders.InvoiceIssued, inv.Status)
			assert.Zero(t, inv.AmountPaid)
		}
	}
}

func TestSubCentPaymentIsRejected(t *testing.T) {
	f := newFixture(t, order("q-1", 1000))
	ctx := context.Background()
	inv, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceFinal})
	require.NoError(t, err)

	_, err = f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: inv.ID, Amount: 0.004, Method: orders.PaymentCash})
	assert.ErrorIs(t, err, orders.ErrValidation)
	pays, err := f.l.Payments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, pays)

	res, err := f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: inv.ID, Amount: 0.006, Method: orders.PaymentCash})
	require.NoError(t, err)
	assert.Equal(t, 0.01, res.Payment.Amount)
	assert.Equal(t, 0.01, res.Invoice.AmountPaid)
}

func TestConcurrentPaymentsConverge(t *testing.T) {
	f := newFixture(t, order("q-1", 1000))
	ctx := context.Background()
	inv, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceFinal})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: inv.ID, Amount: 100, Method: orders.PaymentCash})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := f.l.Summary(ctx, "q-1")
	require.NoError(t, err)
	require.Len(t, s.Invoices, 1)
	assert.Equal(t, 1000.0, s.Invoices[0].AmountPaid)
	assert.Equal(t, orders.InvoicePaid, s.Invoices[0].Status)
	assert.True(t, s.FullyPaid)
}

func TestVoidInvoice(t *testing.T) {
	f := newFixture(t, order("q-1", 1000))
	ctx := context.Background()
	dep, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceDeposit, Percentage: 40})
	require.NoError(t, err)

	_, err = f.l.VoidInvoice(ctx, finance, dep.ID, "")
	assert.ErrorIs(t, err, orders.ErrValidation)

	v, err := f.l.VoidInvoice(ctx, finance, dep.ID, "wrong customer")
	require.NoError(t, err)
	assert.Equal(t, orders.InvoiceVoid, v.Status)

	// voided amount no longer counts as invoiced
	fin, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceFinal})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, fin.TotalAmount)

	_, err = f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: fin.ID, Amount: 1, Method: orders.PaymentCash})
	require.NoError(t, err)
	_, err = f.l.VoidInvoice(ctx, finance, fin.ID, "changed mind")
	var locked *orders.InvoiceLocked
	assert.ErrorAs(t, err, &locked)
}

func TestSweepOverdueIsIdempotent(t *testing.T) {
	f := newFixture(t, order("q-1", 3000))
	ctx := context.Background()

	a, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceDeposit, Percentage: 10, PaymentTermsDays: 7})
	require.NoError(t, err)
	b, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceStandard, Percentage: 10, PaymentTermsDays: 7})
	require.NoError(t, err)
	c, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceStandard, Percentage: 10, PaymentTermsDays: 60})
	require.NoError(t, err)
	_, err = f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: b.ID, Amount: b.TotalAmount, Method: orders.PaymentCash})
	require.NoError(t, err)

	f.clock = f.clock.AddDate(0, 0, 8)
	ids, err := f.l.SweepOverdue(ctx, orders.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids)

	ids, err = f.l.SweepOverdue(ctx, orders.SystemActor)
	require.NoError(t, err)
	assert.Empty(t, ids)

	s, _ := f.l.Summary(ctx, "q-1")
	status := map[string]orders.InvoiceStatus{}
	for _, inv := range s.Invoices {
		status[inv.ID] = inv.Status
	}
	assert.Equal(t, orders.InvoiceOverdue, status[a.ID])
	assert.Equal(t, orders.InvoicePaid, status[b.ID])
	assert.Equal(t, orders.InvoiceIssued, status[c.ID])

	_, err = f.l.SweepOverdue(ctx, sales)
	assert.ErrorIs(t, err, orders.ErrGuardViolation)
}

func TestOutstandingDebt(t *testing.T) {
	other := order("q-2", 2000)
	f := newFixture(t, order("q-1", 1000), other)
	ctx := context.Background()

	a, err := f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-1", Type: orders.InvoiceFinal})
	require.NoError(t, err)
	_, err = f.l.IssueInvoice(ctx, finance, IssueRequest{QuoteID: "q-2", Type: orders.InvoiceDeposit, Percentage: 50})
	require.NoError(t, err)
	_, err = f.l.RecordPayment(ctx, finance, PaymentInput{InvoiceID: a.ID, Amount: 250, Method: orders.PaymentCheck})
	require.NoError(t, err)

	debt, err := f.l.OutstandingDebt(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 1750.0, debt)
}

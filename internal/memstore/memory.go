// Package memstore is an in-process orders.Store for development and tests.
// Units of work are serialised by one mutex and run against a copy of the
// state that replaces the live state only when fn returns nil.
package memstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time

	auditMu sync.RWMutex
	audit   []orders.AuditRecord
}

var (
	_ orders.Store      = (*Store)(nil)
	_ orders.AuditStore = (*Store)(nil)
	_ orders.Tx         = (*tx)(nil)
)

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock overrides the timestamp source, handy for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) InsertAudit(_ context.Context, r orders.AuditRecord) error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	for _, x := range s.audit {
		if x.ID == r.ID {
			return nil
		}
	}
	s.audit = append(s.audit, r)
	return nil
}

func (s *Store) ListAudit(_ context.Context, entityType, entityID string) ([]orders.AuditRecord, error) {
	s.auditMu.RLock()
	defer s.auditMu.RUnlock()
	var out []orders.AuditRecord
	for _, r := range s.audit {
		if (entityType == "" || r.EntityType == entityType) && (entityID == "" || r.EntityID == entityID) {
			out = append(out, r)
		}
	}
	return out, nil
}

type state struct {
	quotes    map[string]orders.Quote
	approvals map[string][]orders.ApprovalLog
	seq       map[string]int64
	customers map[string]orders.Customer
	products  map[string]orders.Product
	movements []orders.StockMovement
	invoices  map[string]orders.Invoice
	payments  []orders.Payment
	settings  map[string]orders.Setting
}

func newState() *state {
	return &state{
		quotes:    map[string]orders.Quote{},
		approvals: map[string][]orders.ApprovalLog{},
		seq:       map[string]int64{},
		customers: map[string]orders.Customer{},
		products:  map[string]orders.Product{},
		invoices:  map[string]orders.Invoice{},
		settings:  map[string]orders.Setting{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.quotes {
		c.quotes[k] = v.Clone()
	}
	for k, v := range s.approvals {
		c.approvals[k] = append([]orders.ApprovalLog(nil), v...)
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	c.movements = append([]orders.StockMovement(nil), s.movements...)
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	c.payments = append([]orders.Payment(nil), s.payments...)
	for k, v := range s.settings {
		c.settings[k] = v
	}
	return c
}

type tx struct {
	st  *state
	now func() time.Time
}

func notFound(entity, id string) error { return &orders.NotFoundError{Entity: entity, ID: id} }

// sqm figures are kept at 3 places.
func round3(x float64) float64 { return math.Round(x*1000) / 1000 }

// ---- quotes ----

func (t *tx) GetQuote(_ context.Context, id string, _ bool) (orders.Quote, error) {
	q, ok := t.st.quotes[id]
	if !ok {
		return orders.Quote{}, notFound("quote", id)
	}
	return q.Clone(), nil
}

func (t *tx) InsertQuote(_ context.Context, q orders.Quote) error {
	if _, ok := t.st.quotes[q.ID]; ok {
		return &orders.ConflictError{Resource: "quote " + q.ID}
	}
	now := t.now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	if q.Version == 0 {
		q.Version = 1
	}
	t.st.quotes[q.ID] = q.Clone()
	return nil
}

func (t *tx) UpdateQuote(_ context.Context, q orders.Quote) (orders.Quote, error) {
	cur, ok := t.st.quotes[q.ID]
	if !ok {
		return orders.Quote{}, notFound("quote", q.ID)
	}
	if q.Version != cur.Version {
		return orders.Quote{}, &orders.ConflictError{Resource: "quote " + q.ID}
	}
	q.Version = cur.Version + 1
	q.CreatedAt = cur.CreatedAt
	q.UpdatedAt = t.now().UTC()
	t.st.quotes[q.ID] = q.Clone()
	return q.Clone(), nil
}

func (t *tx) AppendApproval(_ context.Context, l orders.ApprovalLog) error {
	t.st.approvals[l.QuoteID] = append(t.st.approvals[l.QuoteID], l)
	return nil
}

func (t *tx) ListApprovals(_ context.Context, quoteID string) ([]orders.ApprovalLog, error) {
	return append([]orders.ApprovalLog(nil), t.st.approvals[quoteID]...), nil
}

func (t *tx) NextSequence(_ context.Context, name string) (int64, error) {
	t.st.seq[name]++
	return t.st.seq[name], nil
}

// ---- catalog ----

func (t *tx) GetCustomer(_ context.Context, id string) (orders.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return orders.Customer{}, notFound("customer", id)
	}
	return c, nil
}

func (t *tx) UpsertCustomer(_ context.Context, c orders.Customer) error {
	t.st.customers[c.ID] = c
	return nil
}

func (t *tx) GetProduct(_ context.Context, id string) (orders.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return orders.Product{}, notFound("product", id)
	}
	return p, nil
}

func (t *tx) FindProductByName(_ context.Context, name string) (orders.Product, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	var partial []orders.Product
	for _, p := range t.st.products {
		n := strings.ToLower(p.Name)
		if n == needle {
			return p, nil
		}
		if needle != "" && (strings.Contains(n, needle) || strings.Contains(needle, n)) {
			partial = append(partial, p)
		}
	}
	if len(partial) == 0 {
		return orders.Product{}, notFound("product", name)
	}
	sort.Slice(partial, func(i, j int) bool { return partial[i].Name < partial[j].Name })
	return partial[0], nil
}

func (t *tx) UpsertProduct(_ context.Context, p orders.Product) error {
	p.UpdatedAt = t.now().UTC()
	t.st.products[p.ID] = p
	return nil
}

// ---- stock ----

func (t *tx) ReserveStock(_ context.Context, productID string, sqm float64) (orders.Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return orders.Product{}, notFound("product", productID)
	}
	avail := round3(p.Available())
	if round3(sqm) > avail {
		return orders.Product{}, &orders.InsufficientStock{ProductID: productID, Available: avail, Requested: sqm}
	}
	p.ReservedStock = round3(p.ReservedStock + sqm)
	p.UpdatedAt = t.now().UTC()
	t.st.products[productID] = p
	return p, nil
}

func (t *tx) ReleaseStock(_ context.Context, productID string, sqm float64) (orders.Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return orders.Product{}, notFound("product", productID)
	}
	p.ReservedStock = math.Max(0, round3(p.ReservedStock-sqm))
	p.UpdatedAt = t.now().UTC()
	t.st.products[productID] = p
	return p, nil
}

func (t *tx) DeductStock(_ context.Context, productID string, sqm float64, fromReserved bool) (orders.Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return orders.Product{}, notFound("product", productID)
	}
	p.CurrentStock = math.Max(0, round3(p.CurrentStock-sqm))
	if fromReserved {
		p.ReservedStock = math.Max(0, round3(p.ReservedStock-sqm))
	}
	p.UpdatedAt = t.now().UTC()
	t.st.products[productID] = p
	return p, nil
}

func (t *tx) AdjustStock(_ context.Context, productID string, delta float64) (orders.Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return orders.Product{}, notFound("product", productID)
	}
	p.CurrentStock = math.Max(0, round3(p.CurrentStock+delta))
	p.UpdatedAt = t.now().UTC()
	t.st.products[productID] = p
	return p, nil
}

func (t *tx) InsertStockMovement(_ context.Context, m orders.StockMovement) error {
	t.st.movements = append(t.st.movements, m)
	return nil
}

func (t *tx) ListStockMovements(_ context.Context, productID string) ([]orders.StockMovement, error) {
	var out []orders.StockMovement
	for _, m := range t.st.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

// ---- ledger ----

func (t *tx) GetInvoice(_ context.Context, id string, _ bool) (orders.Invoice, error) {
	inv, ok := t.st.invoices[id]
	if !ok {
		return orders.Invoice{}, notFound("invoice", id)
	}
	return inv, nil
}

func (t *tx) ListInvoicesByQuote(_ context.Context, quoteID string) ([]orders.Invoice, error) {
	var out []orders.Invoice
	for _, inv := range t.st.invoices {
		if inv.QuoteID == quoteID {
			out = append(out, inv)
		}
	}
	sortInvoices(out)
	return out, nil
}

func (t *tx) ListOpenInvoicesByCustomer(_ context.Context, customerID string) ([]orders.Invoice, error) {
	var out []orders.Invoice
	for _, inv := range t.st.invoices {
		if inv.CustomerID == customerID && inv.Status.Open() {
			out = append(out, inv)
		}
	}
	sortInvoices(out)
	return out, nil
}

func sortInvoices(in []orders.Invoice) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].IssuedAt.Equal(in[j].IssuedAt) {
			return in[i].Number < in[j].Number
		}
		return in[i].IssuedAt.Before(in[j].IssuedAt)
	})
}

func (t *tx) InsertInvoice(_ context.Context, inv orders.Invoice) error {
	if _, ok := t.st.invoices[inv.ID]; ok {
		return &orders.ConflictError{Resource: "invoice " + inv.ID}
	}
	t.st.invoices[inv.ID] = inv
	return nil
}

func (t *tx) UpdateInvoice(_ context.Context, inv orders.Invoice) error {
	if _, ok := t.st.invoices[inv.ID]; !ok {
		return notFound("invoice", inv.ID)
	}
	t.st.invoices[inv.ID] = inv
	return nil
}

func (t *tx) InsertPayment(_ context.Context, p orders.Payment) (bool, error) {
	for _, x := range t.st.payments {
		if x.ID == p.ID {
			return false, nil
		}
	}
	t.st.payments = append(t.st.payments, p)
	return true, nil
}

func (t *tx) GetPayment(_ context.Context, id string) (orders.Payment, error) {
	for _, p := range t.st.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return orders.Payment{}, notFound("payment", id)
}

func (t *tx) SumPayments(_ context.Context, invoiceID string) (float64, int, error) {
	var amounts []float64
	for _, p := range t.st.payments {
		if p.InvoiceID == invoiceID {
			amounts = append(amounts, p.Amount)
		}
	}
	sum := 0.0
	for _, a := range amounts {
		sum += a
	}
	return math.Round(sum*100) / 100, len(amounts), nil
}

func (t *tx) ListPayments(_ context.Context, invoiceID string) ([]orders.Payment, error) {
	var out []orders.Payment
	for _, p := range t.st.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *tx) MarkOverdue(_ context.Context, today time.Time) ([]string, error) {
	cutoff := truncateDay(today)
	var ids []string
	for id, inv := range t.st.invoices {
		if inv.Status != orders.InvoiceIssued && inv.Status != orders.InvoicePartiallyPaid {
			continue
		}
		if truncateDay(inv.DueDate).Before(cutoff) {
			inv.Status = orders.InvoiceOverdue
			t.st.invoices[id] = inv
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ---- settings ----

func (t *tx) GetSetting(_ context.Context, key string) (orders.Setting, bool, error) {
	s, ok := t.st.settings[key]
	return s, ok, nil
}

func (t *tx) PutSetting(_ context.Context, s orders.Setting) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = t.now().UTC()
	}
	t.st.settings[s.Key] = s
	return nil
}

package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

type Store struct{ DB *pgxpool.Pool }

var (
	_ orders.Store      = (*Store)(nil)
	_ orders.AuditStore = (*Store)(nil)
	_ orders.Tx         = (*tx)(nil)
)

// InTx runs fn in one read-committed transaction. Row locks are taken
// explicitly with FOR UPDATE where a caller asks for them.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	pg, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapErr("begin", err)
	}
	defer func() { _ = pg.Rollback(ctx) }()

	if err := fn(ctx, &tx{q: pg}); err != nil {
		return err
	}
	if err := pg.Commit(ctx); err != nil {
		return mapErr("commit", err)
	}
	return nil
}

// mapErr sorts driver errors into the domain taxonomy. Domain errors pass through.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if orders.Kind(err) != nil {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return &orders.ConflictError{Resource: op}
		case "23505":
			return &orders.ConflictError{Resource: op + ": " + pgErr.ConstraintName}
		case "23514", "23503":
			return &orders.ValidationError{Field: pgErr.ConstraintName, Message: pgErr.Message}
		}
	}
	return &orders.PersistenceError{Op: op, Err: err}
}

func notFound(entity, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &orders.NotFoundError{Entity: entity, ID: id}
	}
	return mapErr("get "+entity, err)
}

type tx struct{ q pgx.Tx }

func lockClause(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

// ---- quotes ----

const quoteCols = `id, number, COALESCE(order_number, ''), customer_id, customer_name, sales_rep_id,
	sales_rep_name, date, status, notes, discount_amount, sub_total, tax, grand_total,
	stock_reserved, stock_deducted, cancellation_reason, completed_at, version, created_at, updated_at`

func scanQuote(row pgx.Row) (orders.Quote, error) {
	var q orders.Quote
	err := row.Scan(&q.ID, &q.Number, &q.OrderNumber, &q.CustomerID, &q.CustomerName, &q.SalesRepID,
		&q.SalesRepName, &q.Date, &q.Status, &q.Notes, &q.DiscountAmount, &q.SubTotal, &q.Tax, &q.GrandTotal,
		&q.StockReserved, &q.StockDeducted, &q.CancellationReason, &q.CompletedAt, &q.Version, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func (t *tx) GetQuote(ctx context.Context, id string, lock bool) (orders.Quote, error) {
	q, err := scanQuote(t.q.QueryRow(ctx, `SELECT `+quoteCols+` FROM quotes WHERE id=$1`+lockClause(lock), id))
	if err != nil {
		return orders.Quote{}, notFound("quote", id, err)
	}
	q.Items, err = t.items(ctx, id)
	if err != nil {
		return orders.Quote{}, err
	}
	return q, nil
}

func (t *tx) items(ctx context.Context, quoteID string) ([]orders.LineItem, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id, COALESCE(product_id, ''), product_name, width, height, pieces, price_per_sqm,
		       wastage_percent, discount_percent, total_sqm, raw_price, final_price, completed
		FROM quote_items WHERE quote_id=$1 ORDER BY position`, quoteID)
	if err != nil {
		return nil, mapErr("list items", err)
	}
	defer rows.Close()

	out := []orders.LineItem{}
	for rows.Next() {
		var it orders.LineItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.Width, &it.Height, &it.Pieces, &it.PricePerSqm,
			&it.WastagePercent, &it.DiscountPercent, &it.TotalSqm, &it.RawPrice, &it.FinalPrice, &it.Completed); err != nil {
			return nil, mapErr("scan item", err)
		}
		out = append(out, it)
	}
	return out, mapErr("list items", rows.Err())
}

func (t *tx) writeItems(ctx context.Context, quoteID string, items []orders.LineItem) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM quote_items WHERE quote_id=$1`, quoteID); err != nil {
		return mapErr("delete items", err)
	}
	if len(items) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for i, it := range items {
		b.Queue(`
			INSERT INTO quote_items(id, quote_id, position, product_id, product_name, width, height, pieces,
			                        price_per_sqm, wastage_percent, discount_percent, total_sqm, raw_price, final_price, completed)
			VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			it.ID, quoteID, i, it.ProductID, it.ProductName, it.Width, it.Height, it.Pieces,
			it.PricePerSqm, it.WastagePercent, it.DiscountPercent, it.TotalSqm, it.RawPrice, it.FinalPrice, it.Completed)
	}
	return mapErr("insert items", t.q.SendBatch(ctx, b).Close())
}

func (t *tx) InsertQuote(ctx context.Context, q orders.Quote) error {
	if q.Version == 0 {
		q.Version = 1
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO quotes(id, number, order_number, customer_id, customer_name, sales_rep_id, sales_rep_name, date,
		                   status, notes, discount_amount, sub_total, tax, grand_total, stock_reserved, stock_deducted,
		                   cancellation_reason, completed_at, version)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		q.ID, q.Number, q.OrderNumber, q.CustomerID, q.CustomerName, q.SalesRepID, q.SalesRepName, q.Date,
		q.Status, q.Notes, q.DiscountAmount, q.SubTotal, q.Tax, q.GrandTotal, q.StockReserved, q.StockDeducted,
		q.CancellationReason, q.CompletedAt, q.Version)
	if err != nil {
		return mapErr("insert quote", err)
	}
	return t.writeItems(ctx, q.ID, q.Items)
}

// UpdateQuote is guarded by the version the caller read; a mismatch means
// another writer got there first.
func (t *tx) UpdateQuote(ctx context.Context, q orders.Quote) (orders.Quote, error) {
	row := t.q.QueryRow(ctx, `
		UPDATE quotes SET order_number=NULLIF($3,''), customer_id=$4, customer_name=$5, status=$6, notes=$7,
		       discount_amount=$8, sub_total=$9, tax=$10, grand_total=$11, stock_reserved=$12, stock_deducted=$13,
		       cancellation_reason=$14, completed_at=$15, version=version+1, updated_at=now()
		WHERE id=$1 AND version=$2
		RETURNING version, created_at, updated_at`,
		q.ID, q.Version, q.OrderNumber, q.CustomerID, q.CustomerName, q.Status, q.Notes,
		q.DiscountAmount, q.SubTotal, q.Tax, q.GrandTotal, q.StockReserved, q.StockDeducted,
		q.CancellationReason, q.CompletedAt)
	if err := row.Scan(&q.Version, &q.CreatedAt, &q.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.Quote{}, &orders.ConflictError{Resource: "quote " + q.ID}
		}
		return orders.Quote{}, mapErr("update quote", err)
	}
	if err := t.writeItems(ctx, q.ID, q.Items); err != nil {
		return orders.Quote{}, err
	}
	return q, nil
}

func (t *tx) AppendApproval(ctx context.Context, l orders.ApprovalLog) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO approval_logs(id, quote_id, actor_id, actor_name, actor_role, action, from_status, to_status, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		l.ID, l.QuoteID, l.ActorID, l.ActorName, l.ActorRole, l.Action, l.From, l.To, l.Comment, l.CreatedAt)
	return mapErr("append approval", err)
}

func (t *tx) ListApprovals(ctx context.Context, quoteID string) ([]orders.ApprovalLog, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id, quote_id, actor_id, actor_name, actor_role, action, from_status, to_status, comment, created_at
		FROM approval_logs WHERE quote_id=$1 ORDER BY created_at, id`, quoteID)
	if err != nil {
		return nil, mapErr("list approvals", err)
	}
	defer rows.Close()
	var out []orders.ApprovalLog
	for rows.Next() {
		var l orders.ApprovalLog
		if err := rows.Scan(&l.ID, &l.QuoteID, &l.ActorID, &l.ActorName, &l.ActorRole, &l.Action, &l.From, &l.To, &l.Comment, &l.CreatedAt); err != nil {
			return nil, mapErr("scan approval", err)
		}
		out = append(out, l)
	}
	return out, mapErr("list approvals", rows.Err())
}

func (t *tx) NextSequence(ctx context.Context, name string) (int64, error) {
	var v int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO sequences(name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value`, name).Scan(&v)
	return v, mapErr("next sequence", err)
}

// ---- catalog ----

func (t *tx) GetCustomer(ctx context.Context, id string) (orders.Customer, error) {
	var c orders.Customer
	err := t.q.QueryRow(ctx, `
		SELECT id, name, company_name, email, phone, credit_limit, credit_hold FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.CompanyName, &c.Email, &c.Phone, &c.CreditLimit, &c.CreditHold)
	if err != nil {
		return orders.Customer{}, notFound("customer", id, err)
	}
	return c, nil
}

func (t *tx) UpsertCustomer(ctx context.Context, c orders.Customer) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO customers(id, name, company_name, email, phone, credit_limit, credit_hold)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, company_name=EXCLUDED.company_name, email=EXCLUDED.email,
		       phone=EXCLUDED.phone, credit_limit=EXCLUDED.credit_limit, credit_hold=EXCLUDED.credit_hold`,
		c.ID, c.Name, c.CompanyName, c.Email, c.Phone, c.CreditLimit, c.CreditHold)
	return mapErr("upsert customer", err)
}

const productCols = `id, sku, name, price_per_sqm, default_wastage_percent, thickness_mm,
	current_stock, reserved_stock, reorder_point, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.PricePerSqm, &p.DefaultWastagePercent, &p.ThicknessMM,
		&p.CurrentStock, &p.ReservedStock, &p.ReorderPoint, &p.UpdatedAt)
	return p, err
}

func (t *tx) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	p, err := scanProduct(t.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if err != nil {
		return orders.Product{}, notFound("product", id, err)
	}
	return p, nil
}

// FindProductByName prefers an exact case-insensitive match, then the
// alphabetically first partial match in either direction.
func (t *tx) FindProductByName(ctx context.Context, name string) (orders.Product, error) {
	p, err := scanProduct(t.q.QueryRow(ctx, `
		SELECT `+productCols+` FROM products
		WHERE lower(name) = lower($1)
		   OR ($1 <> '' AND (lower(name) LIKE '%' || lower($1) || '%' OR lower($1) LIKE '%' || lower(name) || '%'))
		ORDER BY (lower(name) = lower($1)) DESC, name
		LIMIT 1`, name))
	if err != nil {
		return orders.Product{}, notFound("product", name, err)
	}
	return p, nil
}

func (t *tx) UpsertProduct(ctx context.Context, p orders.Product) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO products(id, sku, name, price_per_sqm, default_wastage_percent, thickness_mm,
		                     current_stock, reserved_stock, reorder_point, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		ON CONFLICT (id) DO UPDATE SET sku=EXCLUDED.sku, name=EXCLUDED.name, price_per_sqm=EXCLUDED.price_per_sqm,
		       default_wastage_percent=EXCLUDED.default_wastage_percent, thickness_mm=EXCLUDED.thickness_mm,
		       reorder_point=EXCLUDED.reorder_point, updated_at=now()`,
		p.ID, p.SKU, p.Name, p.PricePerSqm, p.DefaultWastagePercent, p.ThicknessMM,
		p.CurrentStock, p.ReservedStock, p.ReorderPoint)
	return mapErr("upsert product", err)
}

// ---- stock ----

// stockUpdate runs one conditional UPDATE ... RETURNING. No row back means the
// product is missing or the condition failed; the caller decides which.
func (t *tx) stockUpdate(ctx context.Context, sql string, args ...any) (orders.Product, bool, error) {
	p, err := scanProduct(t.q.QueryRow(ctx, sql+` RETURNING `+productCols, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, false, nil
	}
	if err != nil {
		return orders.Product{}, false, mapErr("update stock", err)
	}
	return p, true, nil
}

func (t *tx) ReserveStock(ctx context.Context, productID string, sqm float64) (orders.Product, error) {
	p, ok, err := t.stockUpdate(ctx, `
		UPDATE products SET reserved_stock = ROUND(reserved_stock + $2::numeric, 3), updated_at = now()
		WHERE id=$1 AND ROUND(current_stock - reserved_stock, 3) >= ROUND($2::numeric, 3)`, productID, sqm)
	if err != nil || ok {
		return p, err
	}
	cur, err := t.GetProduct(ctx, productID)
	if err != nil {
		return orders.Product{}, err
	}
	return orders.Product{}, &orders.InsufficientStock{ProductID: productID, Available: cur.Available(), Requested: sqm}
}

func (t *tx) ReleaseStock(ctx context.Context, productID string, sqm float64) (orders.Product, error) {
	p, ok, err := t.stockUpdate(ctx, `
		UPDATE products SET reserved_stock = GREATEST(ROUND(reserved_stock - $2::numeric, 3), 0), updated_at = now()
		WHERE id=$1`, productID, sqm)
	if err == nil && !ok {
		err = &orders.NotFoundError{Entity: "product", ID: productID}
	}
	return p, err
}

func (t *tx) DeductStock(ctx context.Context, productID string, sqm float64, fromReserved bool) (orders.Product, error) {
	p, ok, err := t.stockUpdate(ctx, `
		UPDATE products SET
		    current_stock = GREATEST(ROUND(current_stock - $2::numeric, 3), 0),
		    reserved_stock = CASE WHEN $3 THEN GREATEST(ROUND(reserved_stock - $2::numeric, 3), 0) ELSE reserved_stock END,
		    updated_at = now()
		WHERE id=$1`, productID, sqm, fromReserved)
	if err == nil && !ok {
		err = &orders.NotFoundError{Entity: "product", ID: productID}
	}
	return p, err
}

func (t *tx) AdjustStock(ctx context.Context, productID string, delta float64) (orders.Product, error) {
	p, ok, err := t.stockUpdate(ctx, `
		UPDATE products SET current_stock = GREATEST(ROUND(current_stock + $2::numeric, 3), 0), updated_at = now()
		WHERE id=$1`, productID, delta)
	if err == nil && !ok {
		err = &orders.NotFoundError{Entity: "product", ID: productID}
	}
	return p, err
}

func (t *tx) InsertStockMovement(ctx context.Context, m orders.StockMovement) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO stock_movements(id, product_id, kind, delta, reference, reason, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.ProductID, m.Kind, m.Delta, m.Reference, m.Reason, m.ActorID, m.CreatedAt)
	return mapErr("insert movement", err)
}

func (t *tx) ListStockMovements(ctx context.Context, productID string) ([]orders.StockMovement, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id, product_id, kind, delta, reference, reason, actor_id, created_at
		FROM stock_movements WHERE product_id=$1 ORDER BY created_at, id`, productID)
	if err != nil {
		return nil, mapErr("list movements", err)
	}
	defer rows.Close()
	var out []orders.StockMovement
	for rows.Next() {
		var m orders.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Kind, &m.Delta, &m.Reference, &m.Reason, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, mapErr("scan movement", err)
		}
		out = append(out, m)
	}
	return out, mapErr("list movements", rows.Err())
}

// ---- ledger ----

const invoiceCols = `id, number, quote_id, order_number, customer_id, type, status, total_amount,
	amount_paid, balance_due, issued_at, due_date, notes, void_reason`

func scanInvoice(row pgx.Row) (orders.Invoice, error) {
	var inv orders.Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.QuoteID, &inv.OrderNumber, &inv.CustomerID, &inv.Type, &inv.Status,
		&inv.TotalAmount, &inv.AmountPaid, &inv.BalanceDue, &inv.IssuedAt, &inv.DueDate, &inv.Notes, &inv.VoidReason)
	return inv, err
}

func (t *tx) GetInvoice(ctx context.Context, id string, lock bool) (orders.Invoice, error) {
	inv, err := scanInvoice(t.q.QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id=$1`+lockClause(lock), id))
	if err != nil {
		return orders.Invoice{}, notFound("invoice", id, err)
	}
	return inv, nil
}

func (t *tx) listInvoices(ctx context.Context, where string, args ...any) ([]orders.Invoice, error) {
	rows, err := t.q.Query(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE `+where+` ORDER BY issued_at, number`, args...)
	if err != nil {
		return nil, mapErr("list invoices", err)
	}
	defer rows.Close()
	var out []orders.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, mapErr("scan invoice", err)
		}
		out = append(out, inv)
	}
	return out, mapErr("list invoices", rows.Err())
}

func (t *tx) ListInvoicesByQuote(ctx context.Context, quoteID string) ([]orders.Invoice, error) {
	return t.listInvoices(ctx, `quote_id=$1`, quoteID)
}

func (t *tx) ListOpenInvoicesByCustomer(ctx context.Context, customerID string) ([]orders.Invoice, error) {
	return t.listInvoices(ctx, `customer_id=$1 AND status IN ($2,$3,$4)`, customerID,
		orders.InvoiceIssued, orders.InvoicePartiallyPaid, orders.InvoiceOverdue)
}

func (t *tx) InsertInvoice(ctx context.Context, inv orders.Invoice) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO invoices(`+invoiceCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		inv.ID, inv.Number, inv.QuoteID, inv.OrderNumber, inv.CustomerID, inv.Type, inv.Status,
		inv.TotalAmount, inv.AmountPaid, inv.BalanceDue, inv.IssuedAt, inv.DueDate, inv.Notes, inv.VoidReason)
	return mapErr("insert invoice", err)
}

func (t *tx) UpdateInvoice(ctx context.Context, inv orders.Invoice) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE invoices SET status=$2, amount_paid=$3, balance_due=$4, due_date=$5, notes=$6, void_reason=$7
		WHERE id=$1`,
		inv.ID, inv.Status, inv.AmountPaid, inv.BalanceDue, inv.DueDate, inv.Notes, inv.VoidReason)
	if err != nil {
		return mapErr("update invoice", err)
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Entity: "invoice", ID: inv.ID}
	}
	return nil
}

func (t *tx) InsertPayment(ctx context.Context, p orders.Payment) (bool, error) {
	ct, err := t.q.Exec(ctx, `
		INSERT INTO payments(id, invoice_id, quote_id, amount, method, reference, paid_at, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.InvoiceID, p.QuoteID, p.Amount, p.Method, p.Reference, p.PaidAt, p.RecordedBy)
	if err != nil {
		return false, mapErr("insert payment", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (t *tx) GetPayment(ctx context.Context, id string) (orders.Payment, error) {
	var p orders.Payment
	err := t.q.QueryRow(ctx, `
		SELECT id, invoice_id, quote_id, amount, method, reference, paid_at, recorded_by
		FROM payments WHERE id=$1`, id).
		Scan(&p.ID, &p.InvoiceID, &p.QuoteID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &p.RecordedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Payment{}, &orders.NotFoundError{Entity: "payment", ID: id}
	}
	return p, mapErr("get payment", err)
}

func (t *tx) SumPayments(ctx context.Context, invoiceID string) (float64, int, error) {
	var sum float64
	var n int
	err := t.q.QueryRow(ctx, `
		SELECT ROUND(COALESCE(SUM(amount), 0), 2), COUNT(*) FROM payments WHERE invoice_id=$1`, invoiceID).Scan(&sum, &n)
	return sum, n, mapErr("sum payments", err)
}

func (t *tx) ListPayments(ctx context.Context, invoiceID string) ([]orders.Payment, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id, invoice_id, quote_id, amount, method, reference, paid_at, recorded_by
		FROM payments WHERE invoice_id=$1 ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, mapErr("list payments", err)
	}
	defer rows.Close()
	var out []orders.Payment
	for rows.Next() {
		var p orders.Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.QuoteID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &p.RecordedBy); err != nil {
			return nil, mapErr("scan payment", err)
		}
		out = append(out, p)
	}
	return out, mapErr("list payments", rows.Err())
}

func (t *tx) MarkOverdue(ctx context.Context, today time.Time) ([]string, error) {
	rows, err := t.q.Query(ctx, `
		UPDATE invoices SET status=$1
		WHERE status IN ($2,$3) AND (due_date AT TIME ZONE 'UTC')::date < $4::date
		RETURNING id`,
		orders.InvoiceOverdue, orders.InvoiceIssued, orders.InvoicePartiallyPaid, today.UTC().Format(time.DateOnly))
	if err != nil {
		return nil, mapErr("mark overdue", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapErr("mark overdue", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// ---- settings ----

func (t *tx) GetSetting(ctx context.Context, key string) (orders.Setting, bool, error) {
	var s orders.Setting
	err := t.q.QueryRow(ctx, `SELECT key, value, updated_at, updated_by FROM app_settings WHERE key=$1`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedAt, &s.UpdatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Setting{}, false, nil
	}
	if err != nil {
		return orders.Setting{}, false, mapErr("get setting", err)
	}
	return s, true, nil
}

func (t *tx) PutSetting(ctx context.Context, s orders.Setting) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO app_settings(key, value, updated_at, updated_by) VALUES ($1,$2,$3,$4)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at, updated_by=EXCLUDED.updated_by`,
		s.Key, s.Value, s.UpdatedAt, s.UpdatedBy)
	return mapErr("put setting", err)
}

// ---- audit ----

func (s *Store) InsertAudit(ctx context.Context, r orders.AuditRecord) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO audit_logs(id, actor_id, actor_name, action, entity_type, entity_id, old_value, new_value, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.ActorID, r.ActorName, r.Action, r.EntityType, r.EntityID, r.OldValue, r.NewValue, r.Reason, r.CreatedAt)
	return mapErr("insert audit", err)
}

func (s *Store) ListAudit(ctx context.Context, entityType, entityID string) ([]orders.AuditRecord, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, actor_id, actor_name, action, entity_type, entity_id, old_value, new_value, reason, created_at
		FROM audit_logs
		WHERE ($1 = '' OR entity_type=$1) AND ($2 = '' OR entity_id=$2)
		ORDER BY created_at, id`, entityType, entityID)
	if err != nil {
		return nil, mapErr("list audit", err)
	}
	defer rows.Close()
	var out []orders.AuditRecord
	for rows.Next() {
		var r orders.AuditRecord
		if err := rows.Scan(&r.ID, &r.ActorID, &r.ActorName, &r.Action, &r.EntityType, &r.EntityID,
			&r.OldValue, &r.NewValue, &r.Reason, &r.CreatedAt); err != nil {
			return nil, mapErr("scan audit", err)
		}
		out = append(out, r)
	}
	return out, mapErr("list audit", rows.Err())
}

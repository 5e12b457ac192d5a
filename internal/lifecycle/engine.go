// Package lifecycle drives a quote from DRAFT to COMPLETED. Each transition
// is decided by the table in package orders, guarded against customer,
// invoice and stock state, and applied in a single unit of work together
// with its approval log entry.
package lifecycle

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/audit"
	"github.com/ariefcatur/stonefab-orders/internal/inventory"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

// StatusCache is told about every committed quote state.
type StatusCache interface {
	Put(ctx context.Context, q orders.Quote) error
}

type Engine struct {
	store  orders.Store
	stock  *inventory.Service
	audit  audit.Sink
	events orders.EventSink
	cache  StatusCache
	log    *zap.Logger
	now    func() time.Time

	// depositThresholdPct is the fallback when the setting row is absent.
	// 0 means any paid deposit unlocks ACCEPT.
	depositThresholdPct float64
}

type Option func(*Engine)

func WithAudit(s audit.Sink) Option         { return func(e *Engine) { e.audit = s } }
func WithEvents(s orders.EventSink) Option  { return func(e *Engine) { e.events = s } }
func WithStatusCache(c StatusCache) Option  { return func(e *Engine) { e.cache = c } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithDepositThreshold(pct float64) Option {
	return func(e *Engine) { e.depositThresholdPct = pct }
}

func New(store orders.Store, stock *inventory.Service, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		stock:  stock,
		audit:  audit.Nop{},
		events: orders.NopEvents{},
		log:    log,
		now:    time.Now,
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) clock() time.Time { return e.now().UTC() }

func (e *Engine) Get(ctx context.Context, quoteID string) (orders.Quote, error) {
	var q orders.Quote
	err := e.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		q, err = tx.GetQuote(ctx, quoteID, false)
		return err
	})
	return q, err
}

// History returns the approval log of a quote, oldest first.
func (e *Engine) History(ctx context.Context, quoteID string) ([]orders.ApprovalLog, error) {
	var out []orders.ApprovalLog
	err := e.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.GetQuote(ctx, quoteID, false); err != nil {
			return err
		}
		var err error
		out, err = tx.ListApprovals(ctx, quoteID)
		return err
	})
	return out, err
}

// depositThreshold reads the runtime setting, falling back to the configured value.
func (e *Engine) depositThreshold(ctx context.Context, tx orders.SettingsTx) float64 {
	s, ok, err := tx.GetSetting(ctx, orders.SettingDepositThresholdPct)
	if err != nil || !ok {
		return e.depositThresholdPct
	}
	v, err := strconv.ParseFloat(s.Value, 64)
	if err != nil || v < 0 || v > 100 {
		e.log.Warn("ignoring bad deposit threshold setting", zap.String("value", s.Value))
		return e.depositThresholdPct
	}
	return v
}

// committed runs the post-commit fan-out. None of it can fail the caller.
func (e *Engine) committed(ctx context.Context, q orders.Quote, rec orders.AuditRecord) {
	e.audit.Record(ctx, rec)
	if e.cache != nil {
		if err := e.cache.Put(ctx, q); err != nil {
			e.log.Warn("status cache write failed", zap.String("quote_id", q.ID), zap.Error(err))
		}
	}
}

package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/inventory"
	"github.com/ariefcatur/stonefab-orders/internal/ledger"
	"github.com/ariefcatur/stonefab-orders/internal/lifecycle"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
	"github.com/ariefcatur/stonefab-orders/internal/redisx"
	"github.com/ariefcatur/stonefab-orders/internal/settings"
)

const reqTimeout = 5 * time.Second

// StatusCache is the read side of the quote status cache.
type StatusCache interface {
	Get(ctx context.Context, quoteID string) (redisx.CachedStatus, bool, error)
	Put(ctx context.Context, q orders.Quote) error
}

// Idempotency binds a client key to the first invoice it was used on.
type Idempotency interface {
	Claim(ctx context.Context, key, value string) (bound string, fresh bool, err error)
}

type API struct {
	Engine   *lifecycle.Engine
	Ledger   *ledger.Ledger
	Stock    *inventory.Service
	Settings *settings.Service
	Audit    orders.AuditStore
	Cache    StatusCache // optional
	Idem     Idempotency // optional
	Log      *zap.Logger
}

func (a *API) Register(r chi.Router) {
	if a.Log == nil {
		a.Log = zap.NewNop()
	}
	r.Post("/quotes", a.createQuote)
	r.Get("/quotes/{id}", a.getQuote)
	r.Patch("/quotes/{id}", a.editQuote)
	r.Post("/quotes/{id}/extracted-items", a.mergeExtracted)
	r.Post("/quotes/{id}/items/{itemID}/toggle", a.toggleItem)
	r.Post("/quotes/{id}/transitions", a.transition)
	r.Get("/quotes/{id}/status", a.quoteStatus)
	r.Get("/quotes/{id}/history", a.history)
	r.Get("/quotes/{id}/audit", a.auditTrail)

	r.Post("/quotes/{id}/invoices", a.issueInvoice)
	r.Get("/quotes/{id}/invoices", a.listInvoices)
	r.Get("/quotes/{id}/finance", a.financeSummary)
	r.Post("/invoices/{id}/payments", a.recordPayment)
	r.Get("/invoices/{id}/payments", a.listPayments)
	r.Post("/invoices/{id}/void", a.voidInvoice)
	r.Post("/finance/overdue-sweep", a.sweepOverdue)
	r.Get("/customers/{id}/debt", a.customerDebt)

	r.Get("/products/{id}/stock", a.stockLevel)
	r.Get("/products/{id}/movements", a.stockMovements)
	r.Post("/products/{id}/stock-adjustments", a.adjustStock)
	r.Get("/settings/{key}", a.getSetting)
	r.Put("/settings/{key}", a.putSetting)
}

type lineReq struct {
	ID              string   `json:"id,omitempty"`
	ProductID       string   `json:"product_id,omitempty"`
	ProductName     string   `json:"product_name,omitempty"`
	Width           float64  `json:"width" validate:"gte=0"`
	Height          float64  `json:"height" validate:"gte=0"`
	Pieces          float64  `json:"pieces" validate:"gte=0"`
	PricePerSqm     *float64 `json:"price_per_sqm,omitempty" validate:"omitempty,gte=0"`
	WastagePercent  *float64 `json:"wastage_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	DiscountPercent float64  `json:"discount_percent" validate:"gte=0,lte=100"`
}

func (l lineReq) input() lifecycle.LineInput {
	return lifecycle.LineInput{
		ID:              l.ID,
		ProductID:       l.ProductID,
		ProductName:     l.ProductName,
		Width:           l.Width,
		Height:          l.Height,
		Pieces:          l.Pieces,
		PricePerSqm:     l.PricePerSqm,
		WastagePercent:  l.WastagePercent,
		DiscountPercent: l.DiscountPercent,
	}
}

func inputs(ls []lineReq) []lifecycle.LineInput {
	out := make([]lifecycle.LineInput, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.input())
	}
	return out
}

type CreateQuoteReq struct {
	CustomerID     string    `json:"customer_id" validate:"required"`
	Notes          string    `json:"notes,omitempty"`
	DiscountAmount float64   `json:"discount_amount" validate:"gte=0"`
	Items          []lineReq `json:"items" validate:"dive"`
}

func (a *API) createQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req CreateQuoteReq
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	q, err := a.Engine.CreateQuote(ctx, actor, lifecycle.NewQuote{
		CustomerID:     req.CustomerID,
		Notes:          req.Notes,
		DiscountAmount: req.DiscountAmount,
		Items:          inputs(req.Items),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (a *API) getQuote(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	q, err := a.Engine.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type EditQuoteReq struct {
	CustomerID      *string    `json:"customer_id,omitempty" validate:"omitempty,min=1"`
	Notes           *string    `json:"notes,omitempty"`
	DiscountAmount  *float64   `json:"discount_amount,omitempty" validate:"omitempty,gte=0"`
	Items           *[]lineReq `json:"items,omitempty"`
	ExpectedVersion int        `json:"expected_version" validate:"gte=0"`
}

func (a *API) editQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req EditQuoteReq
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	edit := lifecycle.QuoteEdit{
		CustomerID:      req.CustomerID,
		Notes:           req.Notes,
		DiscountAmount:  req.DiscountAmount,
		ExpectedVersion: req.ExpectedVersion,
	}
	if req.Items != nil {
		items := inputs(*req.Items)
		edit.Items = &items
	}

	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	res, err := a.Engine.EditQuote(ctx, actor, chi.URLParam(r, "id"), edit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	// refused edits are not errors; the body says applied=false
	writeJSON(w, http.StatusOK, res)
}

type MergeExtractedReq struct {
	Items []lifecycle.ExtractedItem `json:"items" validate:"required,min=1"`
}

func (a *API) mergeExtracted(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req MergeExtractedReq
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	res, err := a.Engine.MergeExtractedItems(ctx, actor, chi.URLParam(r, "id"), req.Items)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) toggleItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	q, err := a.Engine.ToggleItemCompleted(ctx, actor, chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type TransitionReq struct {
	Action  orders.Action `json:"action" validate:"required"`
	Comment string        `json:"comment,omitempty"`
}

func (a *API) transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req TransitionReq
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	q, err := a.Engine.Transition(ctx, chi.URLParam(r, "id"), req.Action, actor, req.Comment)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// quoteStatus serves from the cache and falls back to the DB on a miss.
func (a *API) quoteStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	if a.Cache != nil {
		cs, hit, err := a.Cache.Get(ctx, id)
		if err != nil {
			a.Log.Warn("status cache read failed", zap.String("quote_id", id), zap.Error(err))
		}
		if hit {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, cs)
			return
		}
	}

	q, err := a.Engine.Get(ctx, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.Cache != nil {
		// isi ulang cache, kegagalan cukup di-log
		if err := a.Cache.Put(ctx, q); err != nil {
			a.Log.Warn("status cache write failed", zap.String("quote_id", id), zap.Error(err))
		}
	}
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, redisx.CachedStatus{QuoteID: q.ID, Status: q.Status, OrderNumber: q.OrderNumber, Version: q.Version})
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	logs, err := a.Engine.History(ctx, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (a *API) auditTrail(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	if err := orders.Require(actor.Role, orders.PermViewAudit); err != nil {
		a.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	recs, err := a.Audit.ListAudit(ctx, orders.EntityQuote, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/ledger"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

type IssueInvoiceReq struct {
	Type             orders.InvoiceType `json:"type" validate:"required"`
	Percentage       float64            `json:"percentage" validate:"gte=0,lte=100"`
	PaymentTermsDays int                `json:"payment_terms_days" validate:"gte=0"`
	Notes            string             `json:"notes,omitempty"`
}

func (a *API) issueInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req IssueInvoiceReq
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	inv, err := a.Ledger.IssueInvoice(ctx, actor, ledger.IssueRequest{
		QuoteID:          chi.URLParam(r, "id"),
		Type:             req.Type,
		Percentage:       req.Percentage,
		PaymentTermsDays: req.PaymentTermsDays,
		Notes:            req.Notes,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (a *API) summary(w http.ResponseWriter, r *http.Request) (ledger.Summary, bool) {
	actor, ok := a.actor(w, r)
	if !ok {
		return ledger.Summary{}, false
	}
	if err := orders.Require(actor.Role, orders.PermViewFinance); err != nil {
		a.writeError(w, r, err)
		return ledger.Summary{}, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	s, err := a.Ledger.Summary(ctx, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return ledger.Summary{}, false
	}
	return s, true
}

func (a *API) listInvoices(w http.ResponseWriter, r *http.Request) {
	if s, ok := a.summary(w, r); ok {
		writeJSON(w, http.StatusOK, s.Invoices)
	}
}

func (a *API) financeSummary(w http.ResponseWriter, r *http.Request) {
	if s, ok := a.summary(w, r); ok {
		writeJSON(w, http.StatusOK, s)
	}
}

type RecordPaymentReq struct {
	Amount    float64              `json:"amount" validate:"gt=0"`
	Method    orders.PaymentMethod `json:"method" validate:"required"`
	Reference string               `json:"reference,omitempty"`
	PaidAt    time.Time            `json:"paid_at"`
}

// paymentID derives a stable payment id from the client's Idempotency-Key so
// a retried request lands on the same payment row even without Redis.
func paymentID(invoiceID, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("stonefab:payment:"+invoiceID+":"+key)).String()
}

func (a *API) recordPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req RecordPaymentReq
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	invoiceID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	in := ledger.PaymentInput{
		InvoiceID: invoiceID,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
		PaidAt:    req.PaidAt,
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		in.ID = paymentID(invoiceID, key)
		if a.Idem != nil {
			bound, _, err := a.Idem.Claim(ctx, key, invoiceID)
			switch {
			case err != nil:
				// DB tetap jadi kebenaran, id pembayaran sudah deterministik
				a.Log.Warn("idempotency claim failed", zap.String("key", key), zap.Error(err))
			case bound != invoiceID:
				a.writeError(w, r, &orders.ConflictError{Resource: "idempotency key " + key})
				return
			}
		}
	}

	res, err := a.Ledger.RecordPayment(ctx, actor, in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	code := http.StatusCreated
	if res.Replay {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

func (a *API) listPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	if err := orders.Require(actor.Role, orders.PermViewFinance); err != nil {
		a.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	ps, err := a.Ledger.Payments(ctx, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

type VoidInvoiceReq struct {
	Reason string `json:"reason" validate:"required"`
}

func (a *API) voidInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req VoidInvoiceReq
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	inv, err := a.Ledger.VoidInvoice(ctx, actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *API) sweepOverdue(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	ids, err := a.Ledger.SweepOverdue(ctx, actor)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked_overdue": ids})
}

func (a *API) customerDebt(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	if err := orders.Require(actor.Role, orders.PermViewFinance); err != nil {
		a.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	debt, err := a.Ledger.OutstandingDebt(ctx, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer_id": id, "outstanding_debt": debt})
}

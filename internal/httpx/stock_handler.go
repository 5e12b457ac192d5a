package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/stonefab-orders/internal/inventory"
)

func (a *API) stockLevel(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	lvl, err := a.Stock.Level(ctx, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lvl)
}

func (a *API) stockMovements(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	ms, err := a.Stock.Movements(ctx, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

type AdjustStockReq struct {
	Delta       float64 `json:"delta" validate:"required"`
	Reason      string  `json:"reason" validate:"required"`
	Reference   string  `json:"reference,omitempty"`
	Procurement bool    `json:"procurement,omitempty"`
}

func (a *API) adjustStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req AdjustStockReq
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	lvl, err := a.Stock.ManualAdjust(ctx, actor, inventory.Adjustment{
		ProductID:   chi.URLParam(r, "id"),
		Delta:       req.Delta,
		Reason:      req.Reason,
		Reference:   req.Reference,
		Procurement: req.Procurement,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lvl)
}

func (a *API) getSetting(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	s, err := a.Settings.Get(ctx, chi.URLParam(r, "key"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type PutSettingReq struct {
	Value string `json:"value" validate:"required"`
}

func (a *API) putSetting(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req PutSettingReq
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reqTimeout)
	defer cancel()

	s, err := a.Settings.Set(ctx, actor, chi.URLParam(r, "key"), req.Value)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Package inventory guards on-hand and reserved square metres per product.
// Every mutation is one conditional update in the store plus a movement row.
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/audit"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

type Service struct {
	Store  orders.Store
	Audit  audit.Sink
	Events orders.EventSink
	Log    *zap.Logger
	Now    func() time.Time
}

func New(store orders.Store, sink audit.Sink, events orders.EventSink, log *zap.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if events == nil {
		events = orders.NopEvents{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Store: store, Audit: sink, Events: events, Log: log, Now: time.Now}
}

func (s *Service) now() time.Time { return s.Now().UTC() }

// Level is the current stock picture of one product.
type Level struct {
	ProductID    string  `json:"product_id"`
	CurrentStock float64 `json:"current_stock"`
	Reserved     float64 `json:"reserved_stock"`
	Available    float64 `json:"available"`
	ReorderPoint float64 `json:"reorder_point"`
	NeedsReorder bool    `json:"needs_reorder"`
}

func levelOf(p orders.Product) Level {
	return Level{
		ProductID:    p.ID,
		CurrentStock: p.CurrentStock,
		Reserved:     p.ReservedStock,
		Available:    p.Available(),
		ReorderPoint: p.ReorderPoint,
		NeedsReorder: p.NeedsReorder(),
	}
}

func (s *Service) Level(ctx context.Context, productID string) (Level, error) {
	var out Level
	err := s.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		out = levelOf(p)
		return nil
	})
	return out, err
}

func (s *Service) Movements(ctx context.Context, productID string) ([]orders.StockMovement, error) {
	var out []orders.StockMovement
	err := s.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		out, err = tx.ListStockMovements(ctx, productID)
		return err
	})
	return out, err
}

func positive(field string, v float64) error {
	if v <= 0 {
		return &orders.ValidationError{Field: field, Message: "must be greater than zero"}
	}
	return nil
}

// ---- unit-of-work scoped ----

func (s *Service) move(ctx context.Context, tx orders.StockTx, productID string, kind orders.MovementKind, delta float64, ref, reason, actorID string) error {
	return tx.InsertStockMovement(ctx, orders.StockMovement{
		ID:        uuid.NewString(),
		ProductID: productID,
		Kind:      kind,
		Delta:     delta,
		Reference: ref,
		Reason:    reason,
		ActorID:   actorID,
		CreatedAt: s.now(),
	})
}

// ReserveIn reserves sqm of one product inside the caller's unit of work.
func (s *Service) ReserveIn(ctx context.Context, tx orders.StockTx, productID string, sqm float64, ref, actorID string) (orders.Product, error) {
	if err := positive("sqm", sqm); err != nil {
		return orders.Product{}, err
	}
	p, err := tx.ReserveStock(ctx, productID, sqm)
	if err != nil {
		return orders.Product{}, err
	}
	return p, s.move(ctx, tx, productID, orders.MoveReserve, sqm, ref, "", actorID)
}

// ReserveLines reserves every product on the quote, aggregated per product.
// The first shortage aborts; the caller's rollback undoes earlier reservations.
func (s *Service) ReserveLines(ctx context.Context, tx orders.StockTx, q orders.Quote, actorID string) error {
	ids, need := q.SqmByProduct()
	for _, id := range ids {
		if _, err := s.ReserveIn(ctx, tx, id, need[id], q.ID, actorID); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseLines gives back what ReserveLines took.
func (s *Service) ReleaseLines(ctx context.Context, tx orders.StockTx, q orders.Quote, actorID string) error {
	ids, need := q.SqmByProduct()
	for _, id := range ids {
		if _, err := tx.ReleaseStock(ctx, id, need[id]); err != nil {
			return err
		}
		if err := s.move(ctx, tx, id, orders.MoveRelease, -need[id], q.ID, "", actorID); err != nil {
			return err
		}
	}
	return nil
}

// DeductLines removes the quote's material from on-hand. With fromReserved the
// reservation is consumed in the same update.
func (s *Service) DeductLines(ctx context.Context, tx orders.StockTx, q orders.Quote, fromReserved bool, actorID string) error {
	ids, need := q.SqmByProduct()
	for _, id := range ids {
		if _, err := tx.DeductStock(ctx, id, need[id], fromReserved); err != nil {
			return err
		}
		if err := s.move(ctx, tx, id, orders.MoveDeduct, -need[id], q.ID, "", actorID); err != nil {
			return err
		}
	}
	return nil
}

// ---- standalone ----

func (s *Service) Reserve(ctx context.Context, productID string, sqm float64, ref string) (Level, error) {
	var out Level
	err := s.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := s.ReserveIn(ctx, tx, productID, sqm, ref, "")
		out = levelOf(p)
		return err
	})
	return out, err
}

func (s *Service) Release(ctx context.Context, productID string, sqm float64, ref string) (Level, error) {
	if err := positive("sqm", sqm); err != nil {
		return Level{}, err
	}
	var out Level
	err := s.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := tx.ReleaseStock(ctx, productID, sqm)
		if err != nil {
			return err
		}
		out = levelOf(p)
		return s.move(ctx, tx, productID, orders.MoveRelease, -sqm, ref, "", "")
	})
	return out, err
}

// ConvertToDeduction decrements on-hand and reserved together.
func (s *Service) ConvertToDeduction(ctx context.Context, productID string, sqm float64, ref string) (Level, error) {
	if err := positive("sqm", sqm); err != nil {
		return Level{}, err
	}
	var out Level
	err := s.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := tx.DeductStock(ctx, productID, sqm, true)
		if err != nil {
			return err
		}
		out = levelOf(p)
		return s.move(ctx, tx, productID, orders.MoveDeduct, -sqm, ref, "", "")
	})
	return out, err
}

type Adjustment struct {
	ProductID   string  `json:"product_id" validate:"required"`
	Delta       float64 `json:"delta" validate:"required"`
	Reason      string  `json:"reason" validate:"required"`
	Reference   string  `json:"reference,omitempty"`
	Procurement bool    `json:"procurement,omitempty"`
}

// ManualAdjust changes on-hand stock outside any order: procurement receipts,
// stock counts, damage write-offs. The reason is mandatory.
func (s *Service) ManualAdjust(ctx context.Context, actor orders.Actor, in Adjustment) (Level, error) {
	if err := actor.Validate(); err != nil {
		return Level{}, err
	}
	if err := orders.Require(actor.Role, orders.PermAdjustStock); err != nil {
		return Level{}, err
	}
	if strings.TrimSpace(in.Reason) == "" {
		return Level{}, &orders.ValidationError{Field: "reason", Message: "required"}
	}
	if in.Delta == 0 {
		return Level{}, &orders.ValidationError{Field: "delta", Message: "must not be zero"}
	}
	kind := orders.MoveAdjust
	if in.Procurement {
		if in.Delta < 0 {
			return Level{}, &orders.ValidationError{Field: "delta", Message: "procurement must add stock"}
		}
		kind = orders.MoveProcurement
	}

	var before, after orders.Product
	err := s.Store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		if before, err = tx.GetProduct(ctx, in.ProductID); err != nil {
			return err
		}
		if after, err = tx.AdjustStock(ctx, in.ProductID, in.Delta); err != nil {
			return err
		}
		return s.move(ctx, tx, in.ProductID, kind, in.Delta, in.Reference, in.Reason, actor.ID)
	})
	if err != nil {
		return Level{}, fmt.Errorf("adjust stock %s: %w", in.ProductID, err)
	}

	rec := audit.Entry(actor, "STOCK_"+string(kind), orders.EntityProduct, in.ProductID)
	rec.Reason = in.Reason
	s.Audit.Record(ctx, audit.Diff(rec,
		map[string]float64{"current_stock": before.CurrentStock},
		map[string]float64{"current_stock": after.CurrentStock}))
	s.Events.Emit(ctx, orders.EventStockAdjusted, in.ProductID, orders.StockAdjustedPayload{
		ProductID:     in.ProductID,
		Kind:          kind,
		Delta:         in.Delta,
		CurrentStock:  after.CurrentStock,
		ReservedStock: after.ReservedStock,
		NeedsReorder:  after.NeedsReorder(),
	})
	if after.NeedsReorder() {
		s.Log.Info("product at or below reorder point",
			zap.String("product_id", after.ID), zap.Float64("available", after.Available()))
	}
	return levelOf(after), nil
}

// Package audit is the append-only trail of who changed what. Recording is
// best effort: a failed write is logged and never reaches the caller.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

// Sink accepts audit records. Record must not block for long or panic.
type Sink interface {
	Record(ctx context.Context, r orders.AuditRecord)
}

// Entry builds a record stamped with a fresh id and the current time.
func Entry(actor orders.Actor, action, entityType, entityID string) orders.AuditRecord {
	return orders.AuditRecord{
		ID:         uuid.NewString(),
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  time.Now().UTC(),
	}
}

// Diff fills OldValue and NewValue with the JSON form of before and after.
func Diff(r orders.AuditRecord, before, after any) orders.AuditRecord {
	if before != nil {
		if b, err := json.Marshal(before); err == nil {
			r.OldValue = string(b)
		}
	}
	if after != nil {
		if b, err := json.Marshal(after); err == nil {
			r.NewValue = string(b)
		}
	}
	return r
}

type Nop struct{}

func (Nop) Record(context.Context, orders.AuditRecord) {}

// LogSink writes records to the structured log only.
type LogSink struct{ Log *zap.Logger }

func (s LogSink) Record(_ context.Context, r orders.AuditRecord) {
	s.Log.Info("audit",
		zap.String("audit_id", r.ID),
		zap.String("actor_id", r.ActorID),
		zap.String("action", r.Action),
		zap.String("entity_type", r.EntityType),
		zap.String("entity_id", r.EntityID),
		zap.String("reason", r.Reason),
	)
}

// StoreSink writes straight to an AuditStore with a short deadline.
type StoreSink struct {
	Store   orders.AuditStore
	Log     *zap.Logger
	Timeout time.Duration
}

func (s StoreSink) Record(ctx context.Context, r orders.AuditRecord) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.Store.InsertAudit(ctx, r); err != nil && s.Log != nil {
		s.Log.Warn("audit write failed", zap.String("audit_id", r.ID), zap.String("action", r.Action), zap.Error(err))
	}
}

// Multi fans a record out to several sinks.
type Multi []Sink

func (m Multi) Record(ctx context.Context, r orders.AuditRecord) {
	for _, s := range m {
		s.Record(ctx, r)
	}
}

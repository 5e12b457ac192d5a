package audit

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/stonefab-orders/internal/kafka"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

// Publisher is the non-blocking subset of kafkax.Producer used for audit.
type Publisher interface {
	TryPublish(topic string, key, value []byte, headers ...kafkago.Header) bool
}

// KafkaSink ships records to the audit topic; the worker persists them.
// When the producer inbox is full the record goes to the fallback instead.
type KafkaSink struct {
	P        Publisher
	Service  string
	Fallback Sink
	Log      *zap.Logger
}

func (s KafkaSink) Record(ctx context.Context, r orders.AuditRecord) {
	env := kafkax.NewEnvelope(orders.EventAuditRecorded, s.Service, r.EntityID, r)
	ok := s.P.TryPublish(orders.TopicAudit, orders.PartitionKey(r.EntityID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventAuditRecorded)},
	)
	if ok {
		return
	}
	if s.Log != nil {
		s.Log.Warn("audit inbox full", zap.String("audit_id", r.ID))
	}
	if s.Fallback != nil {
		s.Fallback.Record(ctx, r)
	}
}

// Deduper remembers processed event ids per scope.
type Deduper interface {
	Seen(ctx context.Context, scope, id string) (bool, error)
	Mark(ctx context.Context, scope, id string) error
}

// Consumer persists audit events read from Kafka.
type Consumer struct {
	Store orders.AuditStore
	Dedup Deduper
	Log   *zap.Logger
}

// Handle is a kafkax.Handler.
func (c *Consumer) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message, commit and move on
		c.Log.Warn("audit: bad envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventAuditRecorded {
		return nil
	}
	if c.Dedup != nil {
		if seen, _ := c.Dedup.Seen(ctx, "audit", env.EventID); seen {
			return nil
		}
	}
	rec, err := kafkax.UnwrapPayload[orders.AuditRecord](env.Payload)
	if err != nil {
		c.Log.Warn("audit: bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	// InsertAudit is idempotent on record id; dedup only saves the round trip.
	if err := c.Store.InsertAudit(ctx, rec); err != nil {
		return fmt.Errorf("persist audit %s: %w", rec.ID, err)
	}
	if c.Dedup != nil {
		if err := c.Dedup.Mark(ctx, "audit", env.EventID); err != nil {
			c.Log.Debug("audit: dedup mark failed", zap.String("event_id", env.EventID), zap.Error(err))
		}
	}
	return nil
}

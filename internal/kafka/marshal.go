package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

const envelopeVersion = 1

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func UnmarshalEnvelope(b []byte, out *orders.Envelope) error {
	return json.Unmarshal(b, out)
}

// UnwrapPayload decodes the event specific payload.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

func NewEnvelope(eventType, producer, correlationID string, payload any) orders.Envelope {
	return orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       MustMarshal(payload),
	}
}

func headers(eventType string) []kafka.Header {
	return []kafka.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte(strconv.Itoa(envelopeVersion))},
	}
}

type traceKey struct{}

// WithTrace stores a request id that Emitter copies into envelopes.
func WithTrace(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceFrom(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}

// Emitter implements orders.EventSink over a Producer.
type Emitter struct {
	P       *Producer
	Service string
	Log     *zap.Logger
}

func (e *Emitter) Emit(ctx context.Context, eventType, correlationID string, payload any) {
	env := NewEnvelope(eventType, e.Service, correlationID, payload)
	env.TraceID = traceFrom(ctx)
	ok := e.P.TryPublish(orders.TopicFor(eventType), orders.PartitionKey(correlationID), MustMarshal(env), headers(eventType)...)
	if !ok && e.Log != nil {
		e.Log.Warn("event dropped", zap.String("event_type", eventType), zap.String("correlation_id", correlationID))
	}
}

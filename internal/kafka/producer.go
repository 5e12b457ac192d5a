package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer owns one async writer fed by a buffered inbox. The topic is carried
// on each message so a single writer serves every stonefab topic.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, buf int, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Warn("kafka write failed", zap.Int("messages", len(msgs)), zap.Error(err))
				}
			},
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log,
	}
}

// newProducerWithWriter is used by tests that swap the transport.
func newProducerWithWriter(w *kafka.Writer, buf int) *Producer {
	return &Producer{w: w, inbox: make(chan kafka.Message, buf), closeCh: make(chan struct{}), log: zap.NewNop()}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				// flush what is already queued, then stop
				for {
					select {
					case m, ok := <-p.inbox:
						if !ok {
							p.shutdown()
							return
						}
						p.write(m)
					default:
						p.shutdown()
						return
					}
				}
			case m, ok := <-p.inbox:
				if !ok {
					p.shutdown()
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Warn("kafka publish failed", zap.String("topic", m.Topic), zap.Error(err))
	}
}

func (p *Producer) shutdown() {
	if err := p.w.Close(); err != nil {
		p.log.Warn("kafka writer close", zap.Error(err))
	}
}

// Publish queues a message and blocks while the inbox is full.
func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	p.inbox <- message(topic, key, value, headers)
}

// TryPublish never blocks; it reports false when the message was dropped.
func (p *Producer) TryPublish(topic string, key, value []byte, headers ...kafka.Header) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.inbox <- message(topic, key, value, headers):
		return true
	default:
		return false
	}
}

func message(topic string, key, value []byte, headers []kafka.Header) kafka.Message {
	return kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// Close stops accepting messages; the loop flushes the rest and exits.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the loop started by Start has exited.
func (p *Producer) WaitClosed() { <-p.closeCh }

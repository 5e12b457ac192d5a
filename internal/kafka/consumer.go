package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler returns nil only when the message was processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, log: log}
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	errs := make(chan error, c.workers)
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				if err := h(ctx, m); err != nil {
					c.log.Warn("handler failed",
						zap.Int("worker", id), zap.String("topic", m.Topic),
						zap.Int64("offset", m.Offset), zap.Error(err))
					select {
					case errs <- err:
					default:
					}
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					select {
					case errs <- err:
					default:
					}
				}
			}
		}(i)
	}
	stop := func() {
		close(jobs)
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			stop()
			return nil
		}

		// drain without blocking so a failing handler cannot stall fetches
		select {
		case e := <-errs:
			c.log.Debug("backing off after worker error", zap.Error(e))
			time.Sleep(200 * time.Millisecond)
		default:
		}
	}
}

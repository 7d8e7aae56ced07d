package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/pagecraft/commerce/internal/domain/order"
)

var _ order.WorkQueue = (*Queue)(nil)

// Queue defers work by publishing jobs to per-queue topics. Writers are
// created lazily, one per queue name.
type Queue struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewQueue returns a Queue publishing to the given brokers.
func NewQueue(brokers []string) *Queue {
	return &Queue{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// Enqueue publishes one enveloped job to the queue's topic.
func (q *Queue) Enqueue(ctx context.Context, queue string, payload any) error {
	value, err := encodeEnvelope(queue, payload)
	if err != nil {
		return err
	}

	err = q.writerFor(queue).WriteMessages(ctx, kafka.Message{
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return errors.Wrapf(err, "enqueue to %s", queue)
	}
	return nil
}

func (q *Queue) writerFor(queue string) *kafka.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()

	w, ok := q.writers[queue]
	if !ok {
		w = newWriter(q.brokers, QueueTopic(queue))
		q.writers[queue] = w
	}
	return w
}

// Close closes all writers, returning the first error.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var first error
	for _, w := range q.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

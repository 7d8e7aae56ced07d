package kafka

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/pagecraft/commerce/internal/domain/order"
)

var _ order.EventSink = (*Sink)(nil)

// Sink publishes domain events to the shared events topic, keyed by event
// name so consumers see per-name ordering.
type Sink struct {
	writer *kafka.Writer
}

// NewSink returns a Sink writing to EventsTopic.
func NewSink(brokers []string) *Sink {
	return &Sink{writer: newWriter(brokers, EventsTopic)}
}

// Emit publishes one enveloped event.
func (s *Sink) Emit(ctx context.Context, name string, payload any) error {
	value, err := encodeEnvelope(name, payload)
	if err != nil {
		return err
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(name),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return errors.Wrapf(err, "emit %s", name)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}

package kafka

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler processes one decoded envelope. Returning an error leaves the
// message uncommitted so it is redelivered.
type Handler func(ctx context.Context, env Envelope) error

// Consumer runs a fetch-handle-commit loop over one queue topic within a
// consumer group.
type Consumer struct {
	reader *kafka.Reader
	lg     *zap.Logger
}

// NewConsumer returns a Consumer for the given queue name.
func NewConsumer(brokers []string, queue, groupID string, lg *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          QueueTopic(queue),
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})
	return &Consumer{reader: reader, lg: lg}
}

// Run consumes until the context is cancelled. Malformed envelopes are
// committed and dropped; handler failures are left uncommitted for
// redelivery.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	c.lg.Info("consumer started", zap.String("topic", c.reader.Config().Topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			c.lg.Warn("fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		env, err := decodeEnvelope(msg.Value)
		if err != nil {
			c.lg.Error("dropping malformed message",
				zap.Int64("offset", msg.Offset), zap.Error(err))
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.lg.Warn("commit failed", zap.Error(err))
			}
			continue
		}

		if err := handler(ctx, env); err != nil {
			c.lg.Error("handler failed",
				zap.String("envelope.id", env.ID),
				zap.String("envelope.name", env.Name),
				zap.Error(err))
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.lg.Warn("commit failed", zap.Error(err))
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Package kafka carries domain events and deferred work over Kafka topics.
// Events are fire-and-forget; work queue delivery is at-least-once, so every
// consumer-side handler must be idempotent.
package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	// EventsTopic receives all domain events.
	EventsTopic = "commerce.events"
	// queueTopicPrefix namespaces work queue topics.
	queueTopicPrefix = "commerce."
)

// QueueTopic maps a logical queue name to its Kafka topic.
func QueueTopic(queue string) string {
	return queueTopicPrefix + queue
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

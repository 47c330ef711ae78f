package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
)

// ContentTypeHeader is set on every published message.
const ContentTypeHeader = "content-type"

// Event is one message to publish. Key picks the partition, so events
// with the same key stay ordered; Value is sent as JSON.
type Event struct {
	Key   string
	Value any
}

// Publisher publishes events. Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Producer writes events to one topic. Control traffic is sparse and
// each event should be visible at once, so writes are synchronous and
// unbatched.
type Producer struct {
	writer  *kafka.Writer
	timeout time.Duration
	logger  *slog.Logger
}

// NewProducer returns a producer for topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    1,
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  max(cfg.HandlerAttempts, 1),
			WriteTimeout: cfg.WriteTimeout,
		},
		timeout: cfg.WriteTimeout,
		logger:  slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish encodes event and waits for every in-sync replica to have it.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %q to %s: %w", event.Key, p.writer.Topic, err)
	}
	p.logger.Debug("event published", "key", event.Key, "bytes", len(msg.Value))
	return nil
}

func encode(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding %q event: %w", event.Key, err)
	}
	return kafka.Message{
		Key:     []byte(event.Key),
		Value:   value,
		Headers: []kafka.Header{{Key: ContentTypeHeader, Value: []byte("application/json")}},
		Time:    time.Now().UTC(),
	}, nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

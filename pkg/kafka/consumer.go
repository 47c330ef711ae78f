// Package kafka carries index control commands and their outcome events
// over segmentio/kafka-go.
package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/resilience"
)

// MessageHandler applies one message. Returning an error makes the
// consumer retry it.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// reader is the part of kafka.Reader the consume loop uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as part of a consumer group. Messages are
// handled one at a time and committed once handled; a message that keeps
// failing is committed after the configured attempts so it cannot wedge
// its partition.
type Consumer struct {
	reader   reader
	handler  MessageHandler
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewConsumer returns a consumer for topic. It starts at the newest
// offset: control commands published while no instance was running are
// stale.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		StartOffset: kafka.LastOffset,
		MaxWait:     time.Second,
	})
	return newConsumer(r, topic, handler, cfg.HandlerAttempts, cfg.RetryBackoff)
}

func newConsumer(r reader, topic string, handler MessageHandler, attempts int, backoff time.Duration) *Consumer {
	if attempts <= 0 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Consumer{
		reader:   r,
		handler:  handler,
		attempts: attempts,
		backoff:  backoff,
		logger:   slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}
		if err != nil {
			c.logger.Error("fetch failed", "error", err, "backoff", c.backoff)
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
	err := resilience.Retry(ctx, "handle-"+string(msg.Key), resilience.RetryConfig{
		MaxAttempts:  c.attempts,
		InitialDelay: c.backoff,
	}, func(ctx context.Context) error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if ctx.Err() != nil {
		// Uncommitted; the group redelivers it to whoever owns the
		// partition next.
		return
	}
	if err != nil {
		log.Error("message skipped after repeated failures", "attempts", c.attempts, "error", err)
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("commit failed", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close closes the reader. Start closes it too on return.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T. Unknown fields are
// rejected so a producer on a newer schema is noticed.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}

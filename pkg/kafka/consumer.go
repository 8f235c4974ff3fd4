// Package kafka publishes and consumes harness run events with
// segmentio/kafka-go. Values are JSON; consumers decode them in a
// MessageHandler.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/config"
)

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// ConsumerStats counts what a Consumer did with the messages it fetched.
type ConsumerStats struct {
	Handled int64 `json:"handled"`
	Skipped int64 `json:"skipped"`
	Failed  int64 `json:"failed"`
}

// Consumer replays run events from the run-events topic into a
// MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
	key     string

	handled atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// NewConsumer reads cfg.RunEvents in cfg.ConsumerGroup. A new group starts
// from the oldest retained event so earlier runs can be replayed.
func NewConsumer(cfg config.KafkaConfig, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.RunEvents,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		}),
		logger:  slog.Default().With("component", "run-event-consumer", "topic", cfg.RunEvents),
		handler: handler,
	}
}

// OnlyKey restricts the consumer to messages with the given key. Run events
// are keyed by run ID, so this selects one run without decoding the others.
// An empty key accepts everything.
func (c *Consumer) OnlyKey(key string) *Consumer {
	c.key = key
	return c
}

// Start fetches and handles messages until ctx is cancelled. Skipped and
// handled messages are committed; a message whose handler fails is not.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", "key", c.key)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "handled", c.handled.Load(), "skipped", c.skipped.Load())
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		if !c.dispatch(ctx, msg) {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// dispatch reports whether msg may be committed.
func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) bool {
	if c.key != "" && string(msg.Key) != c.key {
		c.skipped.Add(1)
		return true
	}
	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		c.failed.Add(1)
		c.logger.Error("failed to process message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)
		return false
	}
	c.handled.Add(1)
	return true
}

// Stats returns the message counters so far.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Handled: c.handled.Load(),
		Skipped: c.skipped.Load(),
		Failed:  c.failed.Load(),
	}
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a run event value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding run event: %w", err)
	}
	return result, nil
}

package producer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Read error backoff bounds. The delay doubles per consecutive failure and resets on success.
const (
	minReadBackoff = 200 * time.Millisecond
	maxReadBackoff = 10 * time.Second
)

// HandleFunc processes one story event payload. An error is logged and the message is skipped.
type HandleFunc func(ctx context.Context, value []byte) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads story events from Kafka with a consumer group.
type Consumer struct {
	reader messageReader
	logger *zap.Logger
	wait   func(ctx context.Context, d time.Duration) bool
}

// NewConsumer creates a group consumer for topic. Call Close when done.
func NewConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	return newConsumer(reader, logger)
}

func newConsumer(reader messageReader, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: reader, logger: logger, wait: sleep}
}

// Run reads messages until ctx is done, calling handle for each. Returns nil when ctx ends.
// Read errors are retried with exponential backoff.
func (c *Consumer) Run(ctx context.Context, handle HandleFunc) error {
	backoff := time.Duration(0)
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			backoff = nextBackoff(backoff)
			c.logger.Warn("kafka read error", zap.Duration("retry_in", backoff), zap.Error(err))
			if !c.wait(ctx, backoff) {
				return nil
			}
			continue
		}
		backoff = 0
		if err := handle(ctx, msg.Value); err != nil {
			c.logger.Warn("story event handling failed",
				zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func nextBackoff(prev time.Duration) time.Duration {
	if prev < minReadBackoff {
		return minReadBackoff
	}
	if next := prev * 2; next < maxReadBackoff {
		return next
	}
	return maxReadBackoff
}

// sleep waits for d and reports false if ctx ended first.
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

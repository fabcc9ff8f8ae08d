package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

const (
	initialRetryBackoff = time.Second
	maxRetryBackoff     = 30 * time.Second
)

// messageReader is the slice of kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer wraps a shared kafka.Reader. Offsets are committed manually: a
// message is committed only after the handler returns nil. Because
// committing a later offset marks every earlier one consumed, a failing
// message is retried in place with backoff; the loop never fetches past it
// until it is handled (at-least-once).
type Consumer struct {
	reader       messageReader
	retryBackoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, retryBackoff: initialRetryBackoff}
}

func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[Kafka] Error fetching message: %v", err)
				continue
			}

			if err := c.handleWithRetry(ctx, handler, msg); err != nil {
				return err
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Printf("[Kafka] Error committing offset %d: %v", msg.Offset, err)
			}
		}
	}
}

// handleWithRetry runs the handler until it succeeds or the context ends.
// Only a context error is returned; everything else is retried.
func (c *Consumer) handleWithRetry(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	backoff := c.retryBackoff
	for {
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return nil
		}
		log.Printf("[Kafka] Error handling message at offset %d, retrying in %s: %v", msg.Offset, backoff, err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

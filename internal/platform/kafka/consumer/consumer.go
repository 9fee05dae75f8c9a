// Package consumer wraps franz-go group consumption behind a small Handler
// seam so workers stay unit-testable without a broker.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"dinemate/internal/platform/config"
)

// Message is one consumed record, decoupled from kgo so handlers don't
// import the client library.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes consumed messages. Returning an error rewinds the
// partition to the failed record so it is polled and delivered again;
// handlers must be idempotent.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer polls a topic as part of a consumer group and dispatches records
// to a Handler.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
}

// New connects a group consumer for the given topics. Returns nil if no
// brokers are configured.
func New(cfg config.Kafka, topics []string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until ctx is cancelled. Only records the handler accepted are
// committed, per record via CommitRecords; a failure stops the partition
// and rewinds it to the failed record, so the record is polled again on the
// next iteration instead of being covered by a later commit. That gives
// at-least-once delivery across transient handler failures.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	defer c.client.Close()

	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fetchErr := range errs {
				c.logger.Error("kafka fetch error",
					"topic", fetchErr.Topic,
					"error", fetchErr.Err,
				)
			}
		}

		var handled []*kgo.Record
		rewinds := make(map[string]map[int32]kgo.EpochOffset)
		fetches.EachPartition(func(part kgo.FetchTopicPartition) {
			for _, record := range part.Records {
				msg := &Message{
					Topic:     record.Topic,
					Key:       record.Key,
					Value:     record.Value,
					Timestamp: record.Timestamp,
				}
				if err := c.handler.Handle(ctx, msg); err != nil {
					c.logger.Error("handler failed, rewinding to redeliver",
						"topic", record.Topic,
						"partition", record.Partition,
						"offset", record.Offset,
						"key", string(record.Key),
						"error", err,
					)
					if rewinds[record.Topic] == nil {
						rewinds[record.Topic] = make(map[int32]kgo.EpochOffset)
					}
					rewinds[record.Topic][record.Partition] = kgo.EpochOffset{
						Epoch:  record.LeaderEpoch,
						Offset: record.Offset,
					}
					return
				}
				handled = append(handled, record)
			}
		})

		if len(handled) > 0 {
			if err := c.client.CommitRecords(ctx, handled...); err != nil && ctx.Err() == nil {
				c.logger.Error("commit offsets failed", "error", err)
			}
		}
		if len(rewinds) > 0 {
			// The client's position already moved past the failed record;
			// without the rewind a later commit would cover it.
			c.client.SetOffsets(rewinds)
		}
	}
}

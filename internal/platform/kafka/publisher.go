// Package kafka wraps franz-go for the small event surface this service
// needs: producing domain events and ensuring topics exist at startup.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"dinemate/internal/platform/config"
)

const adminTimeout = 10 * time.Second

// Publisher produces domain events. A nil Publisher is safe to call and
// drops events, so wiring stays unconditional in main.
type Publisher struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewPublisher connects to the brokers and ensures the configured topics
// exist. Returns nil if no brokers are configured (event publishing
// disabled).
func NewPublisher(cfg config.Kafka, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	if err := ensureTopics(client, cfg.TopicMessages, cfg.TopicProfiles); err != nil {
		client.Close()
		return nil, err
	}

	return &Publisher{client: client, logger: logger}, nil
}

// ensureTopics creates the topics if they do not exist yet. Single
// partition, single replica: ordering per group key matters more than
// throughput here.
func ensureTopics(client *kgo.Client, topics ...string) error {
	adm := kadm.NewClient(client)
	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	responses, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, response := range responses.Sorted() {
		// Already-existing topics are expected on restart.
		if response.Err != nil && !errors.Is(response.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", response.Topic, response.Err)
		}
	}
	return nil
}

// Publish produces one event synchronously. Key determines partition
// ordering; events for one group always share a key.
func (p *Publisher) Publish(ctx context.Context, topic string, key []byte, value []byte) error {
	if p == nil {
		return nil
	}
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the underlying client.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Close()
}

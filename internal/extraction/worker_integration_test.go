//go:build integration

package extraction

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	groupmodels "dinemate/internal/group/models"
	groupservice "dinemate/internal/group/service"
	"dinemate/internal/platform/config"
	"dinemate/internal/platform/kafka"
	"dinemate/internal/platform/kafka/consumer"
	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	"dinemate/pkg/testutil/containers"
)

// syncRecorder is a concurrency-safe Recorder for the consumer goroutine.
type syncRecorder struct {
	mu      sync.Mutex
	signals []*models.Signal
}

func (r *syncRecorder) Record(_ context.Context, signal *models.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal)
	return nil
}

func (r *syncRecorder) snapshot() []*models.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Signal(nil), r.signals...)
}

// TestExtractionPipelineOverBroker runs the real produce-consume-extract
// path: a message.created event through a broker into recorded signals.
func TestExtractionPipelineOverBroker(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	defer rp.Terminate(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Kafka{
		Brokers:       []string{rp.Broker},
		ConsumerGroup: "extraction-integration",
		TopicMessages: "dinemate.message.created",
		TopicProfiles: "dinemate.profile.changed",
	}

	producer, err := kafka.NewPublisher(cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, producer)
	defer producer.Close()

	recorder := &syncRecorder{}
	worker := NewWorker(NewKeywordAnalyzer(), recorder, logger)

	messageConsumer, err := consumer.New(cfg, []string{cfg.TopicMessages}, worker, logger)
	require.NoError(t, err)
	require.NotNil(t, messageConsumer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = messageConsumer.Run(ctx)
	}()

	event := groupservice.MessageCreatedEvent{
		MessageID: id.NewMessageID(),
		GroupID:   id.NewGroupID(),
		UserID:    id.NewUserID(),
		Type:      groupmodels.MessageTypeText,
		Content:   "cheap thai tonight? I'm vegan btw",
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, producer.Publish(context.Background(),
		cfg.TopicMessages, []byte(event.GroupID.String()), payload))

	require.Eventually(t, func() bool {
		return len(recorder.snapshot()) >= 3
	}, 30*time.Second, 200*time.Millisecond, "expected extracted signals to arrive via the broker")

	byDimension := map[models.Dimension]*models.Signal{}
	for _, signal := range recorder.snapshot() {
		byDimension[signal.Dimension] = signal
		require.Equal(t, event.UserID, signal.UserID)
		require.Equal(t, event.GroupID, signal.GroupID)
		require.Equal(t, event.MessageID, signal.SourceMessageID)
	}
	require.Equal(t, "thai", byDimension[models.DimensionCuisine].Value)
	require.Equal(t, "1", byDimension[models.DimensionBudgetTier].Value)
	require.Equal(t, "vegan", byDimension[models.DimensionDietaryRestriction].Value)

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}

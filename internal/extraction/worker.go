package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	groupmodels "dinemate/internal/group/models"
	groupservice "dinemate/internal/group/service"
	"dinemate/internal/platform/kafka/consumer"
	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
)

// signalNamespace seeds deterministic signal IDs. The same (message,
// dimension, value) always produces the same ID, so redelivered events
// collapse into duplicate-signal conflicts instead of double-counting.
var signalNamespace = uuid.MustParse("b1c30a52-9f6e-4f2a-8d7b-3e1f5c0a9d44")

// Recorder persists extracted signals. Implemented by the preference
// service.
type Recorder interface {
	Record(ctx context.Context, signal *models.Signal) error
}

// Worker consumes message.created events, runs the analyzer over user
// messages and records the resulting signals.
type Worker struct {
	analyzer Analyzer
	recorder Recorder
	logger   *slog.Logger
}

// NewWorker constructs the extraction worker.
func NewWorker(analyzer Analyzer, recorder Recorder, logger *slog.Logger) *Worker {
	return &Worker{analyzer: analyzer, recorder: recorder, logger: logger}
}

var _ consumer.Handler = (*Worker)(nil)

// Handle processes one message.created event. System messages carry no user
// preference content and are skipped. Analyzer failures are returned so the
// offset stays uncommitted and the message is retried.
func (w *Worker) Handle(ctx context.Context, msg *consumer.Message) error {
	var event groupservice.MessageCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// A payload that never parses will never parse; committing past it
		// beats poisoning the partition.
		w.logger.ErrorContext(ctx, "dropping undecodable message event",
			"topic", msg.Topic, "key", string(msg.Key), "error", err)
		return nil
	}

	if event.Type == groupmodels.MessageTypeSystem || event.Content == "" {
		return nil
	}

	drafts, err := w.analyzer.Analyze(ctx, event.Content)
	if err != nil {
		return fmt.Errorf("analyze message %s: %w", event.MessageID, err)
	}
	if len(drafts) == 0 {
		return nil
	}

	observedAt, err := time.Parse(time.RFC3339Nano, event.CreatedAt)
	if err != nil {
		observedAt = msg.Timestamp
	}

	recorded := 0
	for _, draft := range drafts {
		signal, err := models.NewSignal(
			draftSignalID(event.MessageID, draft),
			event.UserID,
			event.GroupID,
			draft.Dimension,
			draft.Value,
			draft.Polarity,
			draft.Confidence,
			event.MessageID,
			observedAt,
		)
		if err != nil {
			w.logger.WarnContext(ctx, "skipping invalid extracted signal",
				"message_id", event.MessageID,
				"dimension", draft.Dimension,
				"error", err)
			continue
		}
		if err := w.recorder.Record(ctx, signal); err != nil {
			// Conflict means a prior delivery already recorded this signal.
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				continue
			}
			return fmt.Errorf("record signal for message %s: %w", event.MessageID, err)
		}
		recorded++
	}

	if recorded > 0 {
		w.logger.InfoContext(ctx, "extracted preference signals",
			"message_id", event.MessageID,
			"group_id", event.GroupID,
			"signals", recorded)
	}
	return nil
}

// draftSignalID derives the deterministic ID for one extracted draft.
func draftSignalID(messageID id.MessageID, draft SignalDraft) id.SignalID {
	seed := fmt.Sprintf("%s|%s|%s", messageID, draft.Dimension, draft.Value)
	return id.SignalID(uuid.NewSHA1(signalNamespace, []byte(seed)))
}

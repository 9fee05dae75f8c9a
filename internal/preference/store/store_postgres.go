package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	"dinemate/pkg/platform/sentinel"
	"dinemate/pkg/platform/tx"
)

// PostgresSignalStore persists the signal log in PostgreSQL. Schema:
// migrations/0001_init.sql (preference_signals).
type PostgresSignalStore struct {
	db *sql.DB
}

// NewPostgresSignalStore constructs a PostgreSQL-backed signal store.
func NewPostgresSignalStore(db *sql.DB) *PostgresSignalStore {
	return &PostgresSignalStore{db: db}
}

// querier lets store methods run inside an ambient transaction when one is
// present in the context.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresSignalStore) q(ctx context.Context) querier {
	if ambient, ok := tx.From(ctx); ok {
		return ambient
	}
	return s.db
}

const insertSignal = `
INSERT INTO preference_signals
	(id, user_id, group_id, dimension, value, polarity, confidence, source_message_id, observed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Record appends one immutable signal row. There is deliberately no UPDATE
// or DELETE statement in this file.
func (s *PostgresSignalStore) Record(ctx context.Context, signal *models.Signal) error {
	if err := signal.Validate(); err != nil {
		return err
	}

	_, err := s.q(ctx).ExecContext(ctx, insertSignal,
		uuid.UUID(signal.ID),
		uuid.UUID(signal.UserID),
		uuid.UUID(signal.GroupID),
		string(signal.Dimension),
		signal.Value,
		string(signal.Polarity),
		signal.Confidence,
		uuid.UUID(signal.SourceMessageID),
		signal.ObservedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("record signal: %w", err)
	}
	return nil
}

const selectForKey = `
SELECT id, user_id, group_id, dimension, value, polarity, confidence, source_message_id, observed_at
FROM preference_signals
WHERE user_id = $1 AND group_id = $2 AND dimension = $3
ORDER BY observed_at ASC, id ASC`

// ListFor returns the ordered history for one key.
func (s *PostgresSignalStore) ListFor(ctx context.Context, userID id.UserID, groupID id.GroupID, dimension models.Dimension) ([]*models.Signal, error) {
	rows, err := s.q(ctx).QueryContext(ctx, selectForKey,
		uuid.UUID(userID), uuid.UUID(groupID), string(dimension))
	if err != nil {
		return nil, fmt.Errorf("list signals for key: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

const selectForGroup = `
SELECT id, user_id, group_id, dimension, value, polarity, confidence, source_message_id, observed_at
FROM preference_signals
WHERE group_id = $1
ORDER BY observed_at ASC, id ASC`

// ListForGroup returns the ordered history for a whole group.
func (s *PostgresSignalStore) ListForGroup(ctx context.Context, groupID id.GroupID) ([]*models.Signal, error) {
	rows, err := s.q(ctx).QueryContext(ctx, selectForGroup, uuid.UUID(groupID))
	if err != nil {
		return nil, fmt.Errorf("list signals for group: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

func scanSignals(rows *sql.Rows) ([]*models.Signal, error) {
	var out []*models.Signal
	for rows.Next() {
		var (
			signal                               models.Signal
			signalID, userID, groupID, messageID uuid.UUID
			dimension, polarity                  string
		)
		if err := rows.Scan(
			&signalID, &userID, &groupID, &dimension,
			&signal.Value, &polarity, &signal.Confidence,
			&messageID, &signal.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		signal.ID = id.SignalID(signalID)
		signal.UserID = id.UserID(userID)
		signal.GroupID = id.GroupID(groupID)
		signal.SourceMessageID = id.MessageID(messageID)
		signal.Dimension = models.Dimension(dimension)
		signal.Polarity = models.Polarity(polarity)
		out = append(out, &signal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return out, nil
}

// Package store persists preference signals. The store is append-only:
// signals are immutable once recorded and there is no deletion API, so any
// resolved state can be audited and recomputed from history.
package store

import (
	"context"

	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
)

// SignalStore is the append-only signal log.
//
// ListFor returns the key's full history ordered by observed_at ascending
// (ties broken by signal ID for stability). Each call returns a fresh
// snapshot slice, so a caller can restart iteration at will.
type SignalStore interface {
	// Record appends an immutable signal. Returns sentinel.ErrConflict if
	// a signal with the same ID was already recorded.
	Record(ctx context.Context, signal *models.Signal) error

	// ListFor returns all signals for one (user, group, dimension) key,
	// ordered by observed_at ascending.
	ListFor(ctx context.Context, userID id.UserID, groupID id.GroupID, dimension models.Dimension) ([]*models.Signal, error)

	// ListForGroup returns all signals for a group regardless of user or
	// dimension, ordered by observed_at ascending. Recompute reads the
	// whole group in one call and buckets in memory.
	ListForGroup(ctx context.Context, groupID id.GroupID) ([]*models.Signal, error)
}

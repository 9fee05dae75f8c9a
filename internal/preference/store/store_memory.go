package store

import (
	"context"
	"sort"
	"sync"

	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	"dinemate/pkg/platform/sentinel"
)

// InMemorySignalStore keeps the signal log in process memory. Used in
// development and unit tests; production uses PostgresSignalStore.
type InMemorySignalStore struct {
	mu      sync.RWMutex
	byGroup map[id.GroupID][]*models.Signal
	seen    map[id.SignalID]struct{}
}

// NewInMemorySignalStore creates an empty in-memory signal store.
func NewInMemorySignalStore() *InMemorySignalStore {
	return &InMemorySignalStore{
		byGroup: make(map[id.GroupID][]*models.Signal),
		seen:    make(map[id.SignalID]struct{}),
	}
}

// Record appends a signal. The stored copy is private to the store so a
// caller mutating its argument afterwards cannot corrupt history.
func (s *InMemorySignalStore) Record(ctx context.Context, signal *models.Signal) error {
	if err := signal.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[signal.ID]; dup {
		return sentinel.ErrConflict
	}
	s.seen[signal.ID] = struct{}{}

	stored := *signal
	s.byGroup[signal.GroupID] = append(s.byGroup[signal.GroupID], &stored)
	return nil
}

// ListFor returns the ordered history for one key as a fresh snapshot.
func (s *InMemorySignalStore) ListFor(ctx context.Context, userID id.UserID, groupID id.GroupID, dimension models.Dimension) ([]*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Signal
	for _, signal := range s.byGroup[groupID] {
		if signal.UserID == userID && signal.Dimension == dimension {
			clone := *signal
			out = append(out, &clone)
		}
	}
	sortSignals(out)
	return out, nil
}

// ListForGroup returns the ordered history for a whole group as a fresh
// snapshot.
func (s *InMemorySignalStore) ListForGroup(ctx context.Context, groupID id.GroupID) ([]*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	signals := s.byGroup[groupID]
	out := make([]*models.Signal, 0, len(signals))
	for _, signal := range signals {
		clone := *signal
		out = append(out, &clone)
	}
	sortSignals(out)
	return out, nil
}

// sortSignals orders by observed_at ascending with signal ID as a stable
// tie-break, matching the Postgres ORDER BY.
func sortSignals(signals []*models.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].ObservedAt.Equal(signals[j].ObservedAt) {
			return signals[i].ID.String() < signals[j].ID.String()
		}
		return signals[i].ObservedAt.Before(signals[j].ObservedAt)
	})
}

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dinemate/internal/group/models"
	id "dinemate/pkg/domain"
	"dinemate/pkg/platform/sentinel"
)

// InMemoryGroupStore keeps groups and memberships in process memory.
type InMemoryGroupStore struct {
	mu         sync.RWMutex
	groups     map[id.GroupID]*models.Group
	byInvite   map[string]id.GroupID
	members    map[id.GroupID][]id.UserID
	memberSets map[id.GroupID]map[id.UserID]struct{}
}

// NewInMemoryGroupStore creates an empty in-memory group store.
func NewInMemoryGroupStore() *InMemoryGroupStore {
	return &InMemoryGroupStore{
		groups:     make(map[id.GroupID]*models.Group),
		byInvite:   make(map[string]id.GroupID),
		members:    make(map[id.GroupID][]id.UserID),
		memberSets: make(map[id.GroupID]map[id.UserID]struct{}),
	}
}

func (s *InMemoryGroupStore) Create(ctx context.Context, group *models.Group) error {
	if err := group.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.ToUpper(group.InviteCode)
	if _, taken := s.byInvite[code]; taken {
		return sentinel.ErrConflict
	}
	if _, exists := s.groups[group.ID]; exists {
		return sentinel.ErrConflict
	}

	stored := *group
	s.groups[group.ID] = &stored
	s.byInvite[code] = group.ID
	s.memberSets[group.ID] = make(map[id.UserID]struct{})
	return nil
}

func (s *InMemoryGroupStore) FindByID(ctx context.Context, groupID id.GroupID) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups[groupID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *group
	return &clone, nil
}

func (s *InMemoryGroupStore) FindByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groupID, ok := s.byInvite[strings.ToUpper(code)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.groups[groupID]
	return &clone, nil
}

func (s *InMemoryGroupStore) Update(ctx context.Context, group *models.Group) error {
	if err := group.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group.ID]; !ok {
		return sentinel.ErrNotFound
	}
	stored := *group
	s.groups[group.ID] = &stored
	return nil
}

func (s *InMemoryGroupStore) AddMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return sentinel.ErrNotFound
	}
	set := s.memberSets[groupID]
	if _, member := set[userID]; member {
		return sentinel.ErrConflict
	}
	set[userID] = struct{}{}
	s.members[groupID] = append(s.members[groupID], userID)
	return nil
}

func (s *InMemoryGroupStore) RemoveMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.memberSets[groupID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if _, member := set[userID]; !member {
		return sentinel.ErrNotFound
	}
	delete(set, userID)

	current := s.members[groupID]
	kept := current[:0]
	for _, member := range current {
		if member != userID {
			kept = append(kept, member)
		}
	}
	s.members[groupID] = kept
	return nil
}

func (s *InMemoryGroupStore) ListMembers(ctx context.Context, groupID id.GroupID) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.groups[groupID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]id.UserID{}, s.members[groupID]...), nil
}

func (s *InMemoryGroupStore) TouchMessageStats(ctx context.Context, groupID id.GroupID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return sentinel.ErrNotFound
	}
	group.MessageCount++
	stamp := at
	group.LastMessageAt = &stamp
	return nil
}

func (s *InMemoryGroupStore) ListForUser(ctx context.Context, userID id.UserID) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Group
	for groupID, set := range s.memberSets {
		if _, member := set[userID]; member {
			clone := *s.groups[groupID]
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// InMemoryMessageStore keeps chat messages in process memory.
type InMemoryMessageStore struct {
	mu      sync.RWMutex
	byGroup map[id.GroupID][]*models.ChatMessage
	seen    map[id.MessageID]struct{}
}

// NewInMemoryMessageStore creates an empty in-memory message store.
func NewInMemoryMessageStore() *InMemoryMessageStore {
	return &InMemoryMessageStore{
		byGroup: make(map[id.GroupID][]*models.ChatMessage),
		seen:    make(map[id.MessageID]struct{}),
	}
}

func (s *InMemoryMessageStore) Append(ctx context.Context, message *models.ChatMessage) error {
	if err := message.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[message.ID]; dup {
		return sentinel.ErrConflict
	}
	s.seen[message.ID] = struct{}{}

	stored := *message
	s.byGroup[message.GroupID] = append(s.byGroup[message.GroupID], &stored)
	return nil
}

func (s *InMemoryMessageStore) List(ctx context.Context, groupID id.GroupID, limit int) ([]*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.byGroup[groupID]
	out := make([]*models.ChatMessage, 0, len(messages))
	for _, message := range messages {
		clone := *message
		out = append(out, &clone)
	}
	sortMessages(out)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func sortMessages(messages []*models.ChatMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID.String() < messages[j].ID.String()
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

// Package service implements group lifecycle, membership and chat.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dinemate/internal/group/models"
	"dinemate/internal/group/store"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
	"dinemate/pkg/platform/sentinel"
	"dinemate/pkg/requestcontext"
)

// inviteCodeRetries bounds collision retries on group creation. With a
// 36^6 code space the second attempt already almost never happens.
const inviteCodeRetries = 5

// ProfileInvalidator marks a group's aggregated profile stale. Implemented
// by the preference service; membership changes alter the aggregate even
// though no signal was recorded.
type ProfileInvalidator interface {
	Invalidate(groupID id.GroupID)
}

// EventSink emits the message.created integration event consumed by the
// extraction worker. Implemented by the Kafka publisher; nil drops events.
type EventSink interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// PreferenceSeeder records a new member's default preferences into the
// group. Implemented by the preference engine's seeder; nil skips seeding.
type PreferenceSeeder interface {
	SeedDefaults(ctx context.Context, userID id.UserID, groupID id.GroupID) error
}

// MessageCreatedEvent is the wire payload of message.created.
type MessageCreatedEvent struct {
	MessageID id.MessageID       `json:"message_id"`
	GroupID   id.GroupID         `json:"group_id"`
	UserID    id.UserID          `json:"user_id"`
	Type      models.MessageType `json:"type"`
	Content   string             `json:"content"`
	CreatedAt string             `json:"created_at"`
}

type Service struct {
	groups   store.GroupStore
	messages store.MessageStore

	profiles ProfileInvalidator
	seeder   PreferenceSeeder
	events   EventSink
	topic    string

	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithProfileInvalidator wires membership changes to profile staleness.
func WithProfileInvalidator(invalidator ProfileInvalidator) Option {
	return func(s *Service) {
		s.profiles = invalidator
	}
}

// WithPreferenceSeeder seeds stored default preferences on join.
func WithPreferenceSeeder(seeder PreferenceSeeder) Option {
	return func(s *Service) {
		s.seeder = seeder
	}
}

// WithEventSink emits message.created events to the given topic.
func WithEventSink(sink EventSink, topic string) Option {
	return func(s *Service) {
		s.events = sink
		s.topic = topic
	}
}

func New(groups store.GroupStore, messages store.MessageStore, opts ...Option) (*Service, error) {
	if groups == nil {
		return nil, fmt.Errorf("group store is required")
	}
	if messages == nil {
		return nil, fmt.Errorf("message store is required")
	}

	svc := &Service{
		groups:   groups,
		messages: messages,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create creates a group with a fresh invite code and the creator as its
// first member. Invite-code collisions retry with a new code.
func (s *Service) Create(ctx context.Context, name, description string, creatorID id.UserID) (*models.Group, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "group name is required")
	}
	if creatorID.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	var group *models.Group
	for attempt := 0; attempt < inviteCodeRetries; attempt++ {
		candidate := &models.Group{
			ID:          id.NewGroupID(),
			Name:        name,
			Description: description,
			InviteCode:  models.NewInviteCode(),
			CreatorID:   creatorID,
			Status:      models.GroupStatusActive,
			MaxMembers:  models.DefaultMaxMembers,
			CreatedAt:   requestcontext.Now(ctx),
		}
		err := s.groups.Create(ctx, candidate)
		if err == nil {
			group = candidate
			break
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create group")
		}
	}
	if group == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "could not allocate a unique invite code")
	}

	if err := s.groups.AddMember(ctx, group.ID, creatorID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add creator to group")
	}

	s.systemMessage(ctx, group.ID, "group created")
	s.seedDefaults(ctx, creatorID, group.ID)
	s.invalidate(group.ID)

	s.logger.InfoContext(ctx, "group created",
		"group_id", group.ID, "creator_id", creatorID)
	return group, nil
}

// Get returns the group, restricted to its members.
func (s *Service) Get(ctx context.Context, groupID id.GroupID, callerID id.UserID) (*models.Group, error) {
	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	return group, nil
}

// Join adds the caller to the group behind an invite code.
func (s *Service) Join(ctx context.Context, inviteCode string, userID id.UserID) (*models.Group, error) {
	if userID.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	group, err := s.groups.FindByInviteCode(ctx, inviteCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invite code not recognized")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up invite code")
	}

	if !group.Status.Joinable() {
		return nil, dErrors.Newf(dErrors.CodeConflict, "group is %s and not accepting members", group.Status)
	}

	members, err := s.groups.ListMembers(ctx, group.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list members")
	}
	if len(members) >= group.MaxMembers {
		return nil, dErrors.New(dErrors.CodeConflict, "group is full")
	}

	if err := s.groups.AddMember(ctx, group.ID, userID); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "already a member of this group")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to join group")
	}

	s.systemMessage(ctx, group.ID, "a new member joined")
	s.seedDefaults(ctx, userID, group.ID)
	s.invalidate(group.ID)

	s.logger.InfoContext(ctx, "member joined group",
		"group_id", group.ID, "user_id", userID)
	return group, nil
}

// Leave removes the caller from the group. The member's recorded signals
// stay in the log; aggregation simply stops counting them.
func (s *Service) Leave(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	if _, err := s.findGroup(ctx, groupID); err != nil {
		return err
	}

	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "not a member of this group")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to leave group")
	}

	s.systemMessage(ctx, groupID, "a member left")
	s.invalidate(groupID)

	s.logger.InfoContext(ctx, "member left group",
		"group_id", groupID, "user_id", userID)
	return nil
}

// ListForUser returns the caller's groups.
func (s *Service) ListForUser(ctx context.Context, userID id.UserID) ([]*models.Group, error) {
	if userID.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	groups, err := s.groups.ListForUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list groups")
	}
	return groups, nil
}

// CurrentMembers implements the preference engine's membership lookup.
func (s *Service) CurrentMembers(ctx context.Context, groupID id.GroupID) ([]id.UserID, error) {
	return s.groups.ListMembers(ctx, groupID)
}

// SelectRestaurant records the group's decision and moves it to decided.
func (s *Service) SelectRestaurant(ctx context.Context, groupID id.GroupID, callerID id.UserID, restaurant string) (*models.Group, error) {
	if restaurant == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "restaurant is required")
	}
	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, groupID, callerID); err != nil {
		return nil, err
	}
	if group.Status == models.GroupStatusArchived {
		return nil, dErrors.New(dErrors.CodeConflict, "group is archived")
	}

	decidedAt := requestcontext.Now(ctx)
	group.SelectedRestaurant = restaurant
	group.Status = models.GroupStatusDecided
	group.DecidedAt = &decidedAt
	if err := s.groups.Update(ctx, group); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record selection")
	}

	s.systemMessage(ctx, groupID, fmt.Sprintf("the group decided on %s", restaurant))
	return group, nil
}

// SendMessage appends a chat message and emits message.created for the
// extraction worker. Event emission is best effort: the message is durable
// once stored, and a dropped event only delays preference extraction.
func (s *Service) SendMessage(ctx context.Context, groupID id.GroupID, userID id.UserID, messageType models.MessageType, content string) (*models.ChatMessage, error) {
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if messageType == models.MessageTypeSystem {
		return nil, dErrors.New(dErrors.CodeForbidden, "system messages cannot be sent by users")
	}
	if _, err := s.findGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	message := &models.ChatMessage{
		ID:        id.NewMessageID(),
		GroupID:   groupID,
		UserID:    userID,
		Type:      messageType,
		Content:   content,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := message.Validate(); err != nil {
		return nil, err
	}
	if err := s.messages.Append(ctx, message); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store message")
	}
	s.touchMessageStats(ctx, groupID, message.CreatedAt)

	s.emitMessageCreated(ctx, message)
	return message, nil
}

// ListMessages returns up to limit recent messages, restricted to members.
func (s *Service) ListMessages(ctx context.Context, groupID id.GroupID, callerID id.UserID, limit int) ([]*models.ChatMessage, error) {
	if _, err := s.findGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, groupID, callerID); err != nil {
		return nil, err
	}

	messages, err := s.messages.List(ctx, groupID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list messages")
	}
	return messages, nil
}

func (s *Service) findGroup(ctx context.Context, groupID id.GroupID) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "group not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load group")
	}
	return group, nil
}

func (s *Service) requireMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	if userID.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list members")
	}
	for _, member := range members {
		if member == userID {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "not a member of this group")
}

// systemMessage appends a narration message. Failures are logged, not
// returned: narration must never abort the operation it narrates.
func (s *Service) systemMessage(ctx context.Context, groupID id.GroupID, content string) {
	message := &models.ChatMessage{
		ID:        id.NewMessageID(),
		GroupID:   groupID,
		Type:      models.MessageTypeSystem,
		Content:   content,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.messages.Append(ctx, message); err != nil {
		s.logger.WarnContext(ctx, "system message dropped",
			"group_id", groupID, "error", err)
		return
	}
	s.touchMessageStats(ctx, groupID, message.CreatedAt)
}

// touchMessageStats is best effort: counters are advisory and must not
// fail the send that produced them.
func (s *Service) touchMessageStats(ctx context.Context, groupID id.GroupID, at time.Time) {
	if err := s.groups.TouchMessageStats(ctx, groupID, at); err != nil {
		s.logger.WarnContext(ctx, "message stats not updated",
			"group_id", groupID, "error", err)
	}
}

func (s *Service) emitMessageCreated(ctx context.Context, message *models.ChatMessage) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(MessageCreatedEvent{
		MessageID: message.ID,
		GroupID:   message.GroupID,
		UserID:    message.UserID,
		Type:      message.Type,
		Content:   message.Content,
		CreatedAt: message.CreatedAt.Format(time.RFC3339Nano),
	})
	if err == nil {
		err = s.events.Publish(ctx, s.topic, []byte(message.GroupID.String()), payload)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "message.created emit failed",
			"message_id", message.ID, "error", err)
	}
}

// seedDefaults is best effort: the member is already in the group, and
// missing seeds only mean the profile starts from chat alone.
func (s *Service) seedDefaults(ctx context.Context, userID id.UserID, groupID id.GroupID) {
	if s.seeder == nil {
		return
	}
	if err := s.seeder.SeedDefaults(ctx, userID, groupID); err != nil {
		s.logger.WarnContext(ctx, "default preferences not seeded",
			"user_id", userID, "group_id", groupID, "error", err)
	}
}

func (s *Service) invalidate(groupID id.GroupID) {
	if s.profiles != nil {
		s.profiles.Invalidate(groupID)
	}
}

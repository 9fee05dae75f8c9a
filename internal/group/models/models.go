// Package models defines dining groups and their chat messages.
package models

import (
	"crypto/rand"
	"time"

	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
)

// DefaultMaxMembers caps group size unless the creator chooses a smaller
// cap. Beyond this the aggregate stops being a conversation and starts
// being a poll.
const DefaultMaxMembers = 10

// InviteCodeLength is the length of generated invite codes.
const InviteCodeLength = 6

// GroupStatus tracks the group's dining decision lifecycle.
type GroupStatus string

const (
	GroupStatusActive   GroupStatus = "active"
	GroupStatusPlanning GroupStatus = "planning"
	GroupStatusDecided  GroupStatus = "decided"
	GroupStatusArchived GroupStatus = "archived"
)

// Valid reports whether the status is recognized.
func (s GroupStatus) Valid() bool {
	switch s {
	case GroupStatusActive, GroupStatusPlanning, GroupStatusDecided, GroupStatusArchived:
		return true
	}
	return false
}

// Joinable reports whether new members may enter a group in this status.
func (s GroupStatus) Joinable() bool {
	return s == GroupStatusActive || s == GroupStatusPlanning
}

// Group is a dining group. Members are stored separately; Group itself
// carries only identity and lifecycle.
type Group struct {
	ID                 id.GroupID  `json:"id"`
	Name               string      `json:"name"`
	Description        string      `json:"description,omitempty"`
	InviteCode         string      `json:"invite_code"`
	CreatorID          id.UserID   `json:"creator_id"`
	Status             GroupStatus `json:"status"`
	MaxMembers         int         `json:"max_members"`
	MessageCount       int         `json:"message_count"`
	LastMessageAt      *time.Time  `json:"last_message_at,omitempty"`
	SelectedRestaurant string      `json:"selected_restaurant,omitempty"`
	DecidedAt          *time.Time  `json:"decided_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

// Validate enforces group invariants.
func (g *Group) Validate() error {
	if g.ID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid group: id is required")
	}
	if g.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid group: name is required")
	}
	if len(g.InviteCode) != InviteCodeLength {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid group: invite code malformed")
	}
	if g.CreatorID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid group: creator_id is required")
	}
	if !g.Status.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid group: unrecognized status %q", g.Status)
	}
	if g.MaxMembers < 2 || g.MaxMembers > DefaultMaxMembers {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid group: max_members must be between 2 and %d", DefaultMaxMembers)
	}
	return nil
}

// inviteAlphabet avoids lowercase so codes survive being read aloud.
const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewInviteCode generates a random invite code. Uniqueness is enforced by
// the store; the caller retries on collision.
func NewInviteCode() string {
	buf := make([]byte, InviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process has bigger problems.
		panic(err)
	}
	for i, b := range buf {
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf)
}

// MessageType classifies chat messages. System messages narrate membership
// events and are authored by nobody.
type MessageType string

const (
	MessageTypeText                 MessageType = "text"
	MessageTypeRestaurantSuggestion MessageType = "restaurant_suggestion"
	MessageTypeSystem               MessageType = "system"
)

// Valid reports whether the message type is recognized.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeRestaurantSuggestion, MessageTypeSystem:
		return true
	}
	return false
}

// ChatMessage is one message in a group's chat. UserID is zero for system
// messages.
type ChatMessage struct {
	ID        id.MessageID `json:"id"`
	GroupID   id.GroupID   `json:"group_id"`
	UserID    id.UserID    `json:"user_id,omitempty"`
	Type      MessageType  `json:"type"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

// Validate enforces message invariants.
func (m *ChatMessage) Validate() error {
	if m.ID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid message: id is required")
	}
	if m.GroupID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid message: group_id is required")
	}
	if !m.Type.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid message: unrecognized type %q", m.Type)
	}
	if m.Type != MessageTypeSystem && m.UserID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid message: user_id is required")
	}
	if m.Content == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid message: content is required")
	}
	return nil
}

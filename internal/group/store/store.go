// Package store persists groups, memberships and chat messages.
package store

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"dinemate/internal/group/models"
	id "dinemate/pkg/domain"
)

// GroupStore persists groups and their member sets.
type GroupStore interface {
	// Create inserts a new group. Returns sentinel.ErrConflict when the
	// invite code is already taken; the service retries with a fresh code.
	Create(ctx context.Context, group *models.Group) error

	FindByID(ctx context.Context, groupID id.GroupID) (*models.Group, error)
	FindByInviteCode(ctx context.Context, code string) (*models.Group, error)

	// Update persists status and restaurant selection changes.
	Update(ctx context.Context, group *models.Group) error

	// AddMember adds a user to the group. Returns sentinel.ErrConflict when
	// the user is already a member.
	AddMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error

	// RemoveMember removes a user. Returns sentinel.ErrNotFound when the
	// user is not a member.
	RemoveMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error

	// ListMembers returns the group's current members in join order.
	ListMembers(ctx context.Context, groupID id.GroupID) ([]id.UserID, error)

	// ListForUser returns every group the user is currently a member of,
	// oldest group first.
	ListForUser(ctx context.Context, userID id.UserID) ([]*models.Group, error)

	// TouchMessageStats bumps the group's message count and last-message
	// timestamp after a message is appended.
	TouchMessageStats(ctx context.Context, groupID id.GroupID, at time.Time) error
}

// MessageStore persists chat messages.
type MessageStore interface {
	Append(ctx context.Context, message *models.ChatMessage) error

	// List returns up to limit most recent messages in chronological order.
	// A zero limit means no cap.
	List(ctx context.Context, groupID id.GroupID, limit int) ([]*models.ChatMessage, error)
}

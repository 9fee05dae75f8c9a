// Package store persists user accounts.
package store

import (
	"context"

	"dinemate/internal/user/models"
	id "dinemate/pkg/domain"
)

// UserStore persists accounts. Email uniqueness is case-insensitive.
type UserStore interface {
	// Create inserts a user. Returns sentinel.ErrConflict when the email is
	// already registered.
	Create(ctx context.Context, user *models.User) error

	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdatePreferences replaces the user's stored default preferences.
	// Returns sentinel.ErrNotFound for unknown users.
	UpdatePreferences(ctx context.Context, userID id.UserID, dietary, cuisines []string) error
}

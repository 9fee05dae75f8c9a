// Package models defines registered users.
package models

import (
	"strings"
	"time"

	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
)

// User is a registered account. PasswordHash is a bcrypt hash; the plain
// password never leaves the registration path. Default preferences are
// seeded into every group the user joins as low-confidence signals.
type User struct {
	ID                  id.UserID `json:"id"`
	Email               string    `json:"email"`
	DisplayName         string    `json:"display_name"`
	PasswordHash        string    `json:"-"`
	DietaryRestrictions []string  `json:"dietary_restrictions"`
	CuisinePreferences  []string  `json:"cuisine_preferences"`
	CreatedAt           time.Time `json:"created_at"`
}

// NormalizeEmail lowercases and trims an email for uniqueness comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate enforces user invariants.
func (u *User) Validate() error {
	if u.ID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid user: id is required")
	}
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid user: email is malformed")
	}
	if u.DisplayName == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid user: display_name is required")
	}
	if u.PasswordHash == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid user: password hash is required")
	}
	return nil
}

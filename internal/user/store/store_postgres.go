package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"dinemate/internal/user/models"
	id "dinemate/pkg/domain"
	"dinemate/pkg/platform/sentinel"
	"dinemate/pkg/platform/tx"
)

// PostgresUserStore persists accounts in PostgreSQL. Schema:
// migrations/0001_init.sql (users).
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore constructs a PostgreSQL-backed user store.
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresUserStore) q(ctx context.Context) querier {
	if ambient, ok := tx.From(ctx); ok {
		return ambient
	}
	return s.db
}

const insertUser = `
INSERT INTO users (id, email, display_name, password_hash, dietary_restrictions, cuisine_preferences, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (s *PostgresUserStore) Create(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	_, err := s.q(ctx).ExecContext(ctx, insertUser,
		uuid.UUID(user.ID),
		models.NormalizeEmail(user.Email),
		user.DisplayName,
		user.PasswordHash,
		pq.Array(user.DietaryRestrictions),
		pq.Array(user.CuisinePreferences),
		user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const selectUser = `
SELECT id, email, display_name, password_hash, dietary_restrictions, cuisine_preferences, created_at
FROM users WHERE `

func (s *PostgresUserStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.q(ctx).QueryRowContext(ctx, selectUser+"id = $1", uuid.UUID(userID))
	return scanUser(row)
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.q(ctx).QueryRowContext(ctx, selectUser+"email = $1", models.NormalizeEmail(email))
	return scanUser(row)
}

const updatePreferences = `
UPDATE users SET dietary_restrictions = $2, cuisine_preferences = $3 WHERE id = $1`

func (s *PostgresUserStore) UpdatePreferences(ctx context.Context, userID id.UserID, dietary, cuisines []string) error {
	result, err := s.q(ctx).ExecContext(ctx, updatePreferences,
		uuid.UUID(userID), pq.Array(dietary), pq.Array(cuisines))
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		user   models.User
		userID uuid.UUID
	)
	err := row.Scan(&userID, &user.Email, &user.DisplayName, &user.PasswordHash,
		pq.Array(&user.DietaryRestrictions), pq.Array(&user.CuisinePreferences), &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.ID = id.UserID(userID)
	return &user, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"dinemate/internal/group/models"
	id "dinemate/pkg/domain"
	"dinemate/pkg/platform/sentinel"
	"dinemate/pkg/platform/tx"
)

// PostgresGroupStore persists groups in PostgreSQL. Schema:
// migrations/0001_init.sql (groups, group_members).
type PostgresGroupStore struct {
	db *sql.DB
}

// NewPostgresGroupStore constructs a PostgreSQL-backed group store.
func NewPostgresGroupStore(db *sql.DB) *PostgresGroupStore {
	return &PostgresGroupStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresGroupStore) q(ctx context.Context) querier {
	if ambient, ok := tx.From(ctx); ok {
		return ambient
	}
	return s.db
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}

const insertGroup = `
INSERT INTO groups (id, name, description, invite_code, creator_id, status, max_members, selected_restaurant, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (s *PostgresGroupStore) Create(ctx context.Context, group *models.Group) error {
	if err := group.Validate(); err != nil {
		return err
	}

	_, err := s.q(ctx).ExecContext(ctx, insertGroup,
		uuid.UUID(group.ID),
		group.Name,
		group.Description,
		strings.ToUpper(group.InviteCode),
		uuid.UUID(group.CreatorID),
		string(group.Status),
		group.MaxMembers,
		group.SelectedRestaurant,
		group.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

const groupColumns = `id, name, description, invite_code, creator_id, status, max_members,
message_count, last_message_at, selected_restaurant, decided_at, created_at`

const selectGroup = `
SELECT ` + groupColumns + `
FROM groups WHERE `

func (s *PostgresGroupStore) FindByID(ctx context.Context, groupID id.GroupID) (*models.Group, error) {
	row := s.q(ctx).QueryRowContext(ctx, selectGroup+"id = $1", uuid.UUID(groupID))
	return scanGroup(row)
}

func (s *PostgresGroupStore) FindByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	row := s.q(ctx).QueryRowContext(ctx, selectGroup+"invite_code = $1", strings.ToUpper(code))
	return scanGroup(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.Group, error) {
	var (
		group                  models.Group
		groupID, creatorID     uuid.UUID
		status                 string
		lastMessage, decidedAt sql.NullTime
	)
	err := row.Scan(&groupID, &group.Name, &group.Description, &group.InviteCode,
		&creatorID, &status, &group.MaxMembers, &group.MessageCount,
		&lastMessage, &group.SelectedRestaurant, &decidedAt, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan group: %w", err)
	}
	group.ID = id.GroupID(groupID)
	group.CreatorID = id.UserID(creatorID)
	group.Status = models.GroupStatus(status)
	if lastMessage.Valid {
		stamp := lastMessage.Time
		group.LastMessageAt = &stamp
	}
	if decidedAt.Valid {
		stamp := decidedAt.Time
		group.DecidedAt = &stamp
	}
	return &group, nil
}

const updateGroup = `
UPDATE groups SET name = $2, description = $3, status = $4, selected_restaurant = $5, decided_at = $6
WHERE id = $1`

func (s *PostgresGroupStore) Update(ctx context.Context, group *models.Group) error {
	if err := group.Validate(); err != nil {
		return err
	}

	var decidedAt sql.NullTime
	if group.DecidedAt != nil {
		decidedAt = sql.NullTime{Time: *group.DecidedAt, Valid: true}
	}
	result, err := s.q(ctx).ExecContext(ctx, updateGroup,
		uuid.UUID(group.ID), group.Name, group.Description, string(group.Status),
		group.SelectedRestaurant, decidedAt)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const insertMember = `
INSERT INTO group_members (group_id, user_id, joined_at) VALUES ($1, $2, now())`

func (s *PostgresGroupStore) AddMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	_, err := s.q(ctx).ExecContext(ctx, insertMember, uuid.UUID(groupID), uuid.UUID(userID))
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

const deleteMember = `
DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`

func (s *PostgresGroupStore) RemoveMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	result, err := s.q(ctx).ExecContext(ctx, deleteMember, uuid.UUID(groupID), uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectMembers = `
SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY joined_at ASC, user_id ASC`

func (s *PostgresGroupStore) ListMembers(ctx context.Context, groupID id.GroupID) ([]id.UserID, error) {
	if _, err := s.FindByID(ctx, groupID); err != nil {
		return nil, err
	}

	rows, err := s.q(ctx).QueryContext(ctx, selectMembers, uuid.UUID(groupID))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []id.UserID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, id.UserID(userID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

const selectGroupsForUser = `
SELECT g.id, g.name, g.description, g.invite_code, g.creator_id, g.status, g.max_members,
g.message_count, g.last_message_at, g.selected_restaurant, g.decided_at, g.created_at
FROM groups g
JOIN group_members m ON m.group_id = g.id
WHERE m.user_id = $1
ORDER BY g.created_at ASC, g.id ASC`

func (s *PostgresGroupStore) ListForUser(ctx context.Context, userID id.UserID) ([]*models.Group, error) {
	rows, err := s.q(ctx).QueryContext(ctx, selectGroupsForUser, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list groups for user: %w", err)
	}
	defer rows.Close()

	var out []*models.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return out, nil
}

const touchMessageStats = `
UPDATE groups SET message_count = message_count + 1, last_message_at = $2 WHERE id = $1`

func (s *PostgresGroupStore) TouchMessageStats(ctx context.Context, groupID id.GroupID, at time.Time) error {
	result, err := s.q(ctx).ExecContext(ctx, touchMessageStats, uuid.UUID(groupID), at)
	if err != nil {
		return fmt.Errorf("touch message stats: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch message stats: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// PostgresMessageStore persists chat messages in PostgreSQL. Schema:
// migrations/0001_init.sql (chat_messages).
type PostgresMessageStore struct {
	db *sql.DB
}

// NewPostgresMessageStore constructs a PostgreSQL-backed message store.
func NewPostgresMessageStore(db *sql.DB) *PostgresMessageStore {
	return &PostgresMessageStore{db: db}
}

func (s *PostgresMessageStore) q(ctx context.Context) querier {
	if ambient, ok := tx.From(ctx); ok {
		return ambient
	}
	return s.db
}

const insertMessage = `
INSERT INTO chat_messages (id, group_id, user_id, type, content, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

func (s *PostgresMessageStore) Append(ctx context.Context, message *models.ChatMessage) error {
	if err := message.Validate(); err != nil {
		return err
	}

	var userID any
	if !message.UserID.IsZero() {
		userID = uuid.UUID(message.UserID)
	}
	_, err := s.q(ctx).ExecContext(ctx, insertMessage,
		uuid.UUID(message.ID),
		uuid.UUID(message.GroupID),
		userID,
		string(message.Type),
		message.Content,
		message.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

const selectMessages = `
SELECT id, group_id, user_id, type, content, created_at
FROM (
	SELECT id, group_id, user_id, type, content, created_at
	FROM chat_messages
	WHERE group_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2
) recent
ORDER BY created_at ASC, id ASC`

func (s *PostgresMessageStore) List(ctx context.Context, groupID id.GroupID, limit int) ([]*models.ChatMessage, error) {
	var capped any
	if limit > 0 {
		capped = limit
	}
	rows, err := s.q(ctx).QueryContext(ctx, selectMessages, uuid.UUID(groupID), capped)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatMessage
	for rows.Next() {
		var (
			message              models.ChatMessage
			messageID, groupUUID uuid.UUID
			userID               uuid.NullUUID
			messageType          string
		)
		if err := rows.Scan(&messageID, &groupUUID, &userID, &messageType,
			&message.Content, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		message.ID = id.MessageID(messageID)
		message.GroupID = id.GroupID(groupUUID)
		if userID.Valid {
			message.UserID = id.UserID(userID.UUID)
		}
		message.Type = models.MessageType(messageType)
		out = append(out, &message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// Package domain holds typed identifiers. Distinct ID types make cross-type
// assignment a compile error: a UserID can never be passed where a GroupID
// is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "dinemate/pkg/domain-errors"
)

type (
	// UserID identifies a registered user.
	UserID uuid.UUID
	// GroupID identifies a dining group.
	GroupID uuid.UUID
	// MessageID identifies a chat message.
	MessageID uuid.UUID
	// SignalID identifies a preference signal.
	SignalID uuid.UUID
)

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id GroupID) String() string   { return uuid.UUID(id).String() }
func (id MessageID) String() string { return uuid.UUID(id).String() }
func (id SignalID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool    { return uuid.UUID(id) == uuid.Nil }
func (id GroupID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }
func (id MessageID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id SignalID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }

// NewUserID generates a random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewGroupID generates a random group ID.
func NewGroupID() GroupID { return GroupID(uuid.New()) }

// NewMessageID generates a random message ID.
func NewMessageID() MessageID { return MessageID(uuid.New()) }

// NewSignalID generates a random signal ID.
func NewSignalID() SignalID { return SignalID(uuid.New()) }

// parseUUID enforces the trust-boundary invariant: IDs must be valid,
// non-empty, non-nil UUIDs.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s: %v", kind, err)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", kind)
	}
	return parsed, nil
}

// ParseUserID validates external input as a UserID.
func ParseUserID(s string) (UserID, error) {
	parsed, err := parseUUID(s, "user_id")
	return UserID(parsed), err
}

// ParseGroupID validates external input as a GroupID.
func ParseGroupID(s string) (GroupID, error) {
	parsed, err := parseUUID(s, "group_id")
	return GroupID(parsed), err
}

// ParseMessageID validates external input as a MessageID.
func ParseMessageID(s string) (MessageID, error) {
	parsed, err := parseUUID(s, "message_id")
	return MessageID(parsed), err
}

// ParseSignalID validates external input as a SignalID.
func ParseSignalID(s string) (SignalID, error) {
	parsed, err := parseUUID(s, "signal_id")
	return SignalID(parsed), err
}

// MarshalText makes typed IDs render as canonical UUID strings in JSON.
func (id UserID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id GroupID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id MessageID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id SignalID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := ParseUserID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *GroupID) UnmarshalText(text []byte) error {
	parsed, err := ParseGroupID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *MessageID) UnmarshalText(text []byte) error {
	parsed, err := ParseMessageID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *SignalID) UnmarshalText(text []byte) error {
	parsed, err := ParseSignalID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Package models defines the preference engine's domain types: raw signals,
// per-user resolved state, and the aggregated group profile.
package models

import (
	"time"

	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
	pstrings "dinemate/pkg/platform/strings"
)

// Dimension enumerates the preference dimensions the engine understands.
// Unknown dimensions are rejected at the store boundary so history never
// contains values no resolver can interpret.
type Dimension string

const (
	DimensionCuisine            Dimension = "cuisine"
	DimensionBudgetTier         Dimension = "budget_tier"
	DimensionDietaryRestriction Dimension = "dietary_restriction"
	DimensionAmbience           Dimension = "ambience"
	DimensionLocationRadius     Dimension = "location_radius"
)

// Dimensions lists all recognized dimensions in a stable order.
func Dimensions() []Dimension {
	return []Dimension{
		DimensionCuisine,
		DimensionBudgetTier,
		DimensionDietaryRestriction,
		DimensionAmbience,
		DimensionLocationRadius,
	}
}

// Valid reports whether the dimension is recognized.
func (d Dimension) Valid() bool {
	switch d {
	case DimensionCuisine, DimensionBudgetTier, DimensionDietaryRestriction,
		DimensionAmbience, DimensionLocationRadius:
		return true
	}
	return false
}

// IsExclusive reports whether a user holds exactly one value for the
// dimension (budget tier, location radius) as opposed to a set (cuisines,
// dietary restrictions, ambience).
func (d Dimension) IsExclusive() bool {
	return d == DimensionBudgetTier || d == DimensionLocationRadius
}

// IsHardConstraint reports whether the dimension must be satisfied for
// every member (aggregated conservatively) rather than ranked by vote.
func (d Dimension) IsHardConstraint() bool {
	switch d {
	case DimensionBudgetTier, DimensionDietaryRestriction, DimensionLocationRadius:
		return true
	}
	return false
}

// Polarity distinguishes supporting signals from explicit negations
// ("I'm no longer vegetarian").
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
)

// Valid reports whether the polarity is recognized. The empty string is
// accepted at the draft layer and normalized to positive.
func (p Polarity) Valid() bool {
	return p == PolarityPositive || p == PolarityNegative
}

// Signal is one timestamped, confidence-scored observation about a user's
// preference, extracted from a single message. Signals are immutable once
// recorded: they are superseded by later signals, never edited, so resolved
// state stays replayable from history.
type Signal struct {
	ID              id.SignalID  `json:"id"`
	UserID          id.UserID    `json:"user_id"`
	GroupID         id.GroupID   `json:"group_id"`
	Dimension       Dimension    `json:"dimension"`
	Value           string       `json:"value"`
	Polarity        Polarity     `json:"polarity"`
	Confidence      float64      `json:"confidence"`
	SourceMessageID id.MessageID `json:"source_message_id"`
	ObservedAt      time.Time    `json:"observed_at"`
}

// NewSignal validates and constructs a Signal. Values are normalized to
// lowercase trimmed form so "Thai" and "thai " resolve to the same
// preference.
func NewSignal(
	signalID id.SignalID,
	userID id.UserID,
	groupID id.GroupID,
	dimension Dimension,
	value string,
	polarity Polarity,
	confidence float64,
	sourceMessageID id.MessageID,
	observedAt time.Time,
) (*Signal, error) {
	if polarity == "" {
		polarity = PolarityPositive
	}
	s := &Signal{
		ID:              signalID,
		UserID:          userID,
		GroupID:         groupID,
		Dimension:       dimension,
		Value:           normalizeValue(value),
		Polarity:        polarity,
		Confidence:      confidence,
		SourceMessageID: sourceMessageID,
		ObservedAt:      observedAt.UTC(),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate enforces the invariants a signal must satisfy before it may
// enter history.
func (s *Signal) Validate() error {
	if s.UserID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid signal: user_id is required")
	}
	if s.GroupID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid signal: group_id is required")
	}
	if !s.Dimension.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid signal: unrecognized dimension %q", s.Dimension)
	}
	if s.Value == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid signal: value is required")
	}
	if !s.Polarity.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid signal: unrecognized polarity %q", s.Polarity)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid signal: confidence %v outside [0,1]", s.Confidence)
	}
	if s.ObservedAt.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid signal: observed_at is required")
	}
	return nil
}

func normalizeValue(value string) string {
	normalized := pstrings.DedupeAndTrimLower([]string{value})
	if len(normalized) == 0 {
		return ""
	}
	return normalized[0]
}

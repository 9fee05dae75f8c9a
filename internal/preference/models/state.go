package models

import (
	"time"

	id "dinemate/pkg/domain"
)

// ExclusiveValue is the resolved belief for an exclusive dimension: the one
// value the user currently holds, with the confidence of the signal that
// established it.
type ExclusiveValue struct {
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
}

// SetMember is one value in a resolved set dimension. Confidence is the
// strongest time-decayed support at resolution time; FirstObservedAt is the
// earliest supporting signal and serves as the deterministic tie-break when
// the group aggregator ranks values.
type SetMember struct {
	Value           string    `json:"value"`
	Confidence      float64   `json:"confidence"`
	FirstObservedAt time.Time `json:"first_observed_at"`
}

// UserPreferenceState is the current believed value(s) for one
// (user, group, dimension) key. It is always derivable by replaying the
// key's signals in observed_at order; the resolver recomputes it whole
// rather than patching it incrementally.
//
// Exactly one of Exclusive or Members is populated, matching the
// dimension's kind. An exclusive dimension with no surviving belief has
// Exclusive == nil; a set dimension with no surviving members has an empty
// Members slice. Both mean "unresolved".
type UserPreferenceState struct {
	UserID     id.UserID       `json:"user_id"`
	GroupID    id.GroupID      `json:"group_id"`
	Dimension  Dimension       `json:"dimension"`
	Exclusive  *ExclusiveValue `json:"exclusive,omitempty"`
	Members    []SetMember     `json:"members,omitempty"`
	Confidence float64         `json:"confidence"`
	ResolvedAt time.Time       `json:"resolved_at"`
}

// IsResolved reports whether the state carries any current belief.
func (s *UserPreferenceState) IsResolved() bool {
	if s == nil {
		return false
	}
	if s.Dimension.IsExclusive() {
		return s.Exclusive != nil
	}
	return len(s.Members) > 0
}

// Values returns the believed values regardless of kind, for callers that
// only need membership (the dietary union, conflict reporting).
func (s *UserPreferenceState) Values() []string {
	if s == nil {
		return nil
	}
	if s.Dimension.IsExclusive() {
		if s.Exclusive == nil {
			return nil
		}
		return []string{s.Exclusive.Value}
	}
	values := make([]string, 0, len(s.Members))
	for _, member := range s.Members {
		values = append(values, member.Value)
	}
	return values
}

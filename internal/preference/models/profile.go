package models

import (
	"time"

	id "dinemate/pkg/domain"
)

// DimensionStatus classifies how a dimension aggregated across the group.
type DimensionStatus string

const (
	DimensionStatusResolved    DimensionStatus = "resolved"
	DimensionStatusUnresolved  DimensionStatus = "unresolved"
	DimensionStatusConflicting DimensionStatus = "conflicting"
)

// ProfileFlag marks a profile-wide condition the caller must handle.
type ProfileFlag string

const (
	// FlagNoMembers marks a profile computed for a group with zero current
	// members. Not an error: groups may transiently be empty.
	FlagNoMembers ProfileFlag = "no_members"
	// FlagPossiblyInfeasible marks a profile whose hard constraints matched
	// no restaurants on the last search. Set by the downstream filter, not
	// by aggregation itself.
	FlagPossiblyInfeasible ProfileFlag = "possibly_infeasible"
)

// DimensionConflict reports a dimension whose member values could not be
// reconciled. Conflicts are surfaced for the group chat to resolve
// socially, never silently dropped.
type DimensionConflict struct {
	Dimension Dimension `json:"dimension"`
	Values    []string  `json:"values"`
	Reason    string    `json:"reason"`
}

// RankedValue is one entry of a weighted-vote soft preference ranking.
type RankedValue struct {
	Value           string    `json:"value"`
	Weight          float64   `json:"weight"`
	Supporters      int       `json:"supporters"`
	FirstObservedAt time.Time `json:"first_observed_at"`
}

// HardConstraints is the stable, serializable view a downstream restaurant
// filter consumes: constraints every returned restaurant must satisfy.
type HardConstraints struct {
	// BudgetCeiling is the tightest member budget tier (1 cheapest .. 4
	// priciest); nil when unresolved or conflicting.
	BudgetCeiling *int `json:"budget_ceiling,omitempty"`
	// Dietary is the union of all members' restrictions; any single
	// member's restriction binds the whole group.
	Dietary []string `json:"dietary"`
	// RadiusKm is the tightest member travel radius; nil when unresolved
	// or conflicting.
	RadiusKm *int `json:"radius_km,omitempty"`
}

// GroupProfile is the aggregated preference profile for one group,
// deterministically derived from the current members' resolved states.
// It carries no hidden accumulated state: recomputing from the same inputs
// yields an identical profile.
type GroupProfile struct {
	GroupID id.GroupID  `json:"group_id"`
	Members []id.UserID `json:"members"`

	Statuses map[Dimension]DimensionStatus `json:"statuses"`

	BudgetTier *int     `json:"budget_tier,omitempty"`
	Dietary    []string `json:"dietary"`
	RadiusKm   *int     `json:"radius_km,omitempty"`

	Cuisine  []RankedValue `json:"cuisine"`
	Ambience []RankedValue `json:"ambience"`

	Conflicts []DimensionConflict `json:"conflicts"`
	Flags     []ProfileFlag       `json:"flags"`

	ComputedAt time.Time `json:"computed_at"`
}

// HardConstraints extracts the downstream filter view. Conflicting
// dimensions are excluded from hard filtering (they appear in Conflicts
// instead).
func (p *GroupProfile) HardConstraints() HardConstraints {
	hc := HardConstraints{Dietary: p.Dietary}
	if hc.Dietary == nil {
		hc.Dietary = []string{}
	}
	if p.Statuses[DimensionBudgetTier] == DimensionStatusResolved {
		hc.BudgetCeiling = p.BudgetTier
	}
	if p.Statuses[DimensionLocationRadius] == DimensionStatusResolved {
		hc.RadiusKm = p.RadiusKm
	}
	return hc
}

// RankedPreferences extracts the soft-preference view keyed by dimension.
func (p *GroupProfile) RankedPreferences() map[Dimension][]RankedValue {
	return map[Dimension][]RankedValue{
		DimensionCuisine:  p.Cuisine,
		DimensionAmbience: p.Ambience,
	}
}

// HasFlag reports whether the profile carries the given flag.
func (p *GroupProfile) HasFlag(flag ProfileFlag) bool {
	for _, f := range p.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// WithFlag returns a copy of the profile with the flag added (idempotent).
// Profiles are treated as immutable snapshots once published, so flagging
// produces a new value instead of mutating shared state.
func (p *GroupProfile) WithFlag(flag ProfileFlag) *GroupProfile {
	if p.HasFlag(flag) {
		return p
	}
	clone := *p
	clone.Flags = append(append([]ProfileFlag{}, p.Flags...), flag)
	return &clone
}

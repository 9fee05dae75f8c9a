// Package aggregator merges all current members' resolved preference states
// into one GroupPreferenceProfile.
//
// Aggregation is pure: it depends only on the member set and their states,
// never on the previous profile, so recomputation is idempotent and safe to
// abandon mid-flight.
package aggregator

import (
	"context"
	"sort"
	"strconv"
	"time"

	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	pstrings "dinemate/pkg/platform/strings"
	"dinemate/pkg/requestcontext"
)

// Aggregator combines per-user states into a group profile.
type Aggregator struct{}

// New creates an Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Aggregate builds the group profile from the current member set and their
// resolved states. States belonging to users outside members are ignored:
// a departed member's history stops influencing the group the moment they
// leave, without touching the signal log.
func (a *Aggregator) Aggregate(ctx context.Context, groupID id.GroupID, members []id.UserID, states []*models.UserPreferenceState) *models.GroupProfile {
	profile := &models.GroupProfile{
		GroupID:    groupID,
		Members:    sortedMembers(members),
		Statuses:   make(map[models.Dimension]models.DimensionStatus, len(models.Dimensions())),
		Dietary:    []string{},
		Cuisine:    []models.RankedValue{},
		Ambience:   []models.RankedValue{},
		Conflicts:  []models.DimensionConflict{},
		Flags:      []models.ProfileFlag{},
		ComputedAt: requestcontext.Now(ctx),
	}

	if len(members) == 0 {
		for _, dimension := range models.Dimensions() {
			profile.Statuses[dimension] = models.DimensionStatusUnresolved
		}
		profile.Flags = append(profile.Flags, models.FlagNoMembers)
		return profile
	}

	byDimension := bucketByDimension(members, states)

	profile.BudgetTier = a.aggregateTightest(profile, models.DimensionBudgetTier, byDimension[models.DimensionBudgetTier])
	profile.RadiusKm = a.aggregateTightest(profile, models.DimensionLocationRadius, byDimension[models.DimensionLocationRadius])
	profile.Dietary = a.aggregateUnion(profile, models.DimensionDietaryRestriction, byDimension[models.DimensionDietaryRestriction])
	profile.Cuisine = a.aggregateRanked(profile, models.DimensionCuisine, byDimension[models.DimensionCuisine])
	profile.Ambience = a.aggregateRanked(profile, models.DimensionAmbience, byDimension[models.DimensionAmbience])

	return profile
}

// bucketByDimension keeps only resolved states for current members.
func bucketByDimension(members []id.UserID, states []*models.UserPreferenceState) map[models.Dimension][]*models.UserPreferenceState {
	memberSet := make(map[id.UserID]struct{}, len(members))
	for _, member := range members {
		memberSet[member] = struct{}{}
	}

	buckets := make(map[models.Dimension][]*models.UserPreferenceState)
	for _, state := range states {
		if !state.IsResolved() {
			continue
		}
		if _, ok := memberSet[state.UserID]; !ok {
			continue
		}
		buckets[state.Dimension] = append(buckets[state.Dimension], state)
	}
	return buckets
}

// aggregateTightest resolves an exclusive hard-constraint dimension to the
// most restrictive (lowest) member value. Budget and radius are ceilings:
// the group can only go as far as its most constrained member. Values that
// don't parse as integers cannot be ordered against the others; that marks
// the whole dimension conflicting and keeps it out of hard filters.
func (a *Aggregator) aggregateTightest(profile *models.GroupProfile, dimension models.Dimension, states []*models.UserPreferenceState) *int {
	if len(states) == 0 {
		profile.Statuses[dimension] = models.DimensionStatusUnresolved
		return nil
	}

	tightest := 0
	found := false
	orderable := true
	raw := make([]string, 0, len(states))
	for _, state := range states {
		value := state.Exclusive.Value
		raw = append(raw, value)
		parsed, err := strconv.Atoi(value)
		if err != nil {
			orderable = false
			continue
		}
		if !found || parsed < tightest {
			tightest = parsed
			found = true
		}
	}

	// The conflict report carries every member value, including the ones
	// seen after the first unparsable value, so the group can see the whole
	// disagreement.
	if !orderable {
		profile.Statuses[dimension] = models.DimensionStatusConflicting
		profile.Conflicts = append(profile.Conflicts, models.DimensionConflict{
			Dimension: dimension,
			Values:    pstrings.DedupeAndTrimLower(raw),
			Reason:    "member values are not mutually orderable",
		})
		return nil
	}

	profile.Statuses[dimension] = models.DimensionStatusResolved
	return &tightest
}

// aggregateUnion resolves a set hard-constraint dimension to the union of
// member sets: any single member's restriction binds the whole group
// (conservative OR over "must avoid" semantics).
func (a *Aggregator) aggregateUnion(profile *models.GroupProfile, dimension models.Dimension, states []*models.UserPreferenceState) []string {
	if len(states) == 0 {
		profile.Statuses[dimension] = models.DimensionStatusUnresolved
		return []string{}
	}

	var all []string
	for _, state := range states {
		all = append(all, state.Values()...)
	}
	union := pstrings.DedupeAndTrimLower(all)
	sort.Strings(union)

	profile.Statuses[dimension] = models.DimensionStatusResolved
	return union
}

// voteTally accumulates the weighted vote for one soft-preference value.
type voteTally struct {
	weight     float64
	supporters int
	firstSeen  int64 // unix nanos of earliest contributing observation
}

// aggregateRanked resolves a soft-preference dimension to a ranked list by
// weighted vote: weight is the sum of members' resolved confidences for the
// value. Ties break by earliest first observation, then lexicographically,
// so the ranking is fully deterministic.
func (a *Aggregator) aggregateRanked(profile *models.GroupProfile, dimension models.Dimension, states []*models.UserPreferenceState) []models.RankedValue {
	if len(states) == 0 {
		profile.Statuses[dimension] = models.DimensionStatusUnresolved
		return []models.RankedValue{}
	}

	tallies := make(map[string]*voteTally)
	for _, state := range states {
		for _, member := range state.Members {
			tally := tallies[member.Value]
			if tally == nil {
				tally = &voteTally{firstSeen: member.FirstObservedAt.UnixNano()}
				tallies[member.Value] = tally
			}
			tally.weight += member.Confidence
			tally.supporters++
			if observed := member.FirstObservedAt.UnixNano(); observed < tally.firstSeen {
				tally.firstSeen = observed
			}
		}
	}

	ranked := make([]models.RankedValue, 0, len(tallies))
	for value, tally := range tallies {
		ranked = append(ranked, models.RankedValue{
			Value:           value,
			Weight:          tally.weight,
			Supporters:      tally.supporters,
			FirstObservedAt: unixNanoUTC(tally.firstSeen),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Weight != ranked[j].Weight {
			return ranked[i].Weight > ranked[j].Weight
		}
		if !ranked[i].FirstObservedAt.Equal(ranked[j].FirstObservedAt) {
			return ranked[i].FirstObservedAt.Before(ranked[j].FirstObservedAt)
		}
		return ranked[i].Value < ranked[j].Value
	})

	profile.Statuses[dimension] = models.DimensionStatusResolved
	return ranked
}

func unixNanoUTC(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}

func sortedMembers(members []id.UserID) []id.UserID {
	out := append([]id.UserID{}, members...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

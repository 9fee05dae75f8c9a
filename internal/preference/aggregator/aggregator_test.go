package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	"dinemate/pkg/requestcontext"
)

type AggregatorSuite struct {
	suite.Suite
	aggregator *Aggregator
	groupID    id.GroupID
	alice      id.UserID
	bob        id.UserID
	carol      id.UserID
	now        time.Time
	ctx        context.Context
}

func (s *AggregatorSuite) SetupTest() {
	s.aggregator = New()
	s.groupID = id.GroupID(uuid.New())
	s.alice = id.UserID(uuid.New())
	s.bob = id.UserID(uuid.New())
	s.carol = id.UserID(uuid.New())
	s.now = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) exclusiveState(user id.UserID, dimension models.Dimension, value string, confidence float64) *models.UserPreferenceState {
	return &models.UserPreferenceState{
		UserID:    user,
		GroupID:   s.groupID,
		Dimension: dimension,
		Exclusive: &models.ExclusiveValue{
			Value:      value,
			Confidence: confidence,
			ObservedAt: s.now.Add(-time.Hour),
		},
		Confidence: confidence,
		ResolvedAt: s.now,
	}
}

func (s *AggregatorSuite) setState(user id.UserID, dimension models.Dimension, members ...models.SetMember) *models.UserPreferenceState {
	state := &models.UserPreferenceState{
		UserID:     user,
		GroupID:    s.groupID,
		Dimension:  dimension,
		Members:    members,
		ResolvedAt: s.now,
	}
	for _, member := range members {
		if member.Confidence > state.Confidence {
			state.Confidence = member.Confidence
		}
	}
	return state
}

func (s *AggregatorSuite) member(value string, confidence float64, observedAgo time.Duration) models.SetMember {
	return models.SetMember{
		Value:           value,
		Confidence:      confidence,
		FirstObservedAt: s.now.Add(-observedAgo),
	}
}

// TestEmptyGroup verifies the zero-member profile shape.
func (s *AggregatorSuite) TestEmptyGroup() {
	profile := s.aggregator.Aggregate(s.ctx, s.groupID, nil, nil)

	s.True(profile.HasFlag(models.FlagNoMembers))
	for _, dimension := range models.Dimensions() {
		s.Equal(models.DimensionStatusUnresolved, profile.Statuses[dimension])
	}
	s.Nil(profile.BudgetTier)
	s.Empty(profile.Dietary)
	s.Empty(profile.Cuisine)
}

// TestBudgetAggregation verifies the tightest-member rule for budget tier.
func (s *AggregatorSuite) TestBudgetAggregation() {
	s.Run("takes the minimum member tier", func() {
		states := []*models.UserPreferenceState{
			s.exclusiveState(s.alice, models.DimensionBudgetTier, "2", 0.9),
			s.exclusiveState(s.bob, models.DimensionBudgetTier, "3", 0.8),
			s.exclusiveState(s.carol, models.DimensionBudgetTier, "1", 0.7),
		}
		profile := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice, s.bob, s.carol}, states)

		s.Require().NotNil(profile.BudgetTier)
		s.Equal(1, *profile.BudgetTier)
		s.Equal(models.DimensionStatusResolved, profile.Statuses[models.DimensionBudgetTier])
		s.Empty(profile.Conflicts)
	})

	s.Run("unorderable values mark the dimension conflicting", func() {
		states := []*models.UserPreferenceState{
			s.exclusiveState(s.alice, models.DimensionBudgetTier, "2", 0.9),
			s.exclusiveState(s.bob, models.DimensionBudgetTier, "cheap", 0.8),
		}
		profile := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice, s.bob}, states)

		s.Nil(profile.BudgetTier)
		s.Equal(models.DimensionStatusConflicting, profile.Statuses[models.DimensionBudgetTier])
		s.Require().Len(profile.Conflicts, 1)
		s.Equal(models.DimensionBudgetTier, profile.Conflicts[0].Dimension)
		s.ElementsMatch([]string{"2", "cheap"}, profile.Conflicts[0].Values)
	})

	s.Run("conflict report covers values after the unorderable one", func() {
		states := []*models.UserPreferenceState{
			s.exclusiveState(s.alice, models.DimensionBudgetTier, "cheap", 0.9),
			s.exclusiveState(s.bob, models.DimensionBudgetTier, "2", 0.8),
			s.exclusiveState(s.carol, models.DimensionBudgetTier, "3", 0.7),
		}
		profile := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice, s.bob, s.carol}, states)

		s.Nil(profile.BudgetTier)
		s.Require().Len(profile.Conflicts, 1)
		s.ElementsMatch([]string{"cheap", "2", "3"}, profile.Conflicts[0].Values)
	})

	s.Run("conflicting budget is excluded from hard constraints", func() {
		states := []*models.UserPreferenceState{
			s.exclusiveState(s.alice, models.DimensionBudgetTier, "2", 0.9),
			s.exclusiveState(s.bob, models.DimensionBudgetTier, "cheap", 0.8),
		}
		profile := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice, s.bob}, states)
		s.Nil(profile.HardConstraints().BudgetCeiling)
	})
}

// TestDietaryAggregation verifies union semantics: any single member's
// restriction binds the whole group.
func (s *AggregatorSuite) TestDietaryAggregation() {
	s.Run("unions member restrictions", func() {
		states := []*models.UserPreferenceState{
			s.setState(s.alice, models.DimensionDietaryRestriction, s.member("vegan", 0.9, time.Hour)),
			s.setState(s.bob, models.DimensionDietaryRestriction, s.member("gluten-free", 0.8, time.Hour)),
		}
		profile := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice, s.bob}, states)

		s.Equal([]string{"gluten-free", "vegan"}, profile.Dietary)
		s.Equal(models.DimensionStatusResolved, profile.Statuses[models.DimensionDietaryRestriction])
	})

	s.Run("deduplicates shared restrictions", func() {
		states := []*models.UserPreferenceState{
			s.setState(s.alice, models.DimensionDietaryRestriction, s.member("vegan", 0.9, time.Hour)),
			s.setState(s.bob, models.DimensionDietaryRestriction, s.member("vegan", 0.6, time.Hour)),
		}
		profile := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice, s.bob}, states)
		s.Equal([]string{"vegan"}, profile.Dietary)
	})

	s.Run("no states leaves dimension unresolved with empty union", func() {
		profile := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice}, nil)
		s.Empty(profile.Dietary)
		s.Equal(models.DimensionStatusUnresolved, profile.Statuses[models.DimensionDietaryRestriction])
	})
}

// TestRankedAggregation verifies weighted voting and its tie-breaks for
// cuisine and ambience.
func (s *AggregatorSuite) TestRankedAggregation() {
	s.Run("ranks by summed member confidence", func() {
		states := []*models.UserPreferenceState{
			s.setState(s.alice, models.DimensionCuisine,
				s.member("thai", 0.9, 3*time.Hour), s.member("italian", 0.4, 2*time.Hour)),
			s.setState(s.bob, models.DimensionCuisine,
				s.member("thai", 0.5, time.Hour)),
		}
		profile := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice, s.bob}, states)

		s.Require().Len(profile.Cuisine, 2)
		s.Equal("thai", profile.Cuisine[0].Value)
		s.InDelta(1.4, profile.Cuisine[0].Weight, 1e-9)
		s.Equal(2, profile.Cuisine[0].Supporters)
		s.Equal("italian", profile.Cuisine[1].Value)
	})

	s.Run("breaks weight ties by earliest observation", func() {
		states := []*models.UserPreferenceState{
			s.setState(s.alice, models.DimensionAmbience, s.member("quiet", 0.8, 5*time.Hour)),
			s.setState(s.bob, models.DimensionAmbience, s.member("lively", 0.8, time.Hour)),
		}
		profile := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice, s.bob}, states)

		s.Require().Len(profile.Ambience, 2)
		s.Equal("quiet", profile.Ambience[0].Value)
	})

	s.Run("breaks full ties lexicographically", func() {
		states := []*models.UserPreferenceState{
			s.setState(s.alice, models.DimensionCuisine, s.member("sushi", 0.7, time.Hour)),
			s.setState(s.bob, models.DimensionCuisine, s.member("mexican", 0.7, time.Hour)),
		}
		profile := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice, s.bob}, states)

		s.Require().Len(profile.Cuisine, 2)
		s.Equal("mexican", profile.Cuisine[0].Value)
		s.Equal("sushi", profile.Cuisine[1].Value)
	})
}

// TestMembershipScoping verifies departed members stop influencing the
// profile without their signals being deleted.
func (s *AggregatorSuite) TestMembershipScoping() {
	states := []*models.UserPreferenceState{
		s.exclusiveState(s.alice, models.DimensionBudgetTier, "3", 0.9),
		s.exclusiveState(s.bob, models.DimensionBudgetTier, "1", 0.9),
	}

	withBob := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice, s.bob}, states)
	s.Require().NotNil(withBob.BudgetTier)
	s.Equal(1, *withBob.BudgetTier)

	// Same states, Bob no longer a member.
	withoutBob := s.aggregator.Aggregate(s.ctx, s.groupID, []id.UserID{s.alice}, states)
	s.Require().NotNil(withoutBob.BudgetTier)
	s.Equal(3, *withoutBob.BudgetTier)
}

// TestDeterminism verifies two aggregations of the same inputs are
// identical.
func (s *AggregatorSuite) TestDeterminism() {
	states := []*models.UserPreferenceState{
		s.exclusiveState(s.alice, models.DimensionBudgetTier, "2", 0.9),
		s.setState(s.alice, models.DimensionCuisine, s.member("thai", 0.9, time.Hour)),
		s.setState(s.bob, models.DimensionCuisine, s.member("italian", 0.9, time.Hour)),
		s.setState(s.bob, models.DimensionDietaryRestriction, s.member("vegan", 0.8, time.Hour)),
	}
	members := []id.UserID{s.alice, s.bob}

	first := s.aggregator.Aggregate(s.ctx, s.groupID, members, states)
	second := s.aggregator.Aggregate(s.ctx, s.groupID, members, states)
	s.Equal(first, second)
}

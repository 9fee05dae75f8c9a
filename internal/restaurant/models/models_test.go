package models

import (
	"testing"

	"github.com/stretchr/testify/suite"

	prefmodels "dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
)

type ParamsSuite struct {
	suite.Suite
}

func TestParamsSuite(t *testing.T) {
	suite.Run(t, new(ParamsSuite))
}

func intPtr(v int) *int { return &v }

func (s *ParamsSuite) profile() *prefmodels.GroupProfile {
	return &prefmodels.GroupProfile{
		GroupID: id.NewGroupID(),
		Statuses: map[prefmodels.Dimension]prefmodels.DimensionStatus{
			prefmodels.DimensionBudgetTier:     prefmodels.DimensionStatusResolved,
			prefmodels.DimensionLocationRadius: prefmodels.DimensionStatusResolved,
		},
		BudgetTier: intPtr(2),
		RadiusKm:   intPtr(5),
		Dietary:    []string{"vegetarian"},
		Cuisine: []prefmodels.RankedValue{
			{Value: "thai", Weight: 2.1},
			{Value: "italian", Weight: 1.4},
			{Value: "mexican", Weight: 0.9},
			{Value: "ramen", Weight: 0.2},
		},
	}
}

func (s *ParamsSuite) TestHardConstraintsBoundTheSearch() {
	params := ParamsFromProfile(s.profile(), 0)

	s.Equal(2, params.MaxPrice)
	s.Zero(params.MinPrice)
	s.Equal(5000, params.RadiusMeters)
	s.Equal(DefaultLimit, params.Limit)
}

func (s *ParamsSuite) TestQueryTakesTopCuisinesAndDietary() {
	params := ParamsFromProfile(s.profile(), 20)

	s.Equal("thai italian mexican vegetarian", params.Query,
		"only the top three cuisines feed the query")
	s.Equal(20, params.Limit)
}

func (s *ParamsSuite) TestConflictingDimensionsDoNotConstrain() {
	profile := s.profile()
	profile.Statuses[prefmodels.DimensionBudgetTier] = prefmodels.DimensionStatusConflicting

	params := ParamsFromProfile(profile, 0)
	s.Zero(params.MaxPrice, "a conflicting budget must not filter venues")
	s.Equal(5000, params.RadiusMeters)
}

func (s *ParamsSuite) TestEmptyProfileYieldsOpenSearch() {
	profile := &prefmodels.GroupProfile{
		GroupID:  id.NewGroupID(),
		Statuses: map[prefmodels.Dimension]prefmodels.DimensionStatus{},
	}

	params := ParamsFromProfile(profile, 0)
	s.Zero(params.MaxPrice)
	s.Zero(params.RadiusMeters)
	s.Empty(params.Query)
	s.Equal(DefaultLimit, params.Limit)
}

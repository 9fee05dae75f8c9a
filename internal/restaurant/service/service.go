// Package service turns group profiles into restaurant recommendations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	prefmodels "dinemate/internal/preference/models"
	"dinemate/internal/restaurant/client"
	"dinemate/internal/restaurant/metrics"
	"dinemate/internal/restaurant/models"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
	"dinemate/pkg/platform/sentinel"
)

// ProfileSource serves the current aggregated profile for a group.
// Implemented by the profile publisher.
type ProfileSource interface {
	Get(ctx context.Context, groupID id.GroupID) (*prefmodels.GroupProfile, error)
}

// MembershipProvider reports a group's current members. Implemented by the
// group service; recommendations are member-only.
type MembershipProvider interface {
	CurrentMembers(ctx context.Context, groupID id.GroupID) ([]id.UserID, error)
}

// SearchOptions are caller-supplied knobs on one recommendation request.
type SearchOptions struct {
	Limit     int
	Latitude  float64
	Longitude float64
}

// Recommendation pairs the profile a search was derived from with the
// matching venues, so clients can show why these places were picked.
type Recommendation struct {
	Profile     *prefmodels.GroupProfile `json:"profile"`
	Restaurants []models.Restaurant      `json:"restaurants"`
}

type Service struct {
	profiles   ProfileSource
	membership MembershipProvider
	searcher   client.Searcher

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSearcher wires the venue API client. A nil searcher disables search:
// recommendations then carry the profile alone.
func WithSearcher(searcher client.Searcher) Option {
	return func(s *Service) {
		s.searcher = searcher
	}
}

func New(profiles ProfileSource, membership MembershipProvider, opts ...Option) (*Service, error) {
	if profiles == nil {
		return nil, fmt.Errorf("profile source is required")
	}
	if membership == nil {
		return nil, fmt.Errorf("membership provider is required")
	}

	svc := &Service{
		profiles:   profiles,
		membership: membership,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Recommend builds the group's profile-driven venue list. An empty result
// against a constrained profile flags the profile possibly infeasible so
// the group sees that their combined constraints may rule everything out.
func (s *Service) Recommend(ctx context.Context, groupID id.GroupID, callerID id.UserID, opts SearchOptions) (*Recommendation, error) {
	if err := s.requireMember(ctx, groupID, callerID); err != nil {
		return nil, err
	}

	profile, err := s.profiles.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if s.searcher == nil {
		return &Recommendation{Profile: profile, Restaurants: []models.Restaurant{}}, nil
	}

	params := models.ParamsFromProfile(profile, opts.Limit)
	params.Latitude = opts.Latitude
	params.Longitude = opts.Longitude

	started := time.Now()
	restaurants, err := s.searcher.Search(ctx, params)
	elapsed := time.Since(started)
	if err != nil {
		s.observeSearch("error", elapsed)
		if errors.Is(err, sentinel.ErrUnavailable) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "restaurant search is unavailable")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "restaurant search failed")
	}

	if len(restaurants) == 0 {
		s.observeSearch("empty", elapsed)
		if isConstrained(profile) {
			profile = profile.WithFlag(prefmodels.FlagPossiblyInfeasible)
			if s.metrics != nil {
				s.metrics.RecordInfeasible()
			}
		}
		return &Recommendation{Profile: profile, Restaurants: []models.Restaurant{}}, nil
	}

	s.observeSearch("ok", elapsed)
	return &Recommendation{Profile: profile, Restaurants: restaurants}, nil
}

func (s *Service) observeSearch(outcome string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveSearch(outcome, elapsed)
	}
}

func (s *Service) requireMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	if userID.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	members, err := s.membership.CurrentMembers(ctx, groupID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "group not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list members")
	}
	for _, member := range members {
		if member == userID {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "not a member of this group")
}

// isConstrained reports whether any hard constraint actually bounds the
// search. An unconstrained empty result just means a bad location, not an
// infeasible profile.
func isConstrained(profile *prefmodels.GroupProfile) bool {
	hc := profile.HardConstraints()
	return hc.BudgetCeiling != nil || hc.RadiusKm != nil || len(hc.Dietary) > 0
}

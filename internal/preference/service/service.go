// Package service coordinates the preference engine: signal intake, staleness
// notification, and full profile recomputation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dinemate/internal/preference/aggregator"
	"dinemate/internal/preference/metrics"
	"dinemate/internal/preference/models"
	"dinemate/internal/preference/resolver"
	"dinemate/internal/preference/store"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
	"dinemate/pkg/platform/sentinel"
)

// MembershipProvider reports a group's current member set. Implemented by
// the group service; aggregation scopes to current members so departed
// users stop influencing the profile without their history being deleted.
type MembershipProvider interface {
	CurrentMembers(ctx context.Context, groupID id.GroupID) ([]id.UserID, error)
}

// StaleListener is notified after a signal or membership change invalidates
// a group's profile. Listeners must be fast; slow work belongs on the
// listener's side of the channel.
type StaleListener func(groupID id.GroupID)

type Service struct {
	signals    store.SignalStore
	membership MembershipProvider
	resolver   *resolver.Resolver
	aggregator *aggregator.Aggregator

	// groupLocks serializes record-then-mark-stale per group so two
	// concurrent appends cannot interleave their staleness notifications
	// out of order with their writes.
	groupLocks sync.Map // id.GroupID -> *sync.Mutex

	mu        sync.RWMutex
	listeners []StaleListener

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
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

func New(signals store.SignalStore, membership MembershipProvider, res *resolver.Resolver, agg *aggregator.Aggregator, opts ...Option) (*Service, error) {
	if signals == nil {
		return nil, fmt.Errorf("signal store is required")
	}
	if membership == nil {
		return nil, fmt.Errorf("membership provider is required")
	}
	if res == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if agg == nil {
		return nil, fmt.Errorf("aggregator is required")
	}

	svc := &Service{
		signals:    signals,
		membership: membership,
		resolver:   res,
		aggregator: agg,
		logger:     slog.Default(),
		tracer:     otel.Tracer("dinemate/preference"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// OnStale registers a listener invoked after each profile invalidation.
// Registration is not concurrency-sensitive at startup but is safe anyway.
func (s *Service) OnStale(listener StaleListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *Service) lockFor(groupID id.GroupID) *sync.Mutex {
	lock, _ := s.groupLocks.LoadOrStore(groupID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Record validates and appends one signal, then marks the group's profile
// stale. The append and the notification happen under the group's lock so
// every observer that sees the staleness mark can also see the signal.
// A duplicate signal ID is reported as a conflict and changes nothing.
func (s *Service) Record(ctx context.Context, signal *models.Signal) error {
	if signal == nil {
		return dErrors.New(dErrors.CodeBadRequest, "signal is required")
	}
	if err := signal.Validate(); err != nil {
		return err
	}

	lock := s.lockFor(signal.GroupID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.signals.Record(ctx, signal); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return err
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "signal already recorded")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record signal")
	}

	if s.metrics != nil {
		s.metrics.RecordSignal(string(signal.Dimension), string(signal.Polarity))
	}
	s.logger.DebugContext(ctx, "preference signal recorded",
		"group_id", signal.GroupID,
		"user_id", signal.UserID,
		"dimension", signal.Dimension,
		"polarity", signal.Polarity,
	)

	s.notifyStale(signal.GroupID)
	return nil
}

// Invalidate marks a group's profile stale without recording a signal.
// Membership changes call this: joins and leaves change the aggregate even
// though no new signal exists.
func (s *Service) Invalidate(groupID id.GroupID) {
	s.notifyStale(groupID)
}

func (s *Service) notifyStale(groupID id.GroupID) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, listener := range listeners {
		listener(groupID)
	}
}

// Recompute derives the group's profile from scratch: snapshot the signal
// log, resolve each (user, dimension) key, aggregate across current
// members. It holds no locks while computing; the result reflects at least
// every signal recorded before the call.
func (s *Service) Recompute(ctx context.Context, groupID id.GroupID) (*models.GroupProfile, error) {
	ctx, span := s.tracer.Start(ctx, "preference.Recompute",
		trace.WithAttributes(attribute.String("group_id", groupID.String())))
	defer span.End()

	started := time.Now()
	profile, err := s.recompute(ctx, groupID)
	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.ObserveRecompute(outcome, time.Since(started))
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.metrics != nil {
		for _, conflict := range profile.Conflicts {
			s.metrics.RecordConflict(string(conflict.Dimension))
		}
	}
	s.logger.InfoContext(ctx, "group profile recomputed",
		"group_id", groupID,
		"members", len(profile.Members),
		"conflicts", len(profile.Conflicts),
		"flags", profile.Flags,
	)
	return profile, nil
}

func (s *Service) recompute(ctx context.Context, groupID id.GroupID) (*models.GroupProfile, error) {
	if groupID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "group_id is required")
	}

	members, err := s.membership.CurrentMembers(ctx, groupID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "group not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load group members")
	}

	signals, err := s.signals.ListForGroup(ctx, groupID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load group signals")
	}

	type key struct {
		userID    id.UserID
		dimension models.Dimension
	}
	buckets := make(map[key][]*models.Signal)
	var order []key
	for _, signal := range signals {
		k := key{userID: signal.UserID, dimension: signal.Dimension}
		if _, seen := buckets[k]; !seen {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], signal)
	}

	states := make([]*models.UserPreferenceState, 0, len(order))
	for _, k := range order {
		states = append(states, s.resolver.Resolve(ctx, k.userID, groupID, k.dimension, buckets[k]))
	}

	return s.aggregator.Aggregate(ctx, groupID, members, states), nil
}

// ResolveUser exposes one user's resolved state per dimension, for the
// profile inspection endpoint.
func (s *Service) ResolveUser(ctx context.Context, userID id.UserID, groupID id.GroupID) ([]*models.UserPreferenceState, error) {
	if userID.IsZero() || groupID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user_id and group_id are required")
	}

	states := make([]*models.UserPreferenceState, 0, len(models.Dimensions()))
	for _, dimension := range models.Dimensions() {
		signals, err := s.signals.ListFor(ctx, userID, groupID, dimension)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load signal history")
		}
		states = append(states, s.resolver.Resolve(ctx, userID, groupID, dimension, signals))
	}
	return states, nil
}

// Package publisher owns the lifecycle of published group profiles: caching,
// staleness, recompute scheduling, subscriber callbacks and the
// profile.changed event stream.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dinemate/internal/platform/config"
	"dinemate/internal/preference/metrics"
	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
)

// Recomputer derives a fresh profile from the signal log. Implemented by the
// preference service.
type Recomputer interface {
	Recompute(ctx context.Context, groupID id.GroupID) (*models.GroupProfile, error)
}

// ProfileCache stores serialized profiles out of process so replicas share
// recompute work. Implemented by the Redis-backed cache; nil disables the
// shared layer and the publisher runs on its in-process cache alone.
type ProfileCache interface {
	Get(ctx context.Context, groupID id.GroupID) (*models.GroupProfile, error)
	Set(ctx context.Context, profile *models.GroupProfile) error
	Delete(ctx context.Context, groupID id.GroupID) error
}

// Subscriber receives every published profile change for a group. Delivery
// is at-least-once: a subscriber may see the same profile twice and must
// treat delivery idempotently.
type Subscriber func(profile *models.GroupProfile)

// EventSink emits the profile.changed integration event. Implemented by the
// Kafka publisher; nil drops events.
type EventSink interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type entry struct {
	profile *models.GroupProfile
	stale   bool
}

// Publisher serves the current profile per group, recomputing lazily on
// stale reads or eagerly on invalidation depending on mode.
type Publisher struct {
	recomputer Recomputer
	cfg        config.Publisher

	mu      sync.RWMutex
	entries map[id.GroupID]*entry
	// generations counts invalidations per group. A recompute captures the
	// generation before reading the signal log; an invalidation that lands
	// while the recompute runs bumps it, and the write-back then installs
	// the result stale so a later read reconverges.
	generations map[id.GroupID]uint64

	group singleflight.Group

	shared ProfileCache
	events EventSink
	topic  string

	subMu       sync.RWMutex
	subscribers map[id.GroupID][]Subscriber

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithSharedCache adds a cross-replica profile cache.
func WithSharedCache(cache ProfileCache) Option {
	return func(p *Publisher) {
		p.shared = cache
	}
}

// WithEventSink emits profile.changed events to the given topic.
func WithEventSink(sink EventSink, topic string) Option {
	return func(p *Publisher) {
		p.events = sink
		p.topic = topic
	}
}

func New(recomputer Recomputer, cfg config.Publisher, opts ...Option) (*Publisher, error) {
	if recomputer == nil {
		return nil, fmt.Errorf("recomputer is required")
	}
	if cfg.Mode != config.PublisherModeLazy && cfg.Mode != config.PublisherModeEager {
		return nil, fmt.Errorf("unrecognized publisher mode %q", cfg.Mode)
	}
	if cfg.RecomputeTries < 1 {
		cfg.RecomputeTries = 1
	}

	p := &Publisher{
		recomputer:  recomputer,
		cfg:         cfg,
		entries:     make(map[id.GroupID]*entry),
		generations: make(map[id.GroupID]uint64),
		subscribers: make(map[id.GroupID][]Subscriber),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Get returns the group's current profile. A fresh cached profile is served
// directly; a stale or missing one triggers recomputation. Concurrent
// requests for the same stale group share one recompute via singleflight.
//
// When every recompute attempt fails and a last-good profile exists, that
// profile is served rather than failing the read. The caller cannot tell
// except by ComputedAt; group dining tolerates bounded staleness better
// than an error page.
func (p *Publisher) Get(ctx context.Context, groupID id.GroupID) (*models.GroupProfile, error) {
	if groupID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "group_id is required")
	}

	p.mu.RLock()
	cached := p.entries[groupID]
	p.mu.RUnlock()

	if cached != nil && !cached.stale {
		return cached.profile, nil
	}

	if cached == nil && p.shared != nil {
		gen := p.generation(groupID)
		if profile, err := p.shared.Get(ctx, groupID); err == nil && profile != nil {
			p.store(groupID, profile, gen)
			return profile, nil
		}
	}

	profile, err := p.refresh(ctx, groupID)
	if err != nil {
		if cached != nil {
			p.logger.WarnContext(ctx, "serving last-good stale profile",
				"group_id", groupID, "error", err)
			if p.metrics != nil {
				p.metrics.StaleServed.Inc()
			}
			return cached.profile, nil
		}
		return nil, err
	}
	return profile, nil
}

// Invalidate marks the group's profile stale. In eager mode it also kicks
// off recomputation immediately so the next read is already fresh. Safe to
// call from the service's stale listener.
func (p *Publisher) Invalidate(groupID id.GroupID) {
	p.mu.Lock()
	p.generations[groupID]++
	if cached, ok := p.entries[groupID]; ok {
		cached.stale = true
	}
	p.mu.Unlock()

	if p.shared != nil {
		// Best effort: a failed delete just means another replica serves
		// one more stale read before its own invalidation lands.
		if err := p.shared.Delete(context.Background(), groupID); err != nil {
			p.logger.Warn("shared cache invalidation failed", "group_id", groupID, "error", err)
		}
	}

	if p.cfg.Mode == config.PublisherModeEager {
		go func() {
			if _, err := p.refresh(context.Background(), groupID); err != nil {
				p.logger.Warn("eager recompute failed", "group_id", groupID, "error", err)
			}
		}()
	}
}

// Subscribe registers a callback for the group's future profile changes.
// The returned cancel function removes the subscription.
func (p *Publisher) Subscribe(groupID id.GroupID, subscriber Subscriber) (cancel func()) {
	p.subMu.Lock()
	p.subscribers[groupID] = append(p.subscribers[groupID], subscriber)
	index := len(p.subscribers[groupID]) - 1
	p.subMu.Unlock()

	return func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		subs := p.subscribers[groupID]
		if index < len(subs) && subs[index] != nil {
			subs[index] = nil
		}
	}
}

// refresh recomputes the group's profile with retries, publishes it, and
// notifies subscribers. Deduplicated per group across goroutines. The
// generation is captured before the recompute reads the signal log: if an
// invalidation overtakes the recompute, the result is installed stale and
// the next read recomputes again.
func (p *Publisher) refresh(ctx context.Context, groupID id.GroupID) (*models.GroupProfile, error) {
	result, err, _ := p.group.Do(groupID.String(), func() (any, error) {
		gen := p.generation(groupID)
		profile, err := p.recomputeWithRetry(ctx, groupID)
		if err != nil {
			return nil, err
		}
		p.publish(ctx, profile, gen)
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.GroupProfile), nil
}

func (p *Publisher) recomputeWithRetry(ctx context.Context, groupID id.GroupID) (*models.GroupProfile, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.RecomputeTries; attempt++ {
		if attempt > 0 {
			if p.metrics != nil {
				p.metrics.PublishRetries.Inc()
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetryBackoff << (attempt - 1)):
			}
		}
		profile, err := p.recomputer.Recompute(ctx, groupID)
		if err == nil {
			return profile, nil
		}
		// Domain rejections (unknown group, bad input) will not improve
		// with retries.
		if code := dErrors.CodeOf(err); code == dErrors.CodeNotFound || code == dErrors.CodeBadRequest {
			return nil, err
		}
		lastErr = err
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeUnavailable, "profile recomputation failed")
}

// publish installs the profile, writes through to the shared cache, emits
// profile.changed and invokes subscribers. A profile overtaken by an
// invalidation mid-recompute is installed stale and kept out of the shared
// cache so no replica mistakes it for fresh.
func (p *Publisher) publish(ctx context.Context, profile *models.GroupProfile, gen uint64) {
	stale := p.store(profile.GroupID, profile, gen)

	if p.metrics != nil {
		p.metrics.ProfilesPublished.Inc()
	}

	if p.shared != nil && !stale {
		if err := p.shared.Set(ctx, profile); err != nil {
			p.logger.WarnContext(ctx, "shared cache write failed",
				"group_id", profile.GroupID, "error", err)
		}
	}

	if p.events != nil {
		payload, err := json.Marshal(profile)
		if err == nil {
			err = p.events.Publish(ctx, p.topic, []byte(profile.GroupID.String()), payload)
		}
		if err != nil {
			p.logger.WarnContext(ctx, "profile.changed emit failed",
				"group_id", profile.GroupID, "error", err)
		}
	}

	p.subMu.RLock()
	subs := append([]Subscriber{}, p.subscribers[profile.GroupID]...)
	p.subMu.RUnlock()
	for _, subscriber := range subs {
		if subscriber != nil {
			subscriber(profile)
		}
	}
}

func (p *Publisher) generation(groupID id.GroupID) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generations[groupID]
}

// store installs the profile, stale when an invalidation arrived after gen
// was captured. Reports whether the stored entry is stale.
func (p *Publisher) store(groupID id.GroupID, profile *models.GroupProfile, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	stale := p.generations[groupID] != gen
	p.entries[groupID] = &entry{profile: profile, stale: stale}
	return stale
}

// Package resolver collapses one user's signal history per dimension into a
// single current belief (UserPreferenceState).
//
// Resolution is a pure fold over the key's signals in observed_at order:
// replaying the same history at the same reference time always yields the
// same state.
package resolver

import (
	"context"
	"math"
	"sort"
	"time"

	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
	"dinemate/pkg/requestcontext"
)

// Policy holds the resolution tuning knobs. These come from configuration;
// the zero value is not usable, call DefaultPolicy.
type Policy struct {
	// DecayHalfLife halves a set signal's effective confidence per elapsed
	// interval since observed_at.
	DecayHalfLife time.Duration
	// ConfidenceFloor is the minimum decayed confidence for a set value to
	// stay in the resolved state. Old unconfirmed values fade below the
	// floor rather than vanishing abruptly.
	ConfidenceFloor float64
	// FlipMargin scales the prior belief's decayed confidence when deciding
	// whether a newer exclusive-value signal replaces it. Below 1.0 it
	// biases toward accepting fresh information; above 1.0 toward keeping
	// the established value.
	FlipMargin float64
}

// DefaultPolicy returns the defaults validated in early usage: 14-day
// half-life, 0.4 floor, 0.75 flip margin.
func DefaultPolicy() Policy {
	return Policy{
		DecayHalfLife:   14 * 24 * time.Hour,
		ConfidenceFloor: 0.4,
		FlipMargin:      0.75,
	}
}

func (p Policy) validate() error {
	if p.DecayHalfLife <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "decay half-life must be positive")
	}
	if p.ConfidenceFloor < 0 || p.ConfidenceFloor > 1 {
		return dErrors.New(dErrors.CodeInvariantViolation, "confidence floor must be in [0,1]")
	}
	if p.FlipMargin <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "flip margin must be positive")
	}
	return nil
}

// Resolver derives UserPreferenceState from signal history.
type Resolver struct {
	policy Policy
}

// New creates a resolver with the given policy.
func New(policy Policy) (*Resolver, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	return &Resolver{policy: policy}, nil
}

// Decay returns the effective confidence of a signal observed at observedAt
// when evaluated at now: confidence * 2^(-elapsed/halfLife). It strictly
// decreases with elapsed time and approaches zero without reaching it.
func (r *Resolver) Decay(confidence float64, observedAt, now time.Time) float64 {
	elapsed := now.Sub(observedAt)
	if elapsed <= 0 {
		return clamp(confidence)
	}
	factor := math.Exp2(-float64(elapsed) / float64(r.policy.DecayHalfLife))
	return clamp(confidence * factor)
}

// Resolve folds the key's ordered signal history into its current state.
// Signals must all share the (user, group, dimension) key and be ordered by
// observed_at ascending, as returned by the store. The reference time for
// decay is taken from ctx (requestcontext.Now) so recomputation is
// reproducible.
func (r *Resolver) Resolve(ctx context.Context, userID id.UserID, groupID id.GroupID, dimension models.Dimension, signals []*models.Signal) *models.UserPreferenceState {
	now := requestcontext.Now(ctx)
	state := &models.UserPreferenceState{
		UserID:     userID,
		GroupID:    groupID,
		Dimension:  dimension,
		ResolvedAt: now,
	}
	if len(signals) == 0 {
		return state
	}

	if dimension.IsExclusive() {
		r.resolveExclusive(state, signals, now)
	} else {
		r.resolveSet(state, signals, now)
	}
	return state
}

// resolveExclusive keeps the most recent signal's value, unless the new
// signal's confidence falls short of the prior belief's decay-adjusted
// threshold. One low-confidence utterance cannot flip an established
// preference; the belief only erodes as the prior's decayed confidence
// drops. An explicit negation of the current value clears the belief.
func (r *Resolver) resolveExclusive(state *models.UserPreferenceState, signals []*models.Signal, now time.Time) {
	var current *models.ExclusiveValue

	for _, signal := range signals {
		switch {
		case signal.Polarity == models.PolarityNegative:
			if current != nil && current.Value == signal.Value {
				current = nil
			}
		case current == nil || current.Value == signal.Value:
			current = &models.ExclusiveValue{
				Value:      signal.Value,
				Confidence: clamp(signal.Confidence),
				ObservedAt: signal.ObservedAt,
			}
		default:
			threshold := r.Decay(current.Confidence, current.ObservedAt, signal.ObservedAt) * r.policy.FlipMargin
			if signal.Confidence >= threshold {
				current = &models.ExclusiveValue{
					Value:      signal.Value,
					Confidence: clamp(signal.Confidence),
					ObservedAt: signal.ObservedAt,
				}
			}
			// Otherwise retain the prior value untouched.
		}
	}

	state.Exclusive = current
	if current != nil {
		state.Confidence = current.Confidence
	}
}

// setSupport tracks the surviving supports for one set value while folding
// history. A negation wipes supports accumulated so far; later positive
// signals may re-add the value.
type setSupport struct {
	confidences []float64
	observedAts []time.Time
	firstSeen   time.Time
}

// resolveSet unions all supported values whose strongest decayed support
// stays at or above the confidence floor. Explicit negations remove a value
// regardless of how strong its prior decayed support is.
func (r *Resolver) resolveSet(state *models.UserPreferenceState, signals []*models.Signal, now time.Time) {
	supports := make(map[string]*setSupport)

	for _, signal := range signals {
		if signal.Polarity == models.PolarityNegative {
			delete(supports, signal.Value)
			continue
		}
		support := supports[signal.Value]
		if support == nil {
			support = &setSupport{firstSeen: signal.ObservedAt}
			supports[signal.Value] = support
		}
		support.confidences = append(support.confidences, signal.Confidence)
		support.observedAts = append(support.observedAts, signal.ObservedAt)
	}

	members := make([]models.SetMember, 0, len(supports))
	for value, support := range supports {
		best := 0.0
		for i, confidence := range support.confidences {
			if decayed := r.Decay(confidence, support.observedAts[i], now); decayed > best {
				best = decayed
			}
		}
		if best < r.policy.ConfidenceFloor {
			continue
		}
		members = append(members, models.SetMember{
			Value:           value,
			Confidence:      best,
			FirstObservedAt: support.firstSeen,
		})
	}

	// Stable order by value so two resolutions of the same history are
	// bit-identical.
	sort.Slice(members, func(i, j int) bool { return members[i].Value < members[j].Value })

	state.Members = members
	for _, member := range members {
		if member.Confidence > state.Confidence {
			state.Confidence = member.Confidence
		}
	}
}

func clamp(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

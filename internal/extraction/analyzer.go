// Package extraction turns chat messages into preference signals.
//
// Two analyzers exist: an LLM-backed one and a keyword fallback. The
// worker prefers the LLM and degrades to keywords when the LLM is
// unreachable, so preference learning never fully stops.
package extraction

import (
	"context"

	"dinemate/internal/preference/models"
)

// SignalDraft is an extracted preference observation before it is bound to
// a user, group and source message.
type SignalDraft struct {
	Dimension  models.Dimension `json:"dimension"`
	Value      string           `json:"value"`
	Polarity   models.Polarity  `json:"polarity"`
	Confidence float64          `json:"confidence"`
}

// Analyzer extracts preference drafts from one message. A message with no
// preference content returns an empty slice, not an error.
type Analyzer interface {
	Analyze(ctx context.Context, content string) ([]SignalDraft, error)
}

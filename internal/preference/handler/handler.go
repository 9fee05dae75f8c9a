// Package handler exposes the preference engine over HTTP: explicit signal
// intake, the aggregated group profile, and a member's own resolved state.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
	"dinemate/pkg/platform/httputil"
	"dinemate/pkg/platform/sentinel"
	"dinemate/pkg/requestcontext"
)

// explicitConfidence is the confidence assigned to a preference the user
// states directly through the API rather than in passing conversation.
const explicitConfidence = 1.0

// Service defines the preference operations the handler needs.
type Service interface {
	Record(ctx context.Context, signal *models.Signal) error
	ResolveUser(ctx context.Context, userID id.UserID, groupID id.GroupID) ([]*models.UserPreferenceState, error)
}

// ProfileSource serves aggregated group profiles. Implemented by the
// profile publisher.
type ProfileSource interface {
	Get(ctx context.Context, groupID id.GroupID) (*models.GroupProfile, error)
}

// MembershipProvider guards the endpoints: only current members may record
// signals or read profiles. Implemented by the group service.
type MembershipProvider interface {
	CurrentMembers(ctx context.Context, groupID id.GroupID) ([]id.UserID, error)
}

// Handler wires preference endpoints to the engine.
type Handler struct {
	service    Service
	profiles   ProfileSource
	membership MembershipProvider
	logger     *slog.Logger
}

// New constructs a preference handler.
func New(service Service, profiles ProfileSource, membership MembershipProvider, logger *slog.Logger) *Handler {
	return &Handler{service: service, profiles: profiles, membership: membership, logger: logger}
}

// Register mounts the preference endpoints. All routes require
// authentication. Patterns are registered flat because the group handler
// owns the /groups/{groupID} subrouter.
func (h *Handler) Register(r chi.Router) {
	r.Post("/groups/{groupID}/signals", h.HandleRecordSignal)
	r.Get("/groups/{groupID}/profile", h.HandleGetProfile)
	r.Get("/groups/{groupID}/preferences", h.HandleGetOwnPreferences)
}

type recordSignalRequest struct {
	Dimension  models.Dimension `json:"dimension"`
	Value      string           `json:"value"`
	Polarity   models.Polarity  `json:"polarity"`
	Confidence *float64         `json:"confidence"`
}

// HandleRecordSignal handles POST /groups/{groupID}/signals.
func (h *Handler) HandleRecordSignal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID := requestcontext.UserID(ctx)
	if err := h.requireMember(ctx, groupID, userID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Decode[recordSignalRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}
	confidence := explicitConfidence
	if req.Confidence != nil {
		confidence = *req.Confidence
	}

	signal, err := models.NewSignal(
		id.NewSignalID(),
		userID,
		groupID,
		req.Dimension,
		req.Value,
		req.Polarity,
		confidence,
		id.MessageID{},
		requestcontext.Now(ctx),
	)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Record(ctx, signal); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, signal)
}

// HandleGetProfile handles GET /groups/{groupID}/profile.
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.requireMember(ctx, groupID, requestcontext.UserID(ctx)); err != nil {
		httputil.WriteError(w, err)
		return
	}

	profile, err := h.profiles.Get(ctx, groupID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

type preferencesResponse struct {
	Preferences []*models.UserPreferenceState `json:"preferences"`
}

// HandleGetOwnPreferences handles GET /groups/{groupID}/preferences: the
// caller's own resolved state per dimension.
func (h *Handler) HandleGetOwnPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID := requestcontext.UserID(ctx)
	if err := h.requireMember(ctx, groupID, userID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	states, err := h.service.ResolveUser(ctx, userID, groupID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, preferencesResponse{Preferences: states})
}

func (h *Handler) requireMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	if userID.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	members, err := h.membership.CurrentMembers(ctx, groupID)
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

// Package handler exposes group lifecycle and chat over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dinemate/internal/group/models"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
	"dinemate/pkg/platform/httputil"
	"dinemate/pkg/requestcontext"
)

// Service defines the group operations the handler needs.
type Service interface {
	Create(ctx context.Context, name, description string, creatorID id.UserID) (*models.Group, error)
	Get(ctx context.Context, groupID id.GroupID, callerID id.UserID) (*models.Group, error)
	ListForUser(ctx context.Context, userID id.UserID) ([]*models.Group, error)
	CurrentMembers(ctx context.Context, groupID id.GroupID) ([]id.UserID, error)
	Join(ctx context.Context, inviteCode string, userID id.UserID) (*models.Group, error)
	Leave(ctx context.Context, groupID id.GroupID, userID id.UserID) error
	SelectRestaurant(ctx context.Context, groupID id.GroupID, callerID id.UserID, restaurant string) (*models.Group, error)
	SendMessage(ctx context.Context, groupID id.GroupID, userID id.UserID, messageType models.MessageType, content string) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, groupID id.GroupID, callerID id.UserID, limit int) ([]*models.ChatMessage, error)
}

// Handler wires group endpoints to the group service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a group handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts group endpoints on the router. The router is expected to
// already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/groups", h.HandleCreate)
	r.Get("/groups", h.HandleList)
	r.Post("/groups/join", h.HandleJoin)
	r.Route("/groups/{groupID}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/leave", h.HandleLeave)
		r.Post("/selection", h.HandleSelect)
		r.Post("/messages", h.HandleSendMessage)
		r.Get("/messages", h.HandleListMessages)
	})
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HandleCreate handles POST /groups.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[createRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	group, err := h.service.Create(ctx, req.Name, req.Description, requestcontext.UserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, group)
}

// HandleList handles GET /groups.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groups, err := h.service.ListForUser(ctx, requestcontext.UserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if groups == nil {
		groups = []*models.Group{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// HandleGet handles GET /groups/{groupID}. The response includes the
// current member list alongside the group itself.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	group, err := h.service.Get(ctx, groupID, requestcontext.UserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	members, err := h.service.CurrentMembers(ctx, groupID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"group":   group,
		"members": members,
	})
}

type joinRequest struct {
	InviteCode string `json:"invite_code"`
}

// HandleJoin handles POST /groups/join.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[joinRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}
	if req.InviteCode == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invite_code is required"))
		return
	}

	group, err := h.service.Join(ctx, req.InviteCode, requestcontext.UserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, group)
}

// HandleLeave handles POST /groups/{groupID}/leave.
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Leave(ctx, groupID, requestcontext.UserID(ctx)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusNoContent, nil)
}

type selectRequest struct {
	Restaurant string `json:"restaurant"`
}

// HandleSelect handles POST /groups/{groupID}/selection.
func (h *Handler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Decode[selectRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	group, err := h.service.SelectRestaurant(ctx, groupID, requestcontext.UserID(ctx), req.Restaurant)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, group)
}

type sendMessageRequest struct {
	Type    models.MessageType `json:"type"`
	Content string             `json:"content"`
}

// HandleSendMessage handles POST /groups/{groupID}/messages.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Decode[sendMessageRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	message, err := h.service.SendMessage(ctx, groupID, requestcontext.UserID(ctx), req.Type, req.Content)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, message)
}

// HandleListMessages handles GET /groups/{groupID}/messages?limit=N.
func (h *Handler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	messages, err := h.service.ListMessages(ctx, groupID, requestcontext.UserID(ctx), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

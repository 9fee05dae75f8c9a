// Package handler exposes restaurant recommendations over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dinemate/internal/restaurant/service"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
	"dinemate/pkg/platform/httputil"
	"dinemate/pkg/requestcontext"
)

// maxLimit caps one recommendation response.
const maxLimit = 50

// Service defines the recommendation operation the handler needs.
type Service interface {
	Recommend(ctx context.Context, groupID id.GroupID, callerID id.UserID, opts service.SearchOptions) (*service.Recommendation, error)
}

// Handler wires the recommendation endpoint to the restaurant service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a restaurant handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the recommendation endpoint. All routes require
// authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/groups/{groupID}/recommendations", h.HandleRecommend)
}

// HandleRecommend handles GET /groups/{groupID}/recommendations.
func (h *Handler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	opts, err := parseSearchOptions(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	recommendation, err := h.service.Recommend(ctx, groupID, requestcontext.UserID(ctx), opts)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recommendation)
}

func parseSearchOptions(r *http.Request) (service.SearchOptions, error) {
	var opts service.SearchOptions

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			return opts, dErrors.Newf(dErrors.CodeBadRequest, "limit must be an integer between 1 and %d", maxLimit)
		}
		opts.Limit = limit
	}

	lat, lng := r.URL.Query().Get("lat"), r.URL.Query().Get("lng")
	if (lat == "") != (lng == "") {
		return opts, dErrors.New(dErrors.CodeBadRequest, "lat and lng must be provided together")
	}
	if lat != "" {
		parsedLat, err := strconv.ParseFloat(lat, 64)
		if err != nil || parsedLat < -90 || parsedLat > 90 {
			return opts, dErrors.New(dErrors.CodeBadRequest, "lat must be a number between -90 and 90")
		}
		parsedLng, err := strconv.ParseFloat(lng, 64)
		if err != nil || parsedLng < -180 || parsedLng > 180 {
			return opts, dErrors.New(dErrors.CodeBadRequest, "lng must be a number between -180 and 180")
		}
		opts.Latitude = parsedLat
		opts.Longitude = parsedLng
	}
	return opts, nil
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	"dinemate/pkg/platform/sentinel"
	"dinemate/pkg/requestcontext"
)

type stubService struct {
	recorded []*models.Signal
	states   []*models.UserPreferenceState
}

func (s *stubService) Record(_ context.Context, signal *models.Signal) error {
	s.recorded = append(s.recorded, signal)
	return nil
}

func (s *stubService) ResolveUser(_ context.Context, _ id.UserID, _ id.GroupID) ([]*models.UserPreferenceState, error) {
	return s.states, nil
}

type stubProfiles struct {
	profile *models.GroupProfile
}

func (p *stubProfiles) Get(_ context.Context, _ id.GroupID) (*models.GroupProfile, error) {
	return p.profile, nil
}

type stubMembership struct {
	members map[id.GroupID][]id.UserID
}

func (m *stubMembership) CurrentMembers(_ context.Context, groupID id.GroupID) ([]id.UserID, error) {
	members, ok := m.members[groupID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return members, nil
}

// asUser injects an authenticated user, standing in for the JWT middleware.
func asUser(userID id.UserID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(r.Context(), userID)))
		})
	}
}

func newRouter(t *testing.T, userID id.UserID, svc *stubService, profiles *stubProfiles, membership *stubMembership) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	h := New(svc, profiles, membership, logger)
	r := chi.NewRouter()
	r.Use(asUser(userID))
	h.Register(r)
	return r
}

func TestRecordExplicitSignal(t *testing.T) {
	member := id.NewUserID()
	groupID := id.NewGroupID()
	svc := &stubService{}
	membership := &stubMembership{members: map[id.GroupID][]id.UserID{groupID: {member}}}
	router := newRouter(t, member, svc, &stubProfiles{}, membership)

	body, _ := json.Marshal(map[string]any{"dimension": "cuisine", "value": "Thai"})
	req := httptest.NewRequest(http.MethodPost, "/groups/"+groupID.String()+"/signals", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if len(svc.recorded) != 1 {
		t.Fatalf("expected 1 recorded signal, got %d", len(svc.recorded))
	}
	signal := svc.recorded[0]
	if signal.UserID != member || signal.GroupID != groupID {
		t.Fatalf("signal not bound to caller and group: %+v", signal)
	}
	if signal.Value != "thai" {
		t.Fatalf("expected normalized value %q, got %q", "thai", signal.Value)
	}
	if signal.Polarity != models.PolarityPositive {
		t.Fatalf("expected default positive polarity, got %q", signal.Polarity)
	}
	if signal.Confidence != 1.0 {
		t.Fatalf("expected explicit confidence 1.0, got %v", signal.Confidence)
	}
}

func TestRecordSignalWithExplicitConfidenceAndPolarity(t *testing.T) {
	member := id.NewUserID()
	groupID := id.NewGroupID()
	svc := &stubService{}
	membership := &stubMembership{members: map[id.GroupID][]id.UserID{groupID: {member}}}
	router := newRouter(t, member, svc, &stubProfiles{}, membership)

	body, _ := json.Marshal(map[string]any{
		"dimension": "dietary_restriction", "value": "vegetarian",
		"polarity": "negative", "confidence": 0.8,
	})
	req := httptest.NewRequest(http.MethodPost, "/groups/"+groupID.String()+"/signals", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	signal := svc.recorded[0]
	if signal.Polarity != models.PolarityNegative || signal.Confidence != 0.8 {
		t.Fatalf("explicit polarity/confidence not honored: %+v", signal)
	}
}

func TestRecordSignalRejectsUnknownDimension(t *testing.T) {
	member := id.NewUserID()
	groupID := id.NewGroupID()
	membership := &stubMembership{members: map[id.GroupID][]id.UserID{groupID: {member}}}
	router := newRouter(t, member, &stubService{}, &stubProfiles{}, membership)

	body, _ := json.Marshal(map[string]any{"dimension": "star_sign", "value": "leo"})
	req := httptest.NewRequest(http.MethodPost, "/groups/"+groupID.String()+"/signals", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown dimension, got %d", rec.Code)
	}
}

func TestNonMemberIsForbidden(t *testing.T) {
	member := id.NewUserID()
	outsider := id.NewUserID()
	groupID := id.NewGroupID()
	membership := &stubMembership{members: map[id.GroupID][]id.UserID{groupID: {member}}}
	router := newRouter(t, outsider, &stubService{}, &stubProfiles{}, membership)

	req := httptest.NewRequest(http.MethodGet, "/groups/"+groupID.String()+"/profile", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d", rec.Code)
	}
}

func TestGetProfile(t *testing.T) {
	member := id.NewUserID()
	groupID := id.NewGroupID()
	membership := &stubMembership{members: map[id.GroupID][]id.UserID{groupID: {member}}}
	profiles := &stubProfiles{profile: &models.GroupProfile{
		GroupID:    groupID,
		Members:    []id.UserID{member},
		Statuses:   map[models.Dimension]models.DimensionStatus{},
		ComputedAt: time.Now().UTC(),
	}}
	router := newRouter(t, member, &stubService{}, profiles, membership)

	req := httptest.NewRequest(http.MethodGet, "/groups/"+groupID.String()+"/profile", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var profile struct {
		GroupID string `json:"group_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.GroupID != groupID.String() {
		t.Fatalf("expected profile for group %s, got %s", groupID, profile.GroupID)
	}
}

func TestGetOwnPreferences(t *testing.T) {
	member := id.NewUserID()
	groupID := id.NewGroupID()
	membership := &stubMembership{members: map[id.GroupID][]id.UserID{groupID: {member}}}
	svc := &stubService{states: []*models.UserPreferenceState{
		{UserID: member, GroupID: groupID, Dimension: models.DimensionCuisine,
			Members: []models.SetMember{{Value: "thai", Confidence: 0.9}}},
	}}
	router := newRouter(t, member, svc, &stubProfiles{}, membership)

	req := httptest.NewRequest(http.MethodGet, "/groups/"+groupID.String()+"/preferences", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Preferences []struct {
			Dimension string `json:"dimension"`
		} `json:"preferences"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode preferences: %v", err)
	}
	if len(body.Preferences) != 1 || body.Preferences[0].Dimension != "cuisine" {
		t.Fatalf("unexpected preferences: %+v", body.Preferences)
	}
}

func TestUnknownGroupIsNotFound(t *testing.T) {
	member := id.NewUserID()
	membership := &stubMembership{members: map[id.GroupID][]id.UserID{}}
	router := newRouter(t, member, &stubService{}, &stubProfiles{}, membership)

	req := httptest.NewRequest(http.MethodGet, "/groups/"+id.NewGroupID().String()+"/profile", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown group, got %d", rec.Code)
	}
}

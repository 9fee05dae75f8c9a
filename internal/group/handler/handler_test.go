package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"dinemate/internal/group/service"
	"dinemate/internal/group/store"
	id "dinemate/pkg/domain"
	"dinemate/pkg/requestcontext"
)

// asUser injects an authenticated user, standing in for the JWT middleware.
func asUser(userID id.UserID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(r.Context(), userID)))
		})
	}
}

func newGroupRouter(t *testing.T, userID id.UserID) http.Handler {
	t.Helper()
	svc, err := service.New(store.NewInMemoryGroupStore(), store.NewInMemoryMessageStore())
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	h := New(svc, logger)
	r := chi.NewRouter()
	r.Use(asUser(userID))
	h.Register(r)
	return r
}

func TestCreateJoinAndChatViaHandlers(t *testing.T) {
	creator := id.NewUserID()
	router := newGroupRouter(t, creator)

	body, _ := json.Marshal(map[string]string{"name": "Friday dinner"})
	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating group, got %d: %s", rec.Code, rec.Body.String())
	}

	var group struct {
		ID         string `json:"id"`
		InviteCode string `json:"invite_code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&group); err != nil {
		t.Fatalf("decode group response: %v", err)
	}
	if group.ID == "" || len(group.InviteCode) != 6 {
		t.Fatalf("expected group id and 6-char invite code, got %+v", group)
	}

	msgBody, _ := json.Marshal(map[string]string{"type": "text", "content": "thai sounds great"})
	msgReq := httptest.NewRequest(http.MethodPost, "/groups/"+group.ID+"/messages", bytes.NewReader(msgBody))
	msgReq.Header.Set("Content-Type", "application/json")
	msgRec := httptest.NewRecorder()
	router.ServeHTTP(msgRec, msgReq)
	if msgRec.Code != http.StatusCreated {
		t.Fatalf("expected 201 posting message, got %d: %s", msgRec.Code, msgRec.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/groups/"+group.ID+"/messages", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing messages, got %d", listRec.Code)
	}

	var listed struct {
		Messages []struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(listRec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	// System "group created" narration plus the posted text message.
	if len(listed.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(listed.Messages))
	}
	if listed.Messages[1].Content != "thai sounds great" {
		t.Fatalf("unexpected message order: %+v", listed.Messages)
	}
}

func TestListGroupsAndDetailWithMembers(t *testing.T) {
	creator := id.NewUserID()
	router := newGroupRouter(t, creator)

	emptyReq := httptest.NewRequest(http.MethodGet, "/groups", nil)
	emptyRec := httptest.NewRecorder()
	router.ServeHTTP(emptyRec, emptyReq)
	if emptyRec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing groups, got %d", emptyRec.Code)
	}
	var empty struct {
		Groups []json.RawMessage `json:"groups"`
	}
	if err := json.NewDecoder(emptyRec.Body).Decode(&empty); err != nil {
		t.Fatalf("decode empty list: %v", err)
	}
	if len(empty.Groups) != 0 {
		t.Fatalf("expected no groups before creating one, got %d", len(empty.Groups))
	}

	body, _ := json.Marshal(map[string]string{"name": "Friday dinner"})
	createReq := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewReader(body))
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating group, got %d", createRec.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(createRec.Body).Decode(&created); err != nil {
		t.Fatalf("decode group: %v", err)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/groups", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	var listed struct {
		Groups []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"groups"`
	}
	if err := json.NewDecoder(listRec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Groups) != 1 || listed.Groups[0].ID != created.ID {
		t.Fatalf("expected the created group in the caller's list, got %+v", listed.Groups)
	}

	detailReq := httptest.NewRequest(http.MethodGet, "/groups/"+created.ID+"/", nil)
	detailRec := httptest.NewRecorder()
	router.ServeHTTP(detailRec, detailReq)
	if detailRec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching detail, got %d", detailRec.Code)
	}
	var detail struct {
		Group struct {
			ID string `json:"id"`
		} `json:"group"`
		Members []string `json:"members"`
	}
	if err := json.NewDecoder(detailRec.Body).Decode(&detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Group.ID != created.ID {
		t.Fatalf("expected detail for %s, got %s", created.ID, detail.Group.ID)
	}
	if len(detail.Members) != 1 || detail.Members[0] != creator.String() {
		t.Fatalf("expected creator as sole member, got %v", detail.Members)
	}
}

func TestNonMemberIsForbidden(t *testing.T) {
	creator := id.NewUserID()
	outsider := id.NewUserID()

	svc, err := service.New(store.NewInMemoryGroupStore(), store.NewInMemoryMessageStore())
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(svc, logger)

	creatorRouter := chi.NewRouter()
	creatorRouter.Use(asUser(creator))
	h.Register(creatorRouter)

	outsiderRouter := chi.NewRouter()
	outsiderRouter.Use(asUser(outsider))
	h.Register(outsiderRouter)

	body, _ := json.Marshal(map[string]string{"name": "Private dinner"})
	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	creatorRouter.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating group, got %d", rec.Code)
	}
	var group struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&group); err != nil {
		t.Fatalf("decode group: %v", err)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/groups/"+group.ID+"/", nil)
	getRec := httptest.NewRecorder()
	outsiderRouter.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d", getRec.Code)
	}
}

func TestMalformedGroupIDRejected(t *testing.T) {
	router := newGroupRouter(t, id.NewUserID())

	req := httptest.NewRequest(http.MethodGet, "/groups/not-a-uuid/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed group id, got %d", rec.Code)
	}
}

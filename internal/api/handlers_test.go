package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/require"

	"github.com/vpriesta/mds-form/internal/auth"
	"github.com/vpriesta/mds-form/internal/document"
	"github.com/vpriesta/mds-form/internal/domain"
	"github.com/vpriesta/mds-form/internal/formbind"
	"github.com/vpriesta/mds-form/internal/inbox"
	"github.com/vpriesta/mds-form/internal/session"
	"github.com/vpriesta/mds-form/internal/store"
	"github.com/vpriesta/mds-form/internal/store/memory"
)

type testServer struct {
	handler http.Handler
	inbox   *inbox.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	creds, err := auth.DecodeCredentials(strings.NewReader(`
[users]
alice = "` + auth.HashPassword("alice-pw") + `"
bob = "` + auth.HashPassword("bob-pw") + `"
vera = "` + auth.HashPassword("vera-pw") + `"

[roles]
vera = "verifier"
`))
	require.NoError(t, err)

	notes := inbox.NewMemoryStore()
	h := NewHandler(Deps{
		Service:     domain.NewService(store.New(memory.New())),
		Sessions:    session.NewMemoryStore(time.Hour),
		Credentials: creds,
		Auth:        auth.Config{Secret: "test-secret", Issuer: "mds-form", TTL: time.Hour},
		Inbox:       notes,
		Schema:      formbind.MustDefaultSchema(),
		ReviewLimit: 50,
	})
	return &testServer{handler: h.Router(), inbox: notes}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/login", "", LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) ActivityView {
	t.Helper()
	var view ActivityView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["type"]
}

func TestHealthAndAuthGate(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/activities", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/login", "", LoginRequest{Username: "alice", Password: "nope"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/login", "", LoginRequest{Username: "", Password: "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_failed", errorType(t, rec))
}

func TestSubmitterFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice", "alice-pw")

	rec := s.do(t, http.MethodPost, "/v1/activities", alice, map[string]interface{}{
		"payload": map[string]interface{}{"halaman_awal": map[string]interface{}{"judul": "Sakernas"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeView(t, rec)
	require.Equal(t, "draft", created.Status)
	require.Equal(t, "Sakernas", created.Title)
	id, _ := created.Payload.Get("activity_id")
	require.Equal(t, created.ActivityID, id.Text())
	_, hasSection := created.Payload.Get("indicators")
	require.True(t, hasSection)

	rec = s.do(t, http.MethodPut, "/v1/activities/"+created.ActivityID+"/sections/blok_4", alice, map[string]interface{}{"metode": []string{"CAPI"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decodeView(t, rec)
	metode, ok := saved.Payload.Lookup("blok_4", "metode")
	require.True(t, ok)
	require.Equal(t, 1, metode.Len())

	rec = s.do(t, http.MethodPut, "/v1/activities/"+created.ActivityID+"/sections/blok_99", alice, map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/v1/activities/"+created.ActivityID+"/sections/variables", alice, map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/activities", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListActivitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	require.Equal(t, "draft", list.Items[0].Status)
	require.NotEmpty(t, list.Items[0].LastSaved)

	bob := s.login(t, "bob", "bob-pw")
	rec = s.do(t, http.MethodGet, "/v1/activities/"+created.ActivityID, bob, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodPut, "/v1/activities/"+created.ActivityID, bob, SaveDraftRequest{Payload: &document.Value{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/activities/"+created.ActivityID+"/submit", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "submitted", decodeView(t, rec).Status)

	rec = s.do(t, http.MethodPost, "/v1/activities/"+created.ActivityID+"/submit", alice, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	payload := document.Object(document.M("judul", document.String("late edit")))
	rec = s.do(t, http.MethodPut, "/v1/activities/"+created.ActivityID, alice, SaveDraftRequest{Payload: &payload})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodDelete, "/v1/activities/"+created.ActivityID, alice, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReviewFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice", "alice-pw")
	vera := s.login(t, "vera", "vera-pw")

	rec := s.do(t, http.MethodPost, "/v1/activities", alice, map[string]interface{}{
		"payload": map[string]interface{}{"halaman_awal": map[string]interface{}{"judul": "Sakernas", "tahun": 2024}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeView(t, rec).ActivityID
	rec = s.do(t, http.MethodPost, "/v1/activities/"+id+"/submit", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/reviews", alice, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/reviews", vera, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var queue ListActivitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	require.Len(t, queue.Items, 1)

	rec = s.do(t, http.MethodGet, "/v1/reviews/"+id+"/fields", vera, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fields FieldsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fields))
	paths := make([]string, 0, len(fields.Fields))
	for _, f := range fields.Fields {
		paths = append(paths, f.Path)
	}
	require.Contains(t, paths, "halaman_awal.judul")
	require.Contains(t, paths, "halaman_awal.tahun")

	rec = s.do(t, http.MethodPost, "/v1/reviews/"+id+"/revision", vera, ReviewRequest{Note: "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/reviews/"+id+"/revision", vera, map[string]interface{}{
		"note":  "year looks wrong",
		"edits": map[string]interface{}{"no.such.field": "x"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "no.such.field")

	rec = s.do(t, http.MethodPost, "/v1/reviews/"+id+"/revision", vera, map[string]interface{}{
		"note":  "year looks wrong",
		"edits": map[string]interface{}{"halaman_awal.tahun": "2023"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeView(t, rec)
	require.Equal(t, "revision_requested", view.Status)
	require.Equal(t, "alice", view.Owner)
	tahun, _ := view.Payload.Lookup("halaman_awal", "tahun")
	require.Equal(t, document.KindInt, tahun.Kind())
	require.Equal(t, "2023", tahun.Text())
	note, _ := view.Payload.Get(domain.KeyRevisionNote)
	require.Equal(t, "year looks wrong", note.Text())

	rec = s.do(t, http.MethodPost, "/v1/reviews/"+id+"/accept", vera, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/activities/"+id+"/submit", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/v1/reviews/"+id+"/accept", vera, ReviewRequest{Comment: "ok"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "verified", decodeView(t, rec).Status)

	rec = s.do(t, http.MethodGet, "/v1/activities?status=verified", vera, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all ListActivitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all.Items, 1)

	rec = s.do(t, http.MethodDelete, "/v1/activities/"+id, vera, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestReviewRejectsNonFiniteEdits(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice", "alice-pw")
	vera := s.login(t, "vera", "vera-pw")

	rec := s.do(t, http.MethodPost, "/v1/activities", alice, map[string]interface{}{
		"payload": map[string]interface{}{"halaman_awal": map[string]interface{}{"judul": "Sakernas", "bobot": 1.5}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeView(t, rec).ActivityID
	rec = s.do(t, http.MethodPost, "/v1/activities/"+id+"/submit", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, bad := range []string{"NaN", "Inf", "-Infinity", "abc"} {
		rec = s.do(t, http.MethodPost, "/v1/reviews/"+id+"/accept", vera, map[string]interface{}{
			"edits": map[string]interface{}{"halaman_awal.bobot": bad},
		})
		require.Equal(t, http.StatusBadRequest, rec.Code, bad)
		require.Equal(t, "validation_failed", errorType(t, rec))
		require.Contains(t, rec.Body.String(), "halaman_awal.bobot")
	}

	rec = s.do(t, http.MethodGet, "/v1/activities/"+id, vera, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, rec)
	require.Equal(t, "submitted", view.Status)
	bobot, _ := view.Payload.Lookup("halaman_awal", "bobot")
	require.Equal(t, "1.5", bobot.Text())

	rec = s.do(t, http.MethodPost, "/v1/reviews/"+id+"/accept", vera, map[string]interface{}{
		"edits": map[string]interface{}{"halaman_awal.bobot": "2.25"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bobot, _ = decodeView(t, rec).Payload.Lookup("halaman_awal", "bobot")
	require.Equal(t, document.KindFloat, bobot.Kind())
}

func TestFailedSaveKeepsSessionForm(t *testing.T) {
	ctx := context.Background()
	svc := domain.NewService(store.New(memory.New()))
	h := NewHandler(Deps{
		Service:  svc,
		Sessions: session.NewMemoryStore(time.Hour),
		Schema:   formbind.MustDefaultSchema(),
	})
	alice := domain.Caller{Username: "alice", Role: domain.RoleUser}
	created, err := svc.Create(ctx, alice, document.Object(
		document.M("halaman_awal", document.Object(document.M("judul", document.String("Sakernas")))),
	))
	require.NoError(t, err)
	require.NoError(t, svc.Submit(ctx, alice, created.ID))

	sess, err := h.sessions.Create(ctx, alice.Username, alice.Role)
	require.NoError(t, err)
	sess.Open(formbind.Load(h.schema, created.ID, alice.Username, created.Payload))
	before, err := json.Marshal(sess.Form.Payload)
	require.NoError(t, err)

	put := func(fn http.HandlerFunc, params map[string]string, body interface{}) *httptest.ResponseRecorder {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req := httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(raw))
		req = req.WithContext(context.WithValue(context.WithValue(req.Context(), chi.RouteCtxKey, rctx), sessionKey, sess))
		rec := httptest.NewRecorder()
		fn(rec, req)
		return rec
	}

	payload := document.Object(document.M("halaman_awal", document.Object(document.M("judul", document.String("late edit")))))
	rec := put(h.saveDraft, map[string]string{"id": created.ID}, SaveDraftRequest{Payload: &payload})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = put(h.saveSection, map[string]string{"id": created.ID, "section": "blok_4"}, map[string]interface{}{"metode": []string{"CAPI"}})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	after, err := json.Marshal(sess.Form.Payload)
	require.NoError(t, err)
	require.JSONEq(t, string(before), string(after))
}

func TestLogoutEndsSession(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice", "alice-pw")

	rec := s.do(t, http.MethodPost, "/v1/logout", alice, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/activities", alice, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "session_expired", errorType(t, rec))
}

func TestNotifications(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice", "alice-pw")
	require.NoError(t, s.inbox.Push(context.Background(), "alice", inbox.Notification{ActivityID: "a1", Status: "rejected", Note: "duplicate"}))

	rec := s.do(t, http.MethodGet, "/v1/notifications", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp NotificationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	require.Equal(t, "duplicate", resp.Items[0].Note)
}

func TestWriteDomainErrorMapping(t *testing.T) {
	h := NewHandler(Deps{})
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&domain.ValidationError{Field: "note", Message: "required"}, http.StatusBadRequest, "validation_failed"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{domain.ErrNotEditable, http.StatusConflict, "conflict"},
		{&domain.TransitionError{From: domain.StatusDraft, To: domain.StatusVerified}, http.StatusConflict, "conflict"},
		{domain.ErrStoreFailure, http.StatusBadGateway, "store_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "server_error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.writeDomainError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, tc.code, errorType(t, rec))
	}
}

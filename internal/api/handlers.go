// Package api exposes HTTP handlers for the activity form and review workflow.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vpriesta/mds-form/internal/auth"
	"github.com/vpriesta/mds-form/internal/document"
	"github.com/vpriesta/mds-form/internal/domain"
	"github.com/vpriesta/mds-form/internal/formbind"
	"github.com/vpriesta/mds-form/internal/inbox"
	"github.com/vpriesta/mds-form/internal/logging"
	"github.com/vpriesta/mds-form/internal/session"
)

// Deps collects the collaborators of a Handler.
type Deps struct {
	Service     *domain.Service
	Sessions    session.Store
	Credentials *auth.Credentials
	Auth        auth.Config
	Inbox       inbox.Store
	Schema      *formbind.Schema
	Logger      *logging.Logger
	// ReviewLimit caps the review queue when the request gives no limit.
	ReviewLimit int
}

// Handler coordinates HTTP requests with the lifecycle service.
type Handler struct {
	service     *domain.Service
	sessions    session.Store
	credentials *auth.Credentials
	authCfg     auth.Config
	inbox       inbox.Store
	schema      *formbind.Schema
	log         *logging.Logger
	reviewLimit int
	now         func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		service:     d.Service,
		sessions:    d.Sessions,
		credentials: d.Credentials,
		authCfg:     d.Auth,
		inbox:       d.Inbox,
		schema:      d.Schema,
		log:         log.With("component", "api"),
		reviewLimit: d.ReviewLimit,
		now:         time.Now,
	}
}

// Router returns the chi router with every endpoint and middleware attached.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/v1/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(h.authCfg, nil).Wrap)
		r.Use(h.requireSession)

		r.Post("/v1/logout", h.logout)

		r.Get("/v1/activities", h.listActivities)
		r.Post("/v1/activities", h.createActivity)
		r.Get("/v1/activities/{id}", h.getActivity)
		r.Put("/v1/activities/{id}", h.saveDraft)
		r.Delete("/v1/activities/{id}", h.deleteActivity)
		r.Put("/v1/activities/{id}/sections/{section}", h.saveSection)
		r.Post("/v1/activities/{id}/submit", h.submit)

		r.Get("/v1/reviews", h.reviewQueue)
		r.Get("/v1/reviews/{id}/fields", h.reviewFields)
		r.Post("/v1/reviews/{id}/accept", h.accept)
		r.Post("/v1/reviews/{id}/revision", h.requestRevision)
		r.Post("/v1/reviews/{id}/reject", h.reject)

		r.Get("/v1/notifications", h.notifications)
	})
	return r
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	records, err := h.service.Dashboard(r.Context(), caller, r.URL.Query().Get("status"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: toSummaries(records)})
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)

	var req CreateActivityRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	form := formbind.New(h.schema, "", caller.Username)
	if req.Payload != nil {
		if err := form.Merge(*req.Payload); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
	}

	rec, err := h.service.Create(r.Context(), caller, form.Payload)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.bindForm(r, formbind.Load(h.schema, rec.ID, rec.Owner, rec.Payload))
	writeJSON(w, http.StatusCreated, toView(*rec))
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	id := chi.URLParam(r, "id")

	var (
		rec *domain.Record
		err error
	)
	if caller.IsVerifier() {
		rec, err = h.service.Get(r.Context(), caller, id)
	} else {
		rec, err = h.service.LoadForEdit(r.Context(), caller, id)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if !caller.IsVerifier() {
		h.bindForm(r, formbind.Load(h.schema, rec.ID, rec.Owner, rec.Payload))
	}
	writeJSON(w, http.StatusOK, toView(*rec))
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	id := chi.URLParam(r, "id")

	var req SaveDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	form := h.formFor(r, id, caller.Username)
	if err := form.Replace(*req.Payload); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	form.Payload.Set(domain.KeyLastSaved, document.String(h.now().UTC().Format(time.RFC3339)))

	if err := h.service.SaveDraft(r.Context(), caller, id, form.Payload); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeRecord(w, r, caller, id, http.StatusOK)
}

func (h *Handler) saveSection(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "section")

	var value document.Value
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	form := h.formFor(r, id, caller.Username)
	if err := form.SetSection(name, value); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if err := h.service.SaveSection(r.Context(), caller, id, name, value); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeRecord(w, r, caller, id, http.StatusOK)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	id := chi.URLParam(r, "id")
	if err := h.service.Submit(r.Context(), caller, id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeRecord(w, r, caller, id, http.StatusOK)
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), caller, id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if sess, ok := sessionFrom(r); ok && sess.Editing(id) {
		sess.Form = nil
		h.saveSession(r, sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	limit := parseLimit(r, 0)
	items, err := h.inbox.List(r.Context(), caller.Username, limit)
	if err != nil {
		h.log.Error("inbox list failed", "owner", caller.Username, "error", err)
		writeError(w, http.StatusBadGateway, "inbox_unavailable", "notifications are unavailable")
		return
	}
	if items == nil {
		items = []inbox.Notification{}
	}
	writeJSON(w, http.StatusOK, NotificationsResponse{Items: items})
}

// writeRecord responds with the stored record after an owner write and binds
// it as the session's current form.
func (h *Handler) writeRecord(w http.ResponseWriter, r *http.Request, caller domain.Caller, id string, status int) {
	rec, err := h.service.Get(r.Context(), caller, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.bindForm(r, formbind.Load(h.schema, rec.ID, rec.Owner, rec.Payload))
	writeJSON(w, status, toView(*rec))
}

// formFor returns a copy of the session's form for id, or a fresh binding.
// The session keeps its form until a write succeeds and writeRecord rebinds it.
func (h *Handler) formFor(r *http.Request, id, owner string) *formbind.Form {
	if sess, ok := sessionFrom(r); ok && sess.Editing(id) {
		return sess.Form.Clone()
	}
	return formbind.Load(h.schema, id, owner, document.Object())
}

func (h *Handler) bindForm(r *http.Request, form *formbind.Form) {
	sess, ok := sessionFrom(r)
	if !ok {
		return
	}
	sess.Open(form)
	h.saveSession(r, sess)
}

func (h *Handler) saveSession(r *http.Request, sess *session.Session) {
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		h.log.Warn("session save failed", "session_id", sess.ID, "error", err)
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrNotEditable), errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrStoreFailure):
		writeError(w, http.StatusBadGateway, "store_unavailable", "record store unavailable, try again")
	default:
		h.log.Error("unhandled error", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func decodeOptionalBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func parseLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

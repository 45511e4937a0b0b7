package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi"

	"github.com/vpriesta/mds-form/internal/document"
	"github.com/vpriesta/mds-form/internal/domain"
	"github.com/vpriesta/mds-form/internal/treeedit"
)

func (h *Handler) reviewQueue(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	records, err := h.service.ReviewQueue(r.Context(), caller, parseLimit(r, h.reviewLimit))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: toSummaries(records)})
}

// reviewFields lists the editable leaves of a record for a review screen.
func (h *Handler) reviewFields(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if !caller.IsVerifier() {
		h.writeDomainError(w, r, domain.ErrForbidden)
		return
	}
	rec, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	fields := treeedit.Fields(rec.Payload)
	resp := FieldsResponse{ActivityID: rec.ID, Status: string(rec.Status), Fields: make([]FieldView, 0, len(fields))}
	for _, f := range fields {
		resp.Fields = append(resp.Fields, FieldView{
			Path:    f.Path.String(),
			Label:   f.Path.Label(),
			Control: string(f.Control),
			Value:   f.Value,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "", func(caller domain.Caller, id string, req ReviewRequest, edited *document.Value) error {
		return h.service.Accept(r.Context(), caller, id, req.Comment, edited)
	})
}

func (h *Handler) requestRevision(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "note", func(caller domain.Caller, id string, req ReviewRequest, edited *document.Value) error {
		return h.service.RequestRevision(r.Context(), caller, id, req.Note, edited)
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "reason", func(caller domain.Caller, id string, req ReviewRequest, edited *document.Value) error {
		return h.service.Reject(r.Context(), caller, id, req.Reason, edited)
	})
}

type reviewAction func(caller domain.Caller, id string, req ReviewRequest, edited *document.Value) error

// review decodes a verifier decision, applies its field edits to the stored
// payload and runs action. required names the text field the decision needs.
func (h *Handler) review(w http.ResponseWriter, r *http.Request, required string, action reviewAction) {
	caller := callerFrom(r)
	id := chi.URLParam(r, "id")
	if !caller.IsVerifier() {
		h.writeDomainError(w, r, domain.ErrForbidden)
		return
	}

	var req ReviewRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.require(required); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	var edited *document.Value
	if len(req.Edits) > 0 {
		rec, err := h.service.Get(r.Context(), caller, id)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		edits := treeedit.Edits(req.Edits)
		if unknown := edits.Unknown(rec.Payload); len(unknown) > 0 {
			sort.Strings(unknown)
			writeError(w, http.StatusBadRequest, "validation_failed", "unknown fields: "+strings.Join(unknown, ", "))
			return
		}
		if bad := edits.Invalid(rec.Payload); len(bad) > 0 {
			sort.Strings(bad)
			writeError(w, http.StatusBadRequest, "validation_failed", "not a finite number: "+strings.Join(bad, ", "))
			return
		}
		out := treeedit.Walk(rec.Payload, treeedit.Root, edits)
		edited = &out
	}

	if err := action(caller, id, req, edited); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	rec, err := h.service.Get(r.Context(), caller, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(*rec))
}

// ReviewRequest is the body of the verifier decision endpoints. Edits maps a
// field path such as "blok_4.metode[2]" to its replacement value.
type ReviewRequest struct {
	Comment string                    `json:"comment"`
	Note    string                    `json:"note"`
	Reason  string                    `json:"reason"`
	Edits   map[string]document.Value `json:"edits"`
}

// require checks the decision text named by field before anything is loaded.
func (r ReviewRequest) require(field string) error {
	switch field {
	case "note":
		if strings.TrimSpace(r.Note) == "" {
			return errors.New("note: a revision note is required")
		}
	case "reason":
		if strings.TrimSpace(r.Reason) == "" {
			return errors.New("reason: a rejection reason is required")
		}
	}
	return nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"

	"github.com/vpriesta/mds-form/internal/auth"
	"github.com/vpriesta/mds-form/internal/domain"
	"github.com/vpriesta/mds-form/internal/session"
)

type contextKey string

const sessionKey contextKey = "mds-form-session"

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	role, err := h.credentials.Authenticate(strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		h.log.Info("login rejected", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "unauthorized", auth.ErrBadCredentials.Error())
		return
	}

	sess, err := h.sessions.Create(r.Context(), req.Username, role)
	if err != nil {
		h.log.Error("session create failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "unable to start session")
		return
	}

	token, expires, err := auth.Issue(auth.Claims{
		Subject:   sess.Username,
		Role:      sess.Role,
		SessionID: sess.ID,
	}, h.authCfg, h.now())
	if err != nil {
		_ = h.sessions.Delete(r.Context(), sess.ID)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	h.log.Info("login", "username", sess.Username, "role", sess.Role, "session_id", sess.ID)
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expires.UTC(),
		Username:  sess.Username,
		Role:      sess.Role,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := h.sessions.Delete(r.Context(), sess.ID); err != nil {
		h.log.Error("session delete failed", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "unable to end session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireSession rejects tokens whose session was ended by logout or expired.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		sess, err := h.sessions.Get(r.Context(), claims.SessionID)
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "session_expired", "please log in again")
			return
		}
		if err != nil {
			h.log.Error("session lookup failed", "session_id", claims.SessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "server_error", "session store unavailable")
			return
		}
		if sess.Username != claims.Subject {
			writeError(w, http.StatusUnauthorized, "unauthorized", "token does not match session")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) (*session.Session, bool) {
	sess, ok := r.Context().Value(sessionKey).(*session.Session)
	return sess, ok
}

// callerFrom builds the lifecycle caller from the request's session. The role
// comes from the session, not the token.
func callerFrom(r *http.Request) domain.Caller {
	if sess, ok := sessionFrom(r); ok {
		return domain.Caller{Username: sess.Username, Role: sess.Role}
	}
	if claims, ok := auth.FromContext(r.Context()); ok {
		return domain.Caller{Username: claims.Subject, Role: claims.Role}
	}
	return domain.Caller{}
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

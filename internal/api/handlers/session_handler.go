package handlers

import (
	"net/http"
	"time"

	appMiddleware "github.com/markdave123-py/askdoc/internal/api/middlewares"
	"github.com/markdave123-py/askdoc/internal/services"
)

type SessionHandler struct {
	store  *services.SessionStore
	tokens *appMiddleware.SessionTokens
}

func NewSessionHandler(store *services.SessionStore, tokens *appMiddleware.SessionTokens) *SessionHandler {
	return &SessionHandler{store: store, tokens: tokens}
}

type createSessionResponse struct {
	Token     string         `json:"token"`
	SessionID string         `json:"session_id"`
	State     services.State `json:"state"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// CreateSession starts an EMPTY session and returns its bearer token.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.store.Create()
	token, exp, err := h.tokens.Issue(sess.ID())
	if err != nil {
		_ = h.store.Delete(r.Context(), sess.ID())
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		Token:     token,
		SessionID: sess.ID(),
		State:     sess.State(),
		ExpiresAt: exp,
	})
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := appMiddleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, services.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// EndSession removes the session together with its indexed document.
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := appMiddleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, services.ErrSessionNotFound)
		return
	}
	if err := h.store.Delete(r.Context(), sess.ID()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

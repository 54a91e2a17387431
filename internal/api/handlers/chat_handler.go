package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	appMiddleware "github.com/markdave123-py/askdoc/internal/api/middlewares"
	"github.com/markdave123-py/askdoc/internal/services"
)

type ChatHandler struct{}

func NewChatHandler() *ChatHandler {
	return &ChatHandler{}
}

type ChatRequest struct {
	Query string `json:"query"`
}

// QueryDocument answers a question about the session's current document.
func (h *ChatHandler) QueryDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := appMiddleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, services.ErrSessionNotFound)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}

	answer, err := sess.Ask(r.Context(), req.Query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

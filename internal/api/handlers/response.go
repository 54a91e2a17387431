package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/logger"
	"github.com/markdave123-py/askdoc/internal/services"
)

var errInvalidRequest = errors.New("invalid request")

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

// writeError maps a pipeline error to its HTTP status and a JSON body.
func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && kind == "internal" {
		logger.Error("request failed", zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func classify(err error) (int, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "input"
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, services.ErrEmptyQuery),
		errors.Is(err, services.ErrEmptyDocument):
		return http.StatusBadRequest, "input"
	case errors.Is(err, services.ErrSessionNotReady),
		errors.Is(err, services.ErrIndexingInProgress):
		return http.StatusConflict, "state"
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrSessionClosed):
		return http.StatusNotFound, "session"
	case errors.Is(err, core.ErrUnsupportedDocument):
		return http.StatusUnsupportedMediaType, "extraction"
	}

	kind := core.KindOf(err)
	switch kind {
	case "configuration":
		return http.StatusInternalServerError, kind
	case "extraction":
		return http.StatusUnprocessableEntity, kind
	case "indexing", "retrieval", "generation", "embedding":
		if core.IsTimeout(err) {
			return http.StatusGatewayTimeout, kind
		}
		return http.StatusBadGateway, kind
	}
	return http.StatusInternalServerError, "internal"
}

package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	appMiddleware "github.com/markdave123-py/askdoc/internal/api/middlewares"
	"github.com/markdave123-py/askdoc/internal/logger"
	"github.com/markdave123-py/askdoc/internal/services"
)

type DocumentHandler struct {
	maxUploadBytes int64
}

func NewDocumentHandler(maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &DocumentHandler{maxUploadBytes: maxUploadBytes}
}

// UploadDocument reads the multipart "file" field and indexes it as the
// session's document. The response is sent once indexing has finished.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := appMiddleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, services.ErrSessionNotFound)
		return
	}

	// multipart framing adds a little on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, err)
			return
		}
		writeError(w, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: missing file field: %v", errInvalidRequest, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		writeError(w, fmt.Errorf("%w: read upload: %v", errInvalidRequest, err))
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		writeError(w, &http.MaxBytesError{Limit: h.maxUploadBytes})
		return
	}

	logger.Info("upload received",
		zap.String("session_id", sess.ID()),
		zap.String("file_name", header.Filename),
		zap.Int("bytes", len(data)))

	doc, err := sess.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

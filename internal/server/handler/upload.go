package handler

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/marcusleung/memecast/internal/domain"
)

// maxUploadBytes caps media uploads at 10 MiB.
const maxUploadBytes = 10 << 20

// UploadHandler stores market media (images, banners) in blob storage and
// returns the public URL.
type UploadHandler struct {
	uploader domain.BlobUploader
	logger   *slog.Logger
}

// NewUploadHandler creates an UploadHandler. uploader may be nil when blob
// storage is disabled; uploads then answer 503.
func NewUploadHandler(uploader domain.BlobUploader, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, logger: logger}
}

// Upload accepts a multipart form with a "file" field and writes it to blob
// storage under a fresh key.
// POST /api/upload
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := "media/" + uuid.New().String() + filepath.Ext(header.Filename)

	url, err := h.uploader.Upload(r.Context(), key, file, contentType)
	if err != nil {
		h.logger.Error("upload: store file",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	h.logger.Info("upload: stored media",
		slog.String("key", key),
		slog.Int64("size", header.Size),
	)
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

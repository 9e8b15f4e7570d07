package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/storage"
)

// multipartOverhead is allowed on top of the file limit for boundaries and form fields.
const multipartOverhead = 64 << 10

// UploadHandler stores images and serves them back.
type UploadHandler struct {
	store    storage.BlobStore
	maxBytes int64
}

// NewUploadHandler creates an upload handler accepting files up to maxBytes.
func NewUploadHandler(store storage.BlobStore, maxBytes int64) *UploadHandler {
	return &UploadHandler{store: store, maxBytes: maxBytes}
}

// UploadResponse is returned for a stored file.
type UploadResponse struct {
	URL string `json:"url"`
}

// Upload accepts a multipart form with a "file" part and an optional "key" field.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, storage.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, KindValidation, "Expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, KindValidation, "A file is required")
		return
	}
	defer file.Close()

	key := r.FormValue("key")
	if key == "" {
		key = header.Filename
	}

	url, err := h.store.Upload(r.Context(), key, file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{URL: url})
}

// Download streams a stored file.
func (h *UploadHandler) Download(w http.ResponseWriter, r *http.Request) {
	file, err := h.store.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", file.ContentType)
	if file.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file); err != nil {
		log.WithError(err).WithField("file_id", r.PathValue("id")).Warn("File download interrupted")
	}
}

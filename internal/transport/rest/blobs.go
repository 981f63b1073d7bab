package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/abgdnv/storefront/internal/blob"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
)

// GetBlob serves an uploaded file. Blob paths are never rewritten, so responses are cacheable.
func (h *Handler) GetBlob(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	p := chi.URLParam(r, "*")
	if err := blob.ValidatePath(p); err != nil {
		web.RespondError(w, log, http.StatusBadRequest, "Invalid path")
		return
	}
	b, err := h.Blobs.Get(r.Context(), p)
	if errors.Is(err, blob.ErrNotFound) {
		web.RespondError(w, log, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		respondFailure(w, r, log, "Failed to read file", err)
		return
	}
	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b.Data)
}

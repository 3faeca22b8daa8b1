package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reboul/storefront/internal/domain/product"
)

type uploadResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Image string `json:"image"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Image == "" {
		writeError(w, r, &product.ValidationError{Field: "image", Reason: "required"})
		return
	}
	name, err := h.images.Save(r.Context(), req.Image)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{URL: h.images.URL(name), Filename: name})
}

func (h *Handler) deleteUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.images.Delete(r.Context(), chi.URLParam(r, "filename")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "File deleted successfully"})
}

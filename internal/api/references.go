package api

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bobarin/voicebox/internal/models"
	"github.com/bobarin/voicebox/internal/references"
)

// ListReferences handles GET /references
func (h *Handler) ListReferences(w http.ResponseWriter, r *http.Request) {
	refs, err := h.store.List()
	if err != nil {
		respondFailure(w, "", err)
		return
	}
	if refs == nil {
		refs = []models.ReferenceAudio{}
	}
	respondJSON(w, http.StatusOK, models.ListReferencesResponse{References: refs, Total: len(refs)})
}

// GetReference handles GET /references/{collection}/{filename}
func (h *Handler) GetReference(w http.ResponseWriter, r *http.Request) {
	f, loc, err := h.store.Open(referenceID(r))
	if err != nil {
		respondReferenceFailure(w, err)
		return
	}
	defer f.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(loc.Filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	streamFile(w, f, contentType)
}

// UploadReference handles POST /references
// Multipart form: "file" (audio) and optional "ref_text". Saved into the custom collection.
func (h *Handler) UploadReference(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		if isBodyTooLarge(err) {
			respondTooLarge(w, "Reference audio exceeds the upload limit")
			return
		}
		respondFailure(w, "", models.NewValidationError("Invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondFailure(w, "", models.NewValidationError("file is required"))
		return
	}
	defer file.Close()

	loc, err := h.store.Save(header.Filename, file, r.FormValue("ref_text"))
	if err != nil {
		respondFailure(w, "", err)
		return
	}

	ref := models.ReferenceAudio{
		ID:         loc.ID,
		Collection: loc.Collection,
		Filename:   loc.Filename,
		HasText:    strings.TrimSpace(r.FormValue("ref_text")) != "",
	}
	if info, err := os.Stat(loc.Path); err == nil {
		ref.ByteSize = info.Size()
		ref.ModifiedAt = info.ModTime()
	}
	respondJSON(w, http.StatusCreated, ref)
}

// DeleteReference handles DELETE /references/custom/{filename}
func (h *Handler) DeleteReference(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(references.CollectionCustom + "/" + chi.URLParam(r, "filename")); err != nil {
		respondReferenceFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func referenceID(r *http.Request) string {
	return chi.URLParam(r, "collection") + "/" + chi.URLParam(r, "filename")
}

// respondReferenceFailure answers a missing reference with 404; on /tts the same
// condition is a bad request.
func respondReferenceFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, references.ErrReferenceNotFound) {
		respondError(w, http.StatusNotFound, "Reference audio not found")
		return
	}
	respondFailure(w, "", err)
}

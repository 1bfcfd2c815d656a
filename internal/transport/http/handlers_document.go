package httptransport

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custoda/internal/document"
	dErrors "custoda/pkg/domainerrors"
)

type uploadDocumentRequest struct {
	FileName    string   `json:"fileName"`
	ContentType string   `json:"contentType"`
	Tags        []string `json:"tags,omitempty"`
	PlainText   bool     `json:"plainText,omitempty"`
	// Data is the file content, base64 encoded.
	Data string `json:"data"`
}

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req uploadDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "data must be base64"))
		return
	}

	doc, err := h.documents.Upload(r.Context(), ownerID, data, document.Metadata{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Tags:        req.Tags,
		PlainText:   req.PlainText,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	docs, err := h.documents.ListByOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Handler) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	doc, data, err := h.documents.Download(r.Context(), documentID, sessionOwner(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": doc,
		"data":     base64.StdEncoding.EncodeToString(data),
	})
}

type shareDocumentRequest struct {
	GrantedTo   string     `json:"grantedTo"`
	AccessLevel string     `json:"accessLevel"`
	Expires     *time.Time `json:"expires,omitempty"`
	Conditions  string     `json:"conditions,omitempty"`
}

func (h *Handler) handleShareDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var req shareDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	level, err := document.ParseAccessLevel(req.AccessLevel)
	if err != nil {
		writeError(w, err)
		return
	}

	right, err := h.documents.Share(r.Context(), sessionOwner(r), documentID, req.GrantedTo, level, req.Expires, req.Conditions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, right)
}

func (h *Handler) handleRevokeDocumentAccess(w http.ResponseWriter, r *http.Request) {
	accessID := chi.URLParam(r, "accessID")
	if err := h.documents.RevokeAccess(r.Context(), sessionOwner(r), accessID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custoda/internal/captoken"
	"custoda/internal/document"
	dErrors "custoda/pkg/domainerrors"
)

type issueTokenRequest struct {
	AccessLevel       string   `json:"accessLevel"`
	TTLSeconds        int      `json:"ttlSeconds"`
	MaxAccessCount    int      `json:"maxAccessCount"`
	AllowedScopes     []string `json:"allowedScopes,omitempty"`
	AllowedPrincipals []string `json:"allowedPrincipals,omitempty"`
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var req issueTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	level, err := document.ParseAccessLevel(req.AccessLevel)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := h.tokens.Issue(r.Context(), sessionOwner(r), captoken.IssueRequest{
		DocumentID:        documentID,
		AccessLevel:       level,
		TTL:               time.Duration(req.TTLSeconds) * time.Second,
		MaxAccessCount:    req.MaxAccessCount,
		AllowedScopes:     req.AllowedScopes,
		AllowedPrincipals: req.AllowedPrincipals,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

type validateTokenRequest struct {
	Token     string `json:"token"`
	Scope     string `json:"scope,omitempty"`
	Principal string `json:"principal,omitempty"`
}

// handleValidateToken is the bearer-facing endpoint. Every rejection maps to
// the same 403 envelope regardless of cause; the precise reason stays in logs
// and the audit trail.
func (h *Handler) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req validateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Token == "" {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "token is required"))
		return
	}

	doc, err := h.tokens.ValidateAndConsume(r.Context(), req.Token, req.Scope, req.Principal)
	if err != nil {
		// The body is constant across every rejection class. The typed error
		// and the service's logs keep the precise reason internal; the bearer
		// must not be able to tell an unknown token from a bad signature.
		h.logger.WarnContext(r.Context(), "bearer token rejected", "error", err)
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":             "forbidden",
			"error_description": "token not accepted",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

func (h *Handler) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenID")

	token, err := h.tokens.Get(r.Context(), tokenID)
	if err != nil {
		writeError(w, err)
		return
	}
	if token.OwnerID != sessionOwner(r) {
		writeError(w, errForeignOwner)
		return
	}

	if err := h.tokens.Revoke(r.Context(), tokenID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package httptransport

import (
	"net/http"

	"custoda/internal/owner"
	dErrors "custoda/pkg/domainerrors"
)

type createOwnerRequest struct {
	Name      string `json:"name"`
	Contact   string `json:"contact"`
	BirthDate string `json:"birthDate,omitempty"`
}

type createOwnerResponse struct {
	Owner       owner.DataOwner `json:"owner"`
	AccessToken string          `json:"accessToken"`
}

func (h *Handler) handleCreateOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createOwnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	identity := owner.Identity{Name: req.Name, Contact: req.Contact}
	if req.BirthDate != "" {
		birthDate, err := parseDate(req.BirthDate)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeInvalidInput, "birthDate must be YYYY-MM-DD"))
			return
		}
		identity.BirthDate = &birthDate
	}

	o, err := h.owners.Create(ctx, identity)
	if err != nil {
		writeError(w, err)
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(o.ID, h.sessionTTL)
	if err != nil {
		h.logger.ErrorContext(ctx, "session token generation failed",
			"owner_id", o.ID, "error", err)
		writeError(w, dErrors.New(dErrors.CodeInternal, "could not create session"))
		return
	}

	writeJSON(w, http.StatusCreated, createOwnerResponse{Owner: o, AccessToken: accessToken})
}

func (h *Handler) handleGetOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.owners.Get(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type updateOwnerRequest struct {
	Identity *struct {
		Name      string `json:"name"`
		Contact   string `json:"contact"`
		BirthDate string `json:"birthDate,omitempty"`
	} `json:"identity,omitempty"`
	Active                *bool `json:"active,omitempty"`
	RelinkCredentialStore bool  `json:"relinkCredentialStore,omitempty"`
}

func (h *Handler) handleUpdateOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateOwnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	update := owner.UpdateRequest{
		Active:                req.Active,
		RelinkCredentialStore: req.RelinkCredentialStore,
	}
	if req.Identity != nil {
		identity := owner.Identity{Name: req.Identity.Name, Contact: req.Identity.Contact}
		if req.Identity.BirthDate != "" {
			birthDate, err := parseDate(req.Identity.BirthDate)
			if err != nil {
				writeError(w, dErrors.New(dErrors.CodeInvalidInput, "birthDate must be YYYY-MM-DD"))
				return
			}
			identity.BirthDate = &birthDate
		}
		update.Identity = &identity
	}

	o, err := h.owners.Update(r.Context(), ownerID, update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) handleDeleteOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.owners.Delete(r.Context(), ownerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := h.auditTrail.ListByOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

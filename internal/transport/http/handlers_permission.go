package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custoda/internal/permission"
	"custoda/internal/record"
)

type grantPermissionRequest struct {
	Grantee    string                `json:"grantee"`
	DataTypes  []string              `json:"dataTypes"`
	Rights     []string              `json:"accessRights"`
	Purpose    string                `json:"purpose"`
	Conditions permission.Conditions `json:"conditions"`
	Expires    *time.Time            `json:"expires,omitempty"`
	ConsentID  string                `json:"consentId,omitempty"`
}

func (h *Handler) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req grantPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	dataTypes, err := parseDataTypes(req.DataTypes)
	if err != nil {
		writeError(w, err)
		return
	}
	rights, err := parseRights(req.Rights)
	if err != nil {
		writeError(w, err)
		return
	}

	perm, err := h.permissions.Grant(r.Context(), ownerID, permission.GrantRequest{
		Grantee:    req.Grantee,
		DataTypes:  dataTypes,
		Rights:     rights,
		Purpose:    req.Purpose,
		Conditions: req.Conditions,
		Expires:    req.Expires,
		ConsentID:  req.ConsentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, perm)
}

func (h *Handler) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.ownedPermission(r, chi.URLParam(r, "permissionID")); err != nil {
		writeError(w, err)
		return
	}
	if err := h.permissions.Revoke(r.Context(), chi.URLParam(r, "permissionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	perms, err := h.permissions.ListPermissions(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

type checkAccessRequest struct {
	Grantee  string `json:"grantee"`
	DataType string `json:"dataType"`
	Right    string `json:"accessRight"`
}

func (h *Handler) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req checkAccessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	dataType, err := record.ParseDataType(req.DataType)
	if err != nil {
		writeError(w, err)
		return
	}
	right, err := permission.ParseAccessRight(req.Right)
	if err != nil {
		writeError(w, err)
		return
	}

	allowed, err := h.permissions.CheckAccess(r.Context(), ownerID, req.Grantee, dataType, right)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

type consentRequest struct {
	Grantee    string                     `json:"grantee"`
	Purpose    string                     `json:"purpose"`
	DataTypes  []string                   `json:"dataTypes"`
	LegalBasis string                     `json:"legalBasis"`
	Expires    *time.Time                 `json:"expires,omitempty"`
	Evidence   permission.ConsentEvidence `json:"evidence"`
}

func (h *Handler) handleRequestConsent(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req consentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	dataTypes, err := parseDataTypes(req.DataTypes)
	if err != nil {
		writeError(w, err)
		return
	}

	consent, err := h.permissions.RequestConsent(r.Context(), ownerID, permission.ConsentRequest{
		Grantee:    req.Grantee,
		Purpose:    req.Purpose,
		DataTypes:  dataTypes,
		LegalBasis: req.LegalBasis,
		Expires:    req.Expires,
		Evidence:   req.Evidence,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, consent)
}

func (h *Handler) handleListConsents(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	consents, err := h.permissions.ListConsents(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consents": consents})
}

func (h *Handler) handleWithdrawConsent(w http.ResponseWriter, r *http.Request) {
	consentID := chi.URLParam(r, "consentID")
	if err := h.ownedConsent(r, consentID); err != nil {
		writeError(w, err)
		return
	}
	if err := h.permissions.WithdrawConsent(r.Context(), consentID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type renewConsentRequest struct {
	Expires *time.Time `json:"expires,omitempty"`
}

func (h *Handler) handleRenewConsent(w http.ResponseWriter, r *http.Request) {
	consentID := chi.URLParam(r, "consentID")
	if err := h.ownedConsent(r, consentID); err != nil {
		writeError(w, err)
		return
	}

	var req renewConsentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	renewed, err := h.permissions.RenewConsent(r.Context(), consentID, req.Expires)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renewed)
}

// ownedPermission ensures the permission belongs to the session owner.
func (h *Handler) ownedPermission(r *http.Request, permissionID string) error {
	perm, err := h.permissions.GetPermission(r.Context(), permissionID)
	if err != nil {
		return err
	}
	if perm.OwnerID != sessionOwner(r) {
		return errForeignOwner
	}
	return nil
}

// ownedConsent ensures the consent record belongs to the session owner.
func (h *Handler) ownedConsent(r *http.Request, consentID string) error {
	consent, err := h.permissions.GetConsent(r.Context(), consentID)
	if err != nil {
		return err
	}
	if consent.OwnerID != sessionOwner(r) {
		return errForeignOwner
	}
	return nil
}

func parseDataTypes(raw []string) ([]record.DataType, error) {
	out := make([]record.DataType, 0, len(raw))
	for _, s := range raw {
		dataType, err := record.ParseDataType(s)
		if err != nil {
			return nil, err
		}
		out = append(out, dataType)
	}
	return out, nil
}

func parseRights(raw []string) ([]permission.AccessRight, error) {
	out := make([]permission.AccessRight, 0, len(raw))
	for _, s := range raw {
		right, err := permission.ParseAccessRight(s)
		if err != nil {
			return nil, err
		}
		out = append(out, right)
	}
	return out, nil
}

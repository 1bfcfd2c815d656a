package httptransport

import (
	"net/http"
)

func (h *Handler) handleSynchronize(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.syncer.Synchronize(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleValidateIntegrity(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := h.syncer.ValidateIntegrity(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"custoda/internal/platform/middleware"
	"custoda/internal/record"
	dErrors "custoda/pkg/domainerrors"
)

type storeRecordRequest struct {
	DataType     string          `json:"dataType"`
	Payload      json.RawMessage `json:"payload"`
	PrivacyLevel string          `json:"privacyLevel,omitempty"`
	Purpose      string          `json:"purpose,omitempty"`
}

func (h *Handler) handleStoreRecord(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req storeRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	dataType, err := record.ParseDataType(req.DataType)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "payload is required"))
		return
	}

	// Decode to a generic value so hashing sees the payload's structure, not
	// its raw byte encoding.
	var payload any
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "payload is not valid JSON"))
		return
	}

	privacy, err := record.ParsePrivacyLevel(req.PrivacyLevel)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.records.Store(r.Context(), ownerID, dataType, payload, record.StoreOptions{
		PrivacyLevel: privacy,
		Purpose:      req.Purpose,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	dataType, err := record.ParseDataType(chi.URLParam(r, "dataType"))
	if err != nil {
		writeError(w, err)
		return
	}

	filter, err := recordFilterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	views, err := h.records.List(r.Context(), ownerID, dataType, filter, record.ListOptions{
		Accessor: middleware.GetOwnerID(r.Context()),
		Purpose:  r.URL.Query().Get("purpose"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": views})
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.authorizedOwner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	recordID := chi.URLParam(r, "recordID")

	// The record must belong to the session owner before the delete lands.
	view, err := h.records.Get(r.Context(), recordID, record.ListOptions{Accessor: ownerID})
	if err != nil {
		writeError(w, err)
		return
	}
	if view.Record.OwnerID != ownerID {
		writeError(w, errForeignOwner)
		return
	}

	if err := h.records.Delete(r.Context(), recordID, ownerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func recordFilterFromQuery(r *http.Request) (record.Filter, error) {
	q := r.URL.Query()
	var filter record.Filter
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return record.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "from must be RFC 3339")
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return record.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "to must be RFC 3339")
		}
		filter.To = &to
	}
	privacy, err := record.ParsePrivacyLevel(q.Get("privacyLevel"))
	if err != nil {
		return record.Filter{}, err
	}
	filter.PrivacyLevel = privacy
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return record.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return record.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "offset must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}

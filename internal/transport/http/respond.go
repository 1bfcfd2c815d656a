package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	dErrors "custoda/pkg/domainerrors"
)

// errForeignOwner is returned when a session tries to act on another owner's
// resources. Deliberately indistinguishable from a plain authorization error.
var errForeignOwner = dErrors.New(dErrors.CodeUnauthorized, "not authorized for this owner")

// writeJSON writes a JSON body with the given status. Encoding failures are
// past the point of recovery once the header is flushed.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError centralizes domain error translation to HTTP responses so every
// handler produces the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := "internal error"
	if code != dErrors.CodeInternal {
		message = err.Error()
	}
	writeJSON(w, dErrors.HTTPStatus(code), map[string]string{
		"error":             string(code),
		"error_description": message,
	})
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid request body")
	}
	return nil
}

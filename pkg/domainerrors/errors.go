package domainerrors

import "net/http"

// Code identifies a class of domain failure. Codes are stable strings so they
// can be returned in API envelopes and matched in tests without string
// comparison on messages.
type Code string

const (
	CodeNotFound                   Code = "not_found"
	CodeUnauthorized               Code = "unauthorized"
	CodeExpired                    Code = "expired"
	CodeUsageExceeded              Code = "usage_exceeded"
	CodeScopeDenied                Code = "scope_denied"
	CodePrincipalDenied            Code = "principal_denied"
	CodeSignatureInvalid           Code = "signature_invalid"
	CodeMalformedToken             Code = "malformed_token"
	CodeIntegrityMismatch          Code = "integrity_mismatch"
	CodeRevoked                    Code = "revoked"
	CodeVaultUnavailable           Code = "vault_unavailable"
	CodeCredentialStoreUnavailable Code = "credential_store_unavailable"
	CodeInvalidInput               Code = "invalid_input"
	CodeInternal                   Code = "internal"
)

// Error is a comparable value type so errors.Is on two errors with the same
// code and message reports equality. Services construct these; stores return
// sentinel errors instead.
type Error struct {
	Code    Code
	Message string
}

func (e Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// New builds a domain error value.
func New(code Code, message string) Error {
	return Error{Code: code, Message: message}
}

// CodeOf extracts the domain code from err, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	if de, ok := err.(Error); ok {
		return de.Code
	}
	return CodeInternal
}

// HTTPStatus maps a domain code to an HTTP status for the transport layer.
// Token rejection classes intentionally collapse to 403 there; the mapping
// here stays precise for internal use.
func HTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized, CodeScopeDenied, CodePrincipalDenied:
		return http.StatusForbidden
	case CodeExpired, CodeRevoked, CodeUsageExceeded:
		return http.StatusGone
	case CodeSignatureInvalid, CodeMalformedToken:
		return http.StatusUnauthorized
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeIntegrityMismatch:
		return http.StatusConflict
	case CodeVaultUnavailable, CodeCredentialStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

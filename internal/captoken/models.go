package captoken

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"custoda/internal/document"
)

// payloadVersion is the wire version of the bearer-presentable encoding. The
// encoding is interop surface for scanners and must stay stable.
const payloadVersion = "v1"

// CapabilityToken is a signed, scoped, time- and usage-limited bearer
// credential granting access to exactly one document without owner
// authentication. Once Active is false it never becomes true again;
// AccessCount never exceeds MaxAccessCount.
type CapabilityToken struct {
	ID          string               `json:"tokenId"`
	DocumentID  string               `json:"documentId"`
	OwnerID     string               `json:"ownerId"`
	AccessLevel document.AccessLevel `json:"accessLevel"`
	IssuedAt    time.Time            `json:"issuedAt"`
	ExpiresAt   time.Time            `json:"expiresAt"`
	Active      bool                 `json:"isActive"`
	AccessCount int                  `json:"accessCount"`
	MaxAccess   int                  `json:"maxAccessCount"`
	// AllowedScopes whitelists requesting services; AllowedPrincipals, when
	// set, additionally whitelists staff identities.
	AllowedScopes     []string `json:"allowedScopes"`
	AllowedPrincipals []string `json:"allowedPrincipals,omitempty"`
	Signature         string   `json:"signature"`
	// EncodedPayload is what gets put into the scannable code.
	EncodedPayload string `json:"encodedPayload"`
}

// wirePayload is the serialized form inside the scannable encoding.
type wirePayload struct {
	Version       string   `json:"version"`
	TokenID       string   `json:"tokenId"`
	DocumentID    string   `json:"documentId"`
	OwnerID       string   `json:"ownerId"`
	AccessLevel   string   `json:"accessLevel"`
	ExpiresAt     string   `json:"expiresAt"` // ISO-8601
	AllowedScopes []string `json:"allowedScopes"`
	Signature     string   `json:"signature"`
	IssuedAt      string   `json:"issuedAt"`
}

// encodePayload serializes the token into the bearer-presentable form: JSON
// under base64url, short enough for a 2-D barcode.
func encodePayload(t CapabilityToken) (string, error) {
	wire := wirePayload{
		Version:       payloadVersion,
		TokenID:       t.ID,
		DocumentID:    t.DocumentID,
		OwnerID:       t.OwnerID,
		AccessLevel:   string(t.AccessLevel),
		ExpiresAt:     t.ExpiresAt.UTC().Format(time.RFC3339),
		AllowedScopes: t.AllowedScopes,
		Signature:     t.Signature,
		IssuedAt:      t.IssuedAt.UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// decodePayload parses a presented encoding. Any structural defect is a
// malformed token; no distinction is leaked about which part failed.
func decodePayload(encoded string) (wirePayload, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return wirePayload{}, false
	}
	var wire wirePayload
	if err := json.Unmarshal(raw, &wire); err != nil {
		return wirePayload{}, false
	}
	if wire.Version != payloadVersion || wire.TokenID == "" {
		return wirePayload{}, false
	}
	return wire, true
}

// signingBase builds the canonical byte string the signature covers. The
// field set is fixed: documentId, ownerId, accessLevel, expiresAt. Nothing
// else is signed, so mutable counters can change without re-signing.
func signingBase(documentID, ownerID string, level document.AccessLevel, expiresAt time.Time) []byte {
	return []byte(payloadVersion + "|" + documentID + "|" + ownerID + "|" + string(level) + "|" + expiresAt.UTC().Format(time.RFC3339))
}

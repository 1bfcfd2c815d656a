package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// HMAC signs payloads with HMAC-SHA256. Signatures are base64url strings so
// they survive embedding in scannable payloads.
type HMAC struct {
	key []byte
}

func NewHMAC(key string) *HMAC {
	return &HMAC{key: []byte(key)}
}

func (h *HMAC) Sign(data []byte) (string, error) {
	mac := hmac.New(sha256.New, h.key)
	mac.Write(data)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (h *HMAC) Verify(data []byte, signature string) bool {
	expected, err := h.Sign(data)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

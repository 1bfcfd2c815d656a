// Package integrity provides the deterministic content hash used by the
// record store and the capability token signature base. The hash is computed
// over the canonical JSON encoding of the payload, so two structurally equal
// payloads always produce the same digest and a single flipped byte in a
// stored payload is detectable later.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash returns the hex-encoded SHA-256 digest of the canonical JSON encoding
// of v. encoding/json sorts map keys, which makes the encoding stable for any
// payload that round-trips through JSON.
func Hash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the hash of v and reports whether it matches expected.
// A computation failure counts as a mismatch.
func Verify(v any, expected string) bool {
	actual, err := Hash(v)
	if err != nil {
		return false
	}
	return actual == expected
}

// Package signer defines the sign/verify port consumed by the capability
// token service. The engine never assumes a particular scheme; callers may
// wire an HSM-backed implementation as long as signatures are stable strings.
package signer

// Signer produces and checks a signature over a capability payload.
type Signer interface {
	Sign(data []byte) (string, error)
	Verify(data []byte, signature string) bool
}

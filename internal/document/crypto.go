package document

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// sealedBox encrypts document bytes at rest with nacl secretbox. The random
// nonce is prepended to the ciphertext so each blob is self-contained.
type sealedBox struct {
	key [32]byte
}

func newSealedBox(key [32]byte) *sealedBox {
	return &sealedBox{key: key}
}

func (b *sealedBox) seal(plain []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &b.key), nil
}

func (b *sealedBox) open(sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, fmt.Errorf("sealed blob too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &b.key)
	if !ok {
		return nil, fmt.Errorf("blob decryption failed")
	}
	return plain, nil
}

// Package credential provides a reference Credential store
// implementation: AES-256-GCM decryption of an account's opaque
// credential blob into its plaintext service-account JSON. No pack
// library specializes in encryption-at-rest; crypto/aes and
// crypto/cipher are the correct stdlib primitives for this, not a gap in
// third-party coverage.
package credential

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// ErrDecrypt wraps any failure to recover the plaintext credential.
var ErrDecrypt = errors.New("credential: decrypt failed")

// AESGCMStore implements senderpool.CredentialStore with a single
// 32-byte key; blobs are nonce || ciphertext, as produced by Encrypt.
type AESGCMStore struct {
	key []byte
}

// NewAESGCMStore constructs a store from a 32-byte key.
func NewAESGCMStore(key []byte) (*AESGCMStore, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("credential: key must be 32 bytes, got %d", len(key))
	}
	return &AESGCMStore{key: key}, nil
}

func (s *AESGCMStore) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Decrypt implements senderpool.CredentialStore.
func (s *AESGCMStore) Decrypt(_ context.Context, blob []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("%w: blob too short", ErrDecrypt)
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

// Encrypt is provided for tests/fixtures that need to produce a valid blob.
func (s *AESGCMStore) Encrypt(plaintext []byte, nonce []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("credential: nonce must be %d bytes", gcm.NonceSize())
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return append(append([]byte{}, nonce...), ciphertext...), nil
}

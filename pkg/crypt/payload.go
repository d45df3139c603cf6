package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// NonceSize is the length of the random nonce prepended to every blob.
const NonceSize = 12

// EncryptPayload seals a payload of any size under a conversation key. The
// result is self-contained: [12-byte random nonce][AES-GCM ciphertext+tag].
// A fresh nonce is drawn on every call; reusing one with the same key would
// void the scheme, so there is deliberately no way to supply a nonce.
func EncryptPayload(plaintext []byte, key Key) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("draw nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptPayload opens a blob produced by EncryptPayload. It fails closed:
// ErrMalformedBlob if the framing is too short, ErrDecryptionFailed on any
// authentication mismatch.
func DecryptPayload(blob []byte, key Key) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	if len(blob) < NonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedBlob, len(blob))
	}

	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

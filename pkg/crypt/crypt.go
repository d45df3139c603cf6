// Package crypt implements the symmetric layer of the sharing protocol:
// conversation-key agreement between two identities and an authenticated
// payload cipher that is not bound by the small-message protocol's size cap.
package crypt

import "errors"

var (
	// ErrDecryptionFailed is returned on any authentication failure: wrong
	// key, corrupted ciphertext, or tampered nonce. No partial plaintext is
	// ever returned.
	ErrDecryptionFailed = errors.New("crypt: decryption failed")

	// ErrMalformedBlob is returned when a blob is too short to carry the
	// nonce and authentication tag.
	ErrMalformedBlob = errors.New("crypt: malformed encrypted blob")

	// ErrNoSigner is returned when an operation needs signing or decryption
	// and neither a held private key nor a remote signer is available.
	ErrNoSigner = errors.New("crypt: no signer available")
)

// Package keys implements the messaging identity: a secp256k1 keypair whose
// public component is a stable 32-byte x-only identifier. Identities are
// either freshly generated or derived deterministically from a wallet
// signature, which lets a user re-enter the same identity by re-signing a
// fixed challenge instead of storing a secret.
package keys

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// PublicKeySize is the length of an x-only public identifier in bytes.
const PublicKeySize = 32

// PublicKey is a 32-byte x-only secp256k1 public key. It is the stable
// identifier of an identity on the broadcast medium.
type PublicKey [PublicKeySize]byte

// ParsePublicKey parses the 64-character hex form of a public identifier.
func ParsePublicKey(s string) (PublicKey, error) {
	if len(s) != PublicKeySize*2 {
		return PublicKey{}, fmt.Errorf(
			"invalid public key length: expected %d, got %d",
			PublicKeySize*2, len(s),
		)
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("decode public key: %w", err)
	}

	var pk PublicKey
	copy(pk[:], decoded)

	// Reject encodings that are not a point on the curve.
	if _, err := schnorr.ParsePubKey(pk[:]); err != nil {
		return PublicKey{}, fmt.Errorf("invalid public key: %w", err)
	}
	return pk, nil
}

// Equal returns true if both identifiers are the same key.
func (pk PublicKey) Equal(other PublicKey) bool {
	return subtle.ConstantTimeCompare(pk[:], other[:]) == 1
}

// IsZero returns true if the identifier is the zero value.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// Bytes returns a byte slice copy of the identifier.
func (pk PublicKey) Bytes() []byte {
	b := make([]byte, len(pk))
	copy(b, pk[:])
	return b
}

// String returns the hex representation of the identifier.
func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// point lifts the x-only identifier back to a full curve point. BIP340
// parsing assumes even Y; the X coordinate feeding ECDH is the same for
// either lift, so key agreement stays symmetric regardless of the holder's
// actual parity.
func (pk PublicKey) point() (*secp256k1.PublicKey, error) {
	return schnorr.ParsePubKey(pk[:])
}

package keys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	// ErrAuthenticationCancelled is returned when the wallet holder declines
	// or aborts a signing request. No partial identity is ever produced.
	ErrAuthenticationCancelled = errors.New("keys: authentication cancelled")

	// ErrInvalidSeed is returned when signature bytes hash to a value that
	// is not a usable private scalar. Practically unreachable, but derivation
	// must fail closed rather than emit a degenerate keypair.
	ErrInvalidSeed = errors.New("keys: signature does not derive a valid key")
)

// Identity is an asymmetric keypair held in memory for the session. The
// private component never leaves this struct; components that must work
// without one use the crypt.Signer capability instead.
type Identity struct {
	priv *secp256k1.PrivateKey
	pub  PublicKey
}

// Generate creates a random identity with no wallet binding.
func Generate() (*Identity, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	return fromPrivate(priv)
}

// DeriveFromSignature derives the identity deterministically from raw wallet
// signature bytes: the SHA-256 of the signature is used directly as the
// private key. The same wallet signing the same challenge always yields the
// same identity.
func DeriveFromSignature(sig []byte) (*Identity, error) {
	if len(sig) == 0 {
		return nil, fmt.Errorf("%w: empty signature", ErrAuthenticationCancelled)
	}

	seed := sha256.Sum256(sig)
	priv := secp256k1.PrivKeyFromBytes(seed[:])
	if priv.Key.IsZero() {
		return nil, ErrInvalidSeed
	}
	return fromPrivate(priv)
}

// FromPrivateKeyHex restores an identity from a 64-character hex private key.
// Intended for tooling; applications should prefer Login or Generate.
func FromPrivateKeyHex(s string) (*Identity, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid private key length: expected 32, got %d", len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	if priv.Key.IsZero() {
		return nil, ErrInvalidSeed
	}
	return fromPrivate(priv)
}

func fromPrivate(priv *secp256k1.PrivateKey) (*Identity, error) {
	var pub PublicKey
	copy(pub[:], schnorr.SerializePubKey(priv.PubKey()))
	return &Identity{priv: priv, pub: pub}, nil
}

// PublicKey returns the stable public identifier of the identity.
func (id *Identity) PublicKey() PublicKey {
	return id.pub
}

// PrivateKeyHex returns the hex form of the private key. Callers are expected
// to keep it out of persistent storage.
func (id *Identity) PrivateKeyHex() string {
	return hex.EncodeToString(id.priv.Serialize())
}

// SignDigest produces a 64-byte BIP340 Schnorr signature over a 32-byte
// digest.
func (id *Identity) SignDigest(digest [32]byte) ([]byte, error) {
	sig, err := schnorr.Sign(id.priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	return sig.Serialize(), nil
}

// SharedSecret computes the raw ECDH shared X coordinate between this
// identity and a peer identifier. The result is symmetric: A.SharedSecret(B)
// equals B.SharedSecret(A). Callers should feed it through a KDF rather than
// using it as a cipher key directly.
func (id *Identity) SharedSecret(peer PublicKey) ([32]byte, error) {
	point, err := peer.point()
	if err != nil {
		return [32]byte{}, fmt.Errorf("peer key: %w", err)
	}

	var shared [32]byte
	copy(shared[:], secp256k1.GenerateSharedSecret(id.priv, point))
	return shared, nil
}

// VerifyDigest checks a 64-byte Schnorr signature over a digest against a
// public identifier.
func VerifyDigest(pub PublicKey, digest [32]byte, sig []byte) error {
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}
	point, err := pub.point()
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	if !parsed.Verify(digest[:], point) {
		return errors.New("keys: signature verify failed")
	}
	return nil
}

// WalletSigner is the external wallet boundary. SignMessage returns the hex
// signature of a UTF-8 challenge, keyed to whatever account the wallet holds.
type WalletSigner interface {
	SignMessage(ctx context.Context, message string) (string, error)
}

// Login derives the messaging identity by having the wallet sign a fixed
// challenge. A wallet error or cancellation surfaces as
// ErrAuthenticationCancelled.
func Login(ctx context.Context, wallet WalletSigner, challenge string) (*Identity, error) {
	sigHex, err := wallet.SignMessage(ctx, challenge)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationCancelled, err)
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, fmt.Errorf("decode wallet signature: %w", err)
	}
	return DeriveFromSignature(sig)
}

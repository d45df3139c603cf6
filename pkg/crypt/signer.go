package crypt

import (
	"context"

	"github.com/provshare/provshare/pkg/keys"
)

// Signer is the capability every downstream component works against. It is
// satisfied either by a held private key (LocalSigner) or by an external
// signer that performs the operations on request without ever exporting the
// key. A browser extension or a hardware holder qualifies, as long as it can
// sign a digest and run the conversation cipher for a given peer.
type Signer interface {
	// PublicKey returns the identity this capability acts as.
	PublicKey() keys.PublicKey

	// SignDigest signs a 32-byte digest, returning a 64-byte signature.
	SignDigest(ctx context.Context, digest [32]byte) ([]byte, error)

	// Encrypt seals plaintext under the conversation key shared with peer.
	Encrypt(ctx context.Context, peer keys.PublicKey, plaintext []byte) ([]byte, error)

	// Decrypt opens a blob sealed under the conversation key shared with
	// peer. Fails with ErrDecryptionFailed on authentication mismatch.
	Decrypt(ctx context.Context, peer keys.PublicKey, blob []byte) ([]byte, error)
}

// LocalSigner implements Signer over an in-memory identity.
type LocalSigner struct {
	id *keys.Identity
}

// NewLocalSigner wraps a held identity in the Signer capability.
func NewLocalSigner(id *keys.Identity) *LocalSigner {
	return &LocalSigner{id: id}
}

func (s *LocalSigner) PublicKey() keys.PublicKey {
	return s.id.PublicKey()
}

func (s *LocalSigner) SignDigest(ctx context.Context, digest [32]byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.id.SignDigest(digest)
}

func (s *LocalSigner) Encrypt(ctx context.Context, peer keys.PublicKey, plaintext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := ConversationKey(s.id, peer)
	if err != nil {
		return nil, err
	}
	return EncryptPayload(plaintext, key)
}

func (s *LocalSigner) Decrypt(ctx context.Context, peer keys.PublicKey, blob []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := ConversationKey(s.id, peer)
	if err != nil {
		return nil, err
	}
	return DecryptPayload(blob, key)
}

package crypt

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/provshare/provshare/pkg/keys"
)

// KeySize is the length of a conversation key in bytes.
const KeySize = 32

// conversationInfo domain-separates conversation keys from any other use of
// the ECDH shared secret.
var conversationInfo = []byte("provshare-conversation-key-v1")

// Key is a 32-byte symmetric conversation key. Valid between exactly one
// pair of identities, or an identity and itself.
type Key [KeySize]byte

// ConversationKey derives the shared symmetric key between an identity and a
// peer: ECDH over the identity keys, expanded through HKDF-SHA256. It is a
// pure function; callers derive fresh per operation instead of caching. The
// owner-to-self case simply feeds the identity's own public key back in.
func ConversationKey(id *keys.Identity, peer keys.PublicKey) (Key, error) {
	shared, err := id.SharedSecret(peer)
	if err != nil {
		return Key{}, fmt.Errorf("key agreement: %w", err)
	}

	var key Key
	kdf := hkdf.New(sha256.New, shared[:], nil, conversationInfo)
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return Key{}, fmt.Errorf("expand conversation key: %w", err)
	}
	return key, nil
}

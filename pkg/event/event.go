// Package event defines the signed message unit read and written on the
// broadcast medium, and the filter model used to query it. The medium itself
// is an external collaborator; this package only fixes the shapes both sides
// agree on.
package event

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	canonicaljson "github.com/gibson042/canonicaljson-go"

	"github.com/provshare/provshare/pkg/crypt"
	"github.com/provshare/provshare/pkg/keys"
)

// App is the application tag value that marks every message this library
// publishes.
const App = "provshare"

// Kinds of signed messages this library places meaning on.
const (
	// KindProfile carries identity profile metadata as plaintext JSON.
	KindProfile = 0
	// KindDirectMessage carries an encrypted direct message; the sharing
	// protocol's request and grant steps ride on it.
	KindDirectMessage = 4
	// KindDirectory carries a directory snapshot. Same author and same
	// identifier tag supersede older snapshots.
	KindDirectory = 30078
)

// Tag keys with defined semantics. Everything else on a message is opaque.
const (
	TagRecipient   = "p" // recipient public identifier
	TagApp         = "A" // application identifier
	TagOperation   = "O" // protocol operation identifier
	TagFingerprint = "C" // current content fingerprint
	TagOriginal    = "I" // original/prior content fingerprint
	TagIdentifier  = "d" // replaceable-record discriminator
)

// Event is the signed message shape of the broadcast medium. Content is an
// opaque string: plaintext JSON for directory and profile records,
// base64-wrapped ciphertext for direct messages.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// New builds an unsigned event stamped with the current time and the app tag.
func New(kind int, content string) *Event {
	ev := &Event{
		Kind:      kind,
		CreatedAt: time.Now().Unix(),
		Content:   content,
	}
	ev.AppendTag(TagApp, App)
	return ev
}

// AppendTag adds a [key, value] tag entry.
func (e *Event) AppendTag(key, value string) {
	e.Tags = append(e.Tags, []string{key, value})
}

// TagValue returns the value of the first tag with the given key.
func (e *Event) TagValue(key string) (string, bool) {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == key {
			return tag[1], true
		}
	}
	return "", false
}

// Author parses the author identifier of the event.
func (e *Event) Author() (keys.PublicKey, error) {
	return keys.ParsePublicKey(e.PubKey)
}

// Digest computes the canonical SHA-256 digest the id and signature commit
// to. Canonical JSON keeps the digest stable across serializers.
func (e *Event) Digest() ([32]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}
	serialized, err := canonicaljson.Marshal([]interface{}{
		0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content,
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("serialize event: %w", err)
	}
	return sha256.Sum256(serialized), nil
}

// Sign stamps the event with the signer's identity, computes the id, and
// signs it. Tags and content must be final before calling.
func (e *Event) Sign(ctx context.Context, signer crypt.Signer) error {
	if signer == nil {
		return crypt.ErrNoSigner
	}

	e.PubKey = signer.PublicKey().String()
	digest, err := e.Digest()
	if err != nil {
		return err
	}

	sig, err := signer.SignDigest(ctx, digest)
	if err != nil {
		return fmt.Errorf("sign event: %w", err)
	}

	e.ID = hex.EncodeToString(digest[:])
	e.Sig = hex.EncodeToString(sig)
	return nil
}

// Verify checks the id and signature against the claimed author.
func (e *Event) Verify() error {
	author, err := e.Author()
	if err != nil {
		return fmt.Errorf("event author: %w", err)
	}

	digest, err := e.Digest()
	if err != nil {
		return err
	}
	if hex.EncodeToString(digest[:]) != e.ID {
		return fmt.Errorf("event id mismatch")
	}

	sig, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	return keys.VerifyDigest(author, digest, sig)
}

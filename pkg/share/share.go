// Package share implements the request/grant/fetch choreography that moves
// access to encrypted content between two identities without a trusted
// intermediary. All three steps ride on tagged encrypted direct messages;
// protocol state is recomputed from the full set of discovered messages, so
// arrival order and retries never change the outcome.
package share

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/provshare/provshare/pkg/crypt"
	"github.com/provshare/provshare/pkg/event"
	"github.com/provshare/provshare/pkg/keys"
	"github.com/provshare/provshare/pkg/relay"
	"github.com/provshare/provshare/pkg/storage"
)

// Operation tag values of the choreography.
const (
	OpRequest = "share-request"
	OpGrant   = "share-grant"
)

// State of one (peer, fingerprint) exchange as seen by the requester.
type State int

const (
	// StateNone means no protocol message exists for the fingerprint.
	StateNone State = iota
	// StateRequested means the request was published but no grant is known.
	StateRequested
	// StateGranted means a grant exists and the re-encrypted copy can be
	// fetched.
	StateGranted
	// StateFetched means the plaintext has been fetched and persisted
	// locally. Purely local; no message marks it.
	StateFetched
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateGranted:
		return "granted"
	case StateFetched:
		return "fetched"
	default:
		return "none"
	}
}

// Request is a discovered share-request addressed to this identity.
type Request struct {
	Requester   keys.PublicKey
	Fingerprint storage.Ref
	Event       *event.Event
}

// Grant is a discovered share-grant addressed to this identity.
type Grant struct {
	Owner       keys.PublicKey
	Fingerprint storage.Ref // re-encrypted copy
	Original    storage.Ref
	Event       *event.Event
}

// Envelope is the encrypted body of a protocol message. The tags carry the
// same information in queryable form; the body exists so the exchange reads
// as a normal encrypted conversation to its two parties.
type Envelope struct {
	Operation   string `json:"operation"`
	Fingerprint string `json:"fingerprint"`
	Original    string `json:"original,omitempty"`
}

// Protocol runs the choreography for one identity.
type Protocol struct {
	signer   crypt.Signer
	medium   relay.Medium
	blobs    storage.BlobStore
	receipts *storage.LocalStore
	log      *slog.Logger
	now      func() time.Time
}

// New builds the protocol around the identity's signer capability. receipts
// may be nil; without it fetched plaintext is returned but not persisted.
func New(signer crypt.Signer, medium relay.Medium, blobs storage.BlobStore, receipts *storage.LocalStore, log *slog.Logger) *Protocol {
	return &Protocol{
		signer:   signer,
		medium:   medium,
		blobs:    blobs,
		receipts: receipts,
		log:      log,
		now:      time.Now,
	}
}

// Request publishes a share-request for a fingerprint owned by another
// identity. The protocol defines no timeout; an unanswered request may
// simply be published again.
func (p *Protocol) Request(ctx context.Context, owner keys.PublicKey, fingerprint storage.Ref) error {
	if p.signer == nil {
		return crypt.ErrNoSigner
	}

	content, err := p.sealEnvelope(ctx, owner, Envelope{
		Operation:   OpRequest,
		Fingerprint: fingerprint.String(),
	})
	if err != nil {
		return err
	}

	ev := event.New(event.KindDirectMessage, content)
	ev.CreatedAt = p.now().Unix()
	ev.AppendTag(event.TagRecipient, owner.String())
	ev.AppendTag(event.TagOperation, OpRequest)
	ev.AppendTag(event.TagFingerprint, fingerprint.String())
	if err := ev.Sign(ctx, p.signer); err != nil {
		return err
	}
	if err := p.medium.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish share request: %w", err)
	}
	return nil
}

// PendingRequests discovers share-requests addressed to this identity.
// Matching is purely by tags and authorship; there is no session identifier
// beyond the fingerprint correlation.
func (p *Protocol) PendingRequests(ctx context.Context) ([]Request, error) {
	filter := event.NewFilter().
		ByKind(event.KindDirectMessage).
		ByAppTag().
		ByOperationTag(OpRequest).
		ByRecipientTag(p.signer.PublicKey())

	events, err := p.medium.QuerySet(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query share requests: %w", err)
	}

	var requests []Request
	for _, ev := range events {
		requester, err := ev.Author()
		if err != nil {
			p.log.Warn("skipping request with bad author", "event", ev.ID, "error", err)
			continue
		}
		fingerprint, ok := ev.TagValue(event.TagFingerprint)
		if !ok {
			continue
		}
		requests = append(requests, Request{
			Requester:   requester,
			Fingerprint: storage.Ref(fingerprint),
			Event:       ev,
		})
	}
	return requests, nil
}

// Grant answers a request: fetch the original ciphertext, decrypt it with
// this identity's self-conversation key, re-encrypt it for the requester,
// upload the new blob, and publish the grant. The requester never learns the
// owner's own directory key.
//
// Before granting, the medium is re-queried for a prior grant for the same
// (requester, fingerprint) pair; if one exists it is returned as-is so that
// repeated polling cannot pile up duplicate ciphertext copies. The
// check-then-publish window is not atomic; two truly concurrent grant
// attempts for the same request can still both publish.
func (p *Protocol) Grant(ctx context.Context, req Request) (storage.Ref, error) {
	if p.signer == nil {
		return "", crypt.ErrNoSigner
	}

	if prior, err := p.priorGrant(ctx, req); err != nil {
		return "", err
	} else if prior != "" {
		p.log.Debug("share already granted",
			"requester", req.Requester.String(), "fingerprint", req.Fingerprint.String())
		return prior, nil
	}

	blob, err := p.blobs.Fetch(ctx, req.Fingerprint)
	if err != nil {
		return "", fmt.Errorf("fetch original ciphertext: %w", err)
	}

	// Decrypt with the self key (owner-to-self conversation).
	plaintext, err := p.signer.Decrypt(ctx, p.signer.PublicKey(), blob)
	if err != nil {
		return "", fmt.Errorf("decrypt original: %w", err)
	}

	reblob, err := p.signer.Encrypt(ctx, req.Requester, plaintext)
	if err != nil {
		return "", fmt.Errorf("re-encrypt for requester: %w", err)
	}

	newRef, err := p.blobs.Upload(ctx, reblob, req.Fingerprint.String())
	if err != nil {
		return "", fmt.Errorf("upload shared copy: %w", err)
	}

	content, err := p.sealEnvelope(ctx, req.Requester, Envelope{
		Operation:   OpGrant,
		Fingerprint: newRef.String(),
		Original:    req.Fingerprint.String(),
	})
	if err != nil {
		return "", err
	}

	ev := event.New(event.KindDirectMessage, content)
	ev.CreatedAt = p.now().Unix()
	ev.AppendTag(event.TagRecipient, req.Requester.String())
	ev.AppendTag(event.TagOperation, OpGrant)
	ev.AppendTag(event.TagFingerprint, newRef.String())
	ev.AppendTag(event.TagOriginal, req.Fingerprint.String())
	if err := ev.Sign(ctx, p.signer); err != nil {
		return "", err
	}
	if err := p.medium.Publish(ctx, ev); err != nil {
		return "", fmt.Errorf("publish share grant: %w", err)
	}
	return newRef, nil
}

// priorGrant returns the fingerprint of an already-published grant for the
// same requester and original fingerprint, or "" when none exists.
func (p *Protocol) priorGrant(ctx context.Context, req Request) (storage.Ref, error) {
	filter := event.NewFilter().
		ByKind(event.KindDirectMessage).
		ByAppTag().
		ByAuthor(p.signer.PublicKey()).
		ByOperationTag(OpGrant).
		ByRecipientTag(req.Requester).
		ByOriginalTag(req.Fingerprint.String())

	prior, err := p.medium.QuerySingle(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("query prior grants: %w", err)
	}
	if prior == nil {
		return "", nil
	}
	fingerprint, ok := prior.TagValue(event.TagFingerprint)
	if !ok {
		return "", nil
	}
	return storage.Ref(fingerprint), nil
}

// Grants discovers share-grants addressed to this identity.
func (p *Protocol) Grants(ctx context.Context) ([]Grant, error) {
	filter := event.NewFilter().
		ByKind(event.KindDirectMessage).
		ByAppTag().
		ByOperationTag(OpGrant).
		ByRecipientTag(p.signer.PublicKey())

	events, err := p.medium.QuerySet(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query share grants: %w", err)
	}

	var grants []Grant
	for _, ev := range events {
		owner, err := ev.Author()
		if err != nil {
			p.log.Warn("skipping grant with bad author", "event", ev.ID, "error", err)
			continue
		}
		fingerprint, ok := ev.TagValue(event.TagFingerprint)
		if !ok {
			continue
		}
		original, _ := ev.TagValue(event.TagOriginal)
		grants = append(grants, Grant{
			Owner:       owner,
			Fingerprint: storage.Ref(fingerprint),
			Original:    storage.Ref(original),
			Event:       ev,
		})
	}
	return grants, nil
}

// Fetch resolves a discovered grant: download the re-encrypted copy, decrypt
// it with the conversation key shared with the owner, and persist the
// plaintext locally. No further message is published.
func (p *Protocol) Fetch(ctx context.Context, g Grant) ([]byte, error) {
	if p.signer == nil {
		return nil, crypt.ErrNoSigner
	}

	blob, err := p.blobs.Fetch(ctx, g.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("fetch shared copy: %w", err)
	}

	plaintext, err := p.signer.Decrypt(ctx, g.Owner, blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt shared copy: %w", err)
	}

	if p.receipts != nil {
		if err := p.receipts.Put(receiptKey(g.Original), plaintext); err != nil {
			return nil, fmt.Errorf("persist receipt: %w", err)
		}
	}
	return plaintext, nil
}

// Receipt returns locally persisted plaintext for an original fingerprint,
// if a grant for it was fetched before.
func (p *Protocol) Receipt(original storage.Ref) ([]byte, bool, error) {
	if p.receipts == nil {
		return nil, false, nil
	}
	plaintext, err := p.receipts.Get(receiptKey(original))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return plaintext, true, nil
}

// Status recomputes the requester-side state of one exchange from the full
// set of discovered messages plus local receipts. It depends only on what
// exists, never on the order it arrived in.
func (p *Protocol) Status(ctx context.Context, owner keys.PublicKey, original storage.Ref) (State, error) {
	if _, fetched, err := p.Receipt(original); err != nil {
		return StateNone, err
	} else if fetched {
		return StateFetched, nil
	}

	grantFilter := event.NewFilter().
		ByKind(event.KindDirectMessage).
		ByAppTag().
		ByAuthor(owner).
		ByOperationTag(OpGrant).
		ByRecipientTag(p.signer.PublicKey()).
		ByOriginalTag(original.String())
	granted, err := p.medium.QuerySingle(ctx, grantFilter)
	if err != nil {
		return StateNone, fmt.Errorf("query grants: %w", err)
	}
	if granted != nil {
		return StateGranted, nil
	}

	requestFilter := event.NewFilter().
		ByKind(event.KindDirectMessage).
		ByAppTag().
		ByAuthor(p.signer.PublicKey()).
		ByOperationTag(OpRequest).
		ByRecipientTag(owner).
		ByFingerprintTag(original.String())
	requested, err := p.medium.QuerySingle(ctx, requestFilter)
	if err != nil {
		return StateNone, fmt.Errorf("query requests: %w", err)
	}
	if requested != nil {
		return StateRequested, nil
	}
	return StateNone, nil
}

// sealEnvelope encrypts a protocol envelope for a peer and wraps it for the
// event content field.
func (p *Protocol) sealEnvelope(ctx context.Context, peer keys.PublicKey, env Envelope) (string, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	blob, err := p.signer.Encrypt(ctx, peer, body)
	if err != nil {
		return "", fmt.Errorf("encrypt envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// OpenEnvelope decrypts a protocol message body authored by peer. Provided
// for callers that want to cross-check the tags against the sealed body.
func (p *Protocol) OpenEnvelope(ctx context.Context, peer keys.PublicKey, content string) (Envelope, error) {
	blob, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	body, err := p.signer.Decrypt(ctx, peer, blob)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope body: %w", err)
	}
	return env, nil
}

func receiptKey(original storage.Ref) []byte {
	return []byte("receipt/" + original.String())
}

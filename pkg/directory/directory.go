// Package directory implements the per-identity encrypted directory: a
// mergeable, replaceable map from content fingerprints to provenance
// metadata. The map itself is plaintext JSON so any party can discover and
// merge it without the owner online; only the referenced artifact content is
// encrypted (to the owner's self-conversation key) before upload.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/provshare/provshare/pkg/crypt"
	"github.com/provshare/provshare/pkg/event"
	"github.com/provshare/provshare/pkg/keys"
	"github.com/provshare/provshare/pkg/relay"
	"github.com/provshare/provshare/pkg/storage"
)

// Identifier is the fixed replaceable-record discriminator: the medium
// treats same-owner-same-identifier records as superseding one another.
const Identifier = "provshare-directory-v1"

// Record is the provenance metadata attached to one fingerprint.
type Record struct {
	Type       string `json:"type"`
	Project    string `json:"project"`
	Algorithm  string `json:"algorithm"`
	StorageRef string `json:"storageReference"`
	Timestamp  int64  `json:"timestamp"`
}

// Entry is a flattened directory row: a fingerprint and its record.
type Entry struct {
	Fingerprint storage.Ref
	Record      Record
}

// Store reads and writes directory records for one identity.
type Store struct {
	signer crypt.Signer
	medium relay.Medium
	blobs  storage.BlobStore
	log    *slog.Logger
	now    func() time.Time
}

// New builds a directory store around the owner's signer capability and the
// external collaborators.
func New(signer crypt.Signer, medium relay.Medium, blobs storage.BlobStore, log *slog.Logger) *Store {
	return &Store{
		signer: signer,
		medium: medium,
		blobs:  blobs,
		log:    log,
		now:    time.Now,
	}
}

// Publish is the secure-logging operation: it encrypts a payload to the
// owner's self-conversation key, uploads the blob, and appends the resulting
// fingerprint to the directory. The fingerprint of the entry is the content
// reference of the encrypted artifact.
func (s *Store) Publish(ctx context.Context, payload []byte, rec Record) (Entry, error) {
	if s.signer == nil {
		return Entry{}, crypt.ErrNoSigner
	}

	// Encrypt to self: owner's own public key fed back into the
	// conversation-key derivation.
	blob, err := s.signer.Encrypt(ctx, s.signer.PublicKey(), payload)
	if err != nil {
		return Entry{}, fmt.Errorf("encrypt payload: %w", err)
	}

	ref, err := s.blobs.Upload(ctx, blob, rec.Project)
	if err != nil {
		return Entry{}, fmt.Errorf("upload payload: %w", err)
	}

	rec.StorageRef = ref.String()
	if rec.Timestamp == 0 {
		rec.Timestamp = s.now().Unix()
	}

	if err := s.Append(ctx, ref, rec); err != nil {
		return Entry{}, err
	}
	return Entry{Fingerprint: ref, Record: rec}, nil
}

// Append merges one fingerprint entry into the owner's directory and
// republishes the whole map as a new replaceable record. Appending the same
// fingerprint again overwrites its entry, so retries are safe.
func (s *Store) Append(ctx context.Context, fingerprint storage.Ref, rec Record) error {
	if s.signer == nil {
		return crypt.ErrNoSigner
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = s.now().Unix()
	}

	merged, err := s.snapshot(ctx, s.signer.PublicKey())
	if err != nil {
		return fmt.Errorf("load directory snapshot: %w", err)
	}
	merged[fingerprint.String()] = rec

	content, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode directory: %w", err)
	}

	ev := event.New(event.KindDirectory, string(content))
	ev.CreatedAt = s.now().Unix()
	ev.AppendTag(event.TagIdentifier, Identifier)
	if err := ev.Sign(ctx, s.signer); err != nil {
		return err
	}
	if err := s.medium.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish directory record: %w", err)
	}
	return nil
}

// List returns every directory entry for an owner, merged across all
// historical snapshots in timestamp order. A corrupt snapshot is skipped and
// logged rather than aborting the listing.
func (s *Store) List(ctx context.Context, owner keys.PublicKey) ([]Entry, error) {
	merged, err := s.snapshot(ctx, owner)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(merged))
	for fingerprint, rec := range merged {
		entries = append(entries, Entry{Fingerprint: storage.Ref(fingerprint), Record: rec})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Record.Timestamp != entries[j].Record.Timestamp {
			return entries[i].Record.Timestamp < entries[j].Record.Timestamp
		}
		return entries[i].Fingerprint < entries[j].Fingerprint
	})
	return entries, nil
}

// Lookup returns the directory record behind one fingerprint, if present.
func (s *Store) Lookup(ctx context.Context, owner keys.PublicKey, fingerprint storage.Ref) (Record, bool, error) {
	merged, err := s.snapshot(ctx, owner)
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := merged[fingerprint.String()]
	return rec, ok, nil
}

// snapshot merges all published directory records for an owner. Events are
// consumed in created-at order, so a later snapshot overwrites a fingerprint
// key but never removes earlier fingerprints it no longer lists.
func (s *Store) snapshot(ctx context.Context, owner keys.PublicKey) (map[string]Record, error) {
	filter := event.NewFilter().
		ByAuthor(owner).
		ByKind(event.KindDirectory).
		ByAppTag().
		ByIdentifierTag(Identifier)

	events, err := s.medium.QuerySet(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query directory records: %w", err)
	}

	merged := make(map[string]Record)
	for _, ev := range events {
		var snapshot map[string]Record
		if err := json.Unmarshal([]byte(ev.Content), &snapshot); err != nil {
			s.log.Warn("skipping corrupt directory record",
				"owner", owner.String(), "event", ev.ID, "error", err)
			continue
		}
		for fingerprint, rec := range snapshot {
			prev, exists := merged[fingerprint]
			if exists && prev.Timestamp > rec.Timestamp {
				continue
			}
			merged[fingerprint] = rec
		}
	}
	return merged, nil
}

package directory

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/provshare/provshare/pkg/crypt"
	"github.com/provshare/provshare/pkg/event"
	"github.com/provshare/provshare/pkg/keys"
	"github.com/provshare/provshare/pkg/relay"
	"github.com/provshare/provshare/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSigner(t *testing.T) *crypt.LocalSigner {
	t.Helper()
	id, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	return crypt.NewLocalSigner(id)
}

// fakeClock hands out strictly increasing seconds so every published
// snapshot gets a distinct created_at.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func testStore(t *testing.T) (*Store, *crypt.LocalSigner, *relay.MemoryMedium, *storage.MemoryStore) {
	t.Helper()
	signer := testSigner(t)
	medium := relay.NewMemoryMedium()
	blobs := storage.NewMemoryStore()

	s := New(signer, medium, blobs, testLogger())
	s.now = (&fakeClock{t: time.Unix(1_700_000_000, 0)}).Now
	return s, signer, medium, blobs
}

func TestPublishRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, signer, _, blobs := testStore(t)

	payload := []byte("experiment output")
	entry, err := s.Publish(ctx, payload, Record{Type: "result", Project: "p1", Algorithm: "aes-gcm"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if entry.Fingerprint == "" {
		t.Fatal("expected a fingerprint")
	}
	if entry.Record.StorageRef != entry.Fingerprint.String() {
		t.Error("record must reference the uploaded blob")
	}
	if entry.Record.Timestamp == 0 {
		t.Error("record must carry a timestamp")
	}

	// The blob is the ciphertext, decryptable only with the owner's self key.
	blob, err := blobs.Fetch(ctx, entry.Fingerprint)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	plain, err := signer.Decrypt(ctx, signer.PublicKey(), blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(plain) != string(payload) {
		t.Error("decrypted blob does not match payload")
	}

	entries, err := s.List(ctx, signer.PublicKey())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Fingerprint != entry.Fingerprint {
		t.Fatalf("expected the published entry in the directory, got %d entries", len(entries))
	}
}

func TestAppendIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, signer, _, _ := testStore(t)

	ref, err := storage.ComputeRef([]byte("ciphertext"))
	if err != nil {
		t.Fatalf("ComputeRef: %v", err)
	}
	rec := Record{Type: "result", Project: "p1", Timestamp: 42}

	if err := s.Append(ctx, ref, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, ref, rec); err != nil {
		t.Fatalf("Append retry: %v", err)
	}

	entries, err := s.List(ctx, signer.PublicKey())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("retried append must not duplicate the entry, got %d", len(entries))
	}
}

func TestAppendLaterTimestampWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, signer, _, _ := testStore(t)

	ref, err := storage.ComputeRef([]byte("ciphertext"))
	if err != nil {
		t.Fatalf("ComputeRef: %v", err)
	}

	if err := s.Append(ctx, ref, Record{Project: "old", Timestamp: 10}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, ref, Record{Project: "new", Timestamp: 20}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rec, ok, err := s.Lookup(ctx, signer.PublicKey(), ref)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected the fingerprint in the directory")
	}
	if rec.Project != "new" {
		t.Errorf("later record must win, got %q", rec.Project)
	}
}

func TestListMergesSnapshots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, signer, _, _ := testStore(t)

	var refs []storage.Ref
	for _, data := range []string{"one", "two", "three"} {
		ref, err := storage.ComputeRef([]byte(data))
		if err != nil {
			t.Fatalf("ComputeRef: %v", err)
		}
		refs = append(refs, ref)
		if err := s.Append(ctx, ref, Record{Project: data}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := s.List(ctx, signer.PublicKey())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 merged entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Record.Timestamp > entries[i].Record.Timestamp {
			t.Fatal("entries not sorted by timestamp")
		}
	}

	for _, ref := range refs {
		if _, ok, err := s.Lookup(ctx, signer.PublicKey(), ref); err != nil || !ok {
			t.Errorf("Lookup(%s): ok=%v err=%v", ref, ok, err)
		}
	}
}

func TestListSkipsCorruptSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, signer, medium, _ := testStore(t)

	ref, err := storage.ComputeRef([]byte("good"))
	if err != nil {
		t.Fatalf("ComputeRef: %v", err)
	}
	if err := s.Append(ctx, ref, Record{Project: "good"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// A syntactically broken snapshot from the same owner must not poison
	// the listing.
	corrupt := event.New(event.KindDirectory, "{not json")
	corrupt.AppendTag(event.TagIdentifier, Identifier)
	if err := corrupt.Sign(ctx, signer); err != nil {
		t.Fatalf("sign corrupt snapshot: %v", err)
	}
	if err := medium.Publish(ctx, corrupt); err != nil {
		t.Fatalf("publish corrupt snapshot: %v", err)
	}

	entries, err := s.List(ctx, signer.PublicKey())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Fingerprint != ref {
		t.Errorf("expected the good entry to survive, got %d entries", len(entries))
	}
}

func TestPublishWithoutSigner(t *testing.T) {
	t.Parallel()
	s := New(nil, relay.NewMemoryMedium(), storage.NewMemoryStore(), testLogger())

	if _, err := s.Publish(context.Background(), []byte("x"), Record{}); err != crypt.ErrNoSigner {
		t.Errorf("expected ErrNoSigner, got %v", err)
	}
}

func TestListOtherOwnerEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, _, _ := testStore(t)

	other := testSigner(t)
	entries, err := s.List(ctx, other.PublicKey())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty directory for unrelated owner, got %d", len(entries))
	}
}

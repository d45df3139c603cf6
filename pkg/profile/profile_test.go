package profile

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

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

func publishProfile(t *testing.T, medium relay.Medium, signer crypt.Signer, p Profile, createdAt int64) {
	t.Helper()
	content, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal profile: %v", err)
	}
	ev := event.New(event.KindProfile, string(content))
	ev.CreatedAt = createdAt
	if err := ev.Sign(context.Background(), signer); err != nil {
		t.Fatalf("sign profile: %v", err)
	}
	if err := medium.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish profile: %v", err)
	}
}

func TestGetMissesWithoutRefresh(t *testing.T) {
	t.Parallel()
	cache := NewCache(relay.NewMemoryMedium(), nil, testLogger())

	signer := testSigner(t)
	if _, ok := cache.Get(signer.PublicKey()); ok {
		t.Error("empty cache must miss")
	}
}

func TestRefreshThenGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	medium := relay.NewMemoryMedium()
	cache := NewCache(medium, nil, testLogger())
	signer := testSigner(t)

	publishProfile(t, medium, signer, Profile{Name: "Dr. Ada"}, 100)

	if err := cache.Refresh(ctx, signer.PublicKey()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	p, ok := cache.Get(signer.PublicKey())
	if !ok {
		t.Fatal("expected a cached profile after refresh")
	}
	if p.Name != "Dr. Ada" {
		t.Errorf("unexpected profile name %q", p.Name)
	}
	if p.UpdatedAt != 100 {
		t.Errorf("expected UpdatedAt from the event, got %d", p.UpdatedAt)
	}
}

func TestRefreshPicksNewest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	medium := relay.NewMemoryMedium()
	cache := NewCache(medium, nil, testLogger())
	signer := testSigner(t)

	publishProfile(t, medium, signer, Profile{Name: "old name"}, 100)
	publishProfile(t, medium, signer, Profile{Name: "new name"}, 200)

	if err := cache.Refresh(ctx, signer.PublicKey()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	p, ok := cache.Get(signer.PublicKey())
	if !ok || p.Name != "new name" {
		t.Errorf("expected the newest profile, got %+v ok=%v", p, ok)
	}
}

func TestRefreshMissingProfile(t *testing.T) {
	t.Parallel()
	cache := NewCache(relay.NewMemoryMedium(), nil, testLogger())
	signer := testSigner(t)

	if err := cache.Refresh(context.Background(), signer.PublicKey()); err != nil {
		t.Errorf("a missing profile is not an error, got %v", err)
	}
	if _, ok := cache.Get(signer.PublicKey()); ok {
		t.Error("missing profile must leave the cache entry absent")
	}
}

func TestGetFallsBackToLocalStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	medium := relay.NewMemoryMedium()
	signer := testSigner(t)

	local, err := storage.OpenLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenLocalStore: %v", err)
	}
	defer local.Close()

	warm := NewCache(medium, local, testLogger())
	publishProfile(t, medium, signer, Profile{Name: "persisted"}, 100)
	if err := warm.Refresh(ctx, signer.PublicKey()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// A fresh cache over the same local store finds the profile without
	// touching the medium.
	cold := NewCache(relay.NewMemoryMedium(), local, testLogger())
	p, ok := cold.Get(signer.PublicKey())
	if !ok || p.Name != "persisted" {
		t.Errorf("expected the persisted profile, got %+v ok=%v", p, ok)
	}
}

func TestPrefetchContinuesOnFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	medium := relay.NewMemoryMedium()
	cache := NewCache(medium, nil, testLogger())

	known := testSigner(t)
	unknown := testSigner(t)
	publishProfile(t, medium, known, Profile{Name: "known"}, 100)

	cache.Prefetch(ctx, []keys.PublicKey{unknown.PublicKey(), known.PublicKey()})

	if _, ok := cache.Get(known.PublicKey()); !ok {
		t.Error("prefetch must load the known profile despite earlier misses")
	}
}

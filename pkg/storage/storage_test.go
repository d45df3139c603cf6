package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestComputeRefDeterministic(t *testing.T) {
	t.Parallel()
	data := []byte("artifact bytes")

	r1, err := ComputeRef(data)
	if err != nil {
		t.Fatalf("ComputeRef: %v", err)
	}
	r2, err := ComputeRef(data)
	if err != nil {
		t.Fatalf("ComputeRef: %v", err)
	}
	if r1 != r2 {
		t.Error("same content must produce the same reference")
	}

	r3, err := ComputeRef([]byte("different bytes"))
	if err != nil {
		t.Fatalf("ComputeRef: %v", err)
	}
	if r1 == r3 {
		t.Error("different content must produce different references")
	}
}

func TestComputeRefParses(t *testing.T) {
	t.Parallel()
	ref, err := ComputeRef([]byte("x"))
	if err != nil {
		t.Fatalf("ComputeRef: %v", err)
	}

	parsed, err := ParseRef(ref.String())
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	if parsed != ref {
		t.Error("reference must survive its own string form")
	}

	if _, err := ParseRef("not a cid"); err == nil {
		t.Error("expected error for garbage reference")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	data := []byte("encrypted artifact")

	ref, err := store.Upload(ctx, data, "artifact")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	want, err := ComputeRef(data)
	if err != nil {
		t.Fatalf("ComputeRef: %v", err)
	}
	if ref != want {
		t.Error("upload must return the content reference of the data")
	}

	got, err := store.Fetch(ctx, ref)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("fetched data does not match uploaded data")
	}
}

func TestMemoryStoreFetchMissing(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()

	ref, err := ComputeRef([]byte("never uploaded"))
	if err != nil {
		t.Fatalf("ComputeRef: %v", err)
	}
	if _, err := store.Fetch(context.Background(), ref); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestMemoryStoreFetchReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	ref, err := store.Upload(ctx, []byte("immutable"), "x")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	first, err := store.Fetch(ctx, ref)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	first[0] = 'X'

	second, err := store.Fetch(ctx, ref)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(second, []byte("immutable")) {
		t.Error("mutating a fetched slice must not corrupt the store")
	}
}

func TestMemoryStoreUploadIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	data := []byte("same bytes twice")

	r1, err := store.Upload(ctx, data, "a")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	r2, err := store.Upload(ctx, data, "b")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if r1 != r2 {
		t.Error("uploading the same content twice must yield the same reference")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 stored blob, got %d", store.Len())
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := OpenLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenLocalStore: %v", err)
	}
	defer store.Close()

	key := []byte("receipt/bafy...")
	if err := store.Put(key, []byte("plaintext")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "plaintext" {
		t.Errorf("round trip mismatch: %q", got)
	}

	if err := store.Put(key, []byte("updated")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err = store.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "updated" {
		t.Errorf("overwrite mismatch: %q", got)
	}
}

func TestLocalStoreGetMissing(t *testing.T) {
	t.Parallel()
	store, err := OpenLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenLocalStore: %v", err)
	}
	defer store.Close()

	if _, err := store.Get([]byte("absent")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// Package storage defines the content-addressed blob collaborator the core
// consumes, plus a gateway client and an in-memory implementation. Blobs are
// opaque; anyone holding a reference can fetch the bytes, which is why only
// ciphertext ever goes in.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ErrUnavailable is returned when the blob collaborator cannot serve an
// upload or fetch. Retriable by the caller; no protocol message may be
// published referencing a blob whose upload failed.
var ErrUnavailable = errors.New("storage: blob storage unavailable")

// Ref is a content-addressed reference: same bytes in, same reference out.
type Ref string

func (r Ref) String() string { return string(r) }

// BlobStore is the external blob collaborator.
type BlobStore interface {
	// Upload stores bytes and returns their content reference.
	Upload(ctx context.Context, data []byte, name string) (Ref, error)

	// Fetch retrieves the bytes behind a reference.
	Fetch(ctx context.Context, ref Ref) ([]byte, error)
}

// ComputeRef derives the CIDv1 reference for raw bytes without uploading
// them. Implementations of BlobStore must agree with it.
func ComputeRef(data []byte) (Ref, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash blob: %w", err)
	}
	return Ref(cid.NewCidV1(cid.Raw, mh).String()), nil
}

// ParseRef validates the encoding of a reference.
func ParseRef(s string) (Ref, error) {
	if _, err := cid.Decode(s); err != nil {
		return "", fmt.Errorf("parse content reference: %w", err)
	}
	return Ref(s), nil
}

// Package main runs the full sharing exchange between two in-process
// identities over an in-memory medium and blob store:
//
//	go run ./cmd/sharedemo
//
// Alice secure-logs a payload, Bob discovers it in her directory, requests
// access, Alice grants, and Bob fetches and decrypts the shared copy.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/provshare/provshare"
	"github.com/provshare/provshare/pkg/directory"
	"github.com/provshare/provshare/pkg/keys"
	"github.com/provshare/provshare/pkg/logging"
	"github.com/provshare/provshare/pkg/relay"
	"github.com/provshare/provshare/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "sharedemo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	payload := flag.String(
		"payload",
		"experiment 42: reagent batch B-117, yield 94.2%",
		"plaintext result payload Alice logs and later shares",
	)
	flag.Parse()

	log := logging.New(slog.LevelInfo)
	ctx := context.Background()

	// Both clients share one medium and one blob store, standing in for
	// the relays and the storage gateway.
	medium := relay.NewMemoryMedium()
	blobs := storage.NewMemoryStore()

	alice, err := newClient(ctx, medium, blobs, log.With("who", "alice"))
	if err != nil {
		return err
	}
	defer alice.Close(ctx)

	bob, err := newClient(ctx, medium, blobs, log.With("who", "bob"))
	if err != nil {
		return err
	}
	defer bob.Close(ctx)

	alicePub, err := alice.PublicKey()
	if err != nil {
		return err
	}

	// Alice logs an encrypted result.
	entry, err := alice.SecureLog(ctx, []byte(*payload), directory.Record{
		Type:      "result",
		Project:   "demo",
		Algorithm: "aes-gcm",
	})
	if err != nil {
		return fmt.Errorf("secure log: %w", err)
	}
	fmt.Printf("alice logged fingerprint %s\n", entry.Fingerprint)

	// Bob browses Alice's directory and requests the entry.
	records, err := bob.Records(ctx, alicePub)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	fmt.Printf("bob sees %d record(s) in alice's directory\n", len(records))

	if err := bob.RequestShare(ctx, alicePub, entry.Fingerprint); err != nil {
		return fmt.Errorf("request share: %w", err)
	}

	// Alice discovers the pending request and grants it.
	pending, err := alice.PendingShareRequests(ctx)
	if err != nil {
		return fmt.Errorf("pending requests: %w", err)
	}
	for _, req := range pending {
		ref, err := alice.GrantShare(ctx, req)
		if err != nil {
			return fmt.Errorf("grant share: %w", err)
		}
		fmt.Printf("alice granted, re-encrypted copy at %s\n", ref)
	}

	// Bob discovers the grant and fetches the plaintext.
	grants, err := bob.ShareGrants(ctx)
	if err != nil {
		return fmt.Errorf("list grants: %w", err)
	}
	for _, g := range grants {
		plain, err := bob.FetchShare(ctx, g)
		if err != nil {
			return fmt.Errorf("fetch share: %w", err)
		}
		fmt.Printf("bob decrypted: %s\n", plain)

		state, err := bob.ShareStatus(ctx, g.Owner, g.Original)
		if err != nil {
			return fmt.Errorf("share status: %w", err)
		}
		fmt.Printf("exchange state: %s\n", state)
	}
	return nil
}

func newClient(ctx context.Context, medium relay.Medium, blobs storage.BlobStore, log *slog.Logger) (*provshare.Client, error) {
	client, err := provshare.New(provshare.Config{
		Medium: medium,
		Blobs:  blobs,
		Logger: log,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Start(ctx); err != nil {
		return nil, err
	}

	id, err := keys.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	client.UseIdentity(id)
	return client, nil
}

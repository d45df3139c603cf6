// Package provshare is the secure data sharing layer of a research
// provenance application: deterministic identities derived from wallet
// signatures, authenticated encryption of arbitrary-size payloads under
// pairwise conversation keys, an encrypted per-identity directory of
// published artifacts, and a request/grant/fetch protocol for handing access
// to encrypted content between identities. Everything rides on an external
// broadcast medium and a content-addressed blob store.
package provshare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/provshare/provshare/pkg/crypt"
	"github.com/provshare/provshare/pkg/directory"
	"github.com/provshare/provshare/pkg/keys"
	"github.com/provshare/provshare/pkg/logging"
	"github.com/provshare/provshare/pkg/profile"
	"github.com/provshare/provshare/pkg/relay"
	"github.com/provshare/provshare/pkg/share"
	"github.com/provshare/provshare/pkg/storage"
)

var (
	ErrNotStarted = errors.New("provshare: client not started")
	ErrClosed     = errors.New("provshare: client closed")
)

// Client is the main handle. It owns the identity capability, the
// collaborator clients, and the lifecycle of the local store.
type Client struct {
	log    *slog.Logger
	config Config

	mu     sync.RWMutex
	signer crypt.Signer
	dir    *directory.Store
	proto  *share.Protocol

	medium   relay.Medium
	blobs    storage.BlobStore
	local    *storage.LocalStore
	profiles *profile.Cache

	started   atomic.Bool
	closed    atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New constructs a client handle. New does not perform I/O; call Start.
func New(conf Config) (*Client, error) {
	if conf.Logger == nil {
		conf.Logger = logging.Default()
	}
	if conf.Medium == nil && len(conf.Relays) == 0 {
		return nil, fmt.Errorf("config: a Medium or at least one relay is required")
	}
	if conf.Blobs == nil && (conf.StorageUploadURL == "" || conf.StorageGatewayURL == "") {
		return nil, fmt.Errorf("config: a BlobStore or storage endpoints are required")
	}
	return &Client{
		log:    conf.Logger,
		config: conf,
	}, nil
}

// Start initializes the collaborator clients and the local store. Safe to
// call multiple times; only the first call has effect.
func (c *Client) Start(ctx context.Context) error {
	var startErr error
	c.startOnce.Do(func() {
		c.medium = c.config.Medium
		if c.medium == nil {
			c.medium = relay.NewPool(c.config.Relays, c.log)
		}

		c.blobs = c.config.Blobs
		if c.blobs == nil {
			c.blobs = storage.NewGatewayStore(c.config.StorageUploadURL, c.config.StorageGatewayURL)
		}

		if c.config.LocalPath != "" {
			local, err := storage.OpenLocalStore(c.config.LocalPath)
			if err != nil {
				startErr = fmt.Errorf("open local store: %w", err)
				return
			}
			c.local = local
		}

		c.profiles = profile.NewCache(c.medium, c.local, c.log)

		if c.config.Signer != nil {
			c.useSigner(c.config.Signer)
		}

		c.started.Store(true)
		c.log.Info("provshare client started", "relays", len(c.config.Relays))
	})
	return startErr
}

// Close releases the local store. Idempotent.
func (c *Client) Close(ctx context.Context) error {
	var closeErr error
	c.closeOnce.Do(func() {
		if c.local != nil {
			if err := c.local.Close(); err != nil {
				closeErr = fmt.Errorf("close local store: %w", err)
			}
		}
		c.started.Store(false)
		c.closed.Store(true)
		c.log.Info("provshare client closed")
	})
	return closeErr
}

// Login derives the messaging identity by wallet signature and wires the
// identity-bound components. A cancelled signature surfaces as
// keys.ErrAuthenticationCancelled and leaves the client without an identity.
func (c *Client) Login(ctx context.Context, wallet keys.WalletSigner) (keys.PublicKey, error) {
	if !c.started.Load() {
		return keys.PublicKey{}, ErrNotStarted
	}

	id, err := keys.Login(ctx, wallet, c.config.challenge())
	if err != nil {
		return keys.PublicKey{}, err
	}

	c.useSigner(crypt.NewLocalSigner(id))
	return id.PublicKey(), nil
}

// UseIdentity wires a held identity directly, bypassing the wallet.
func (c *Client) UseIdentity(id *keys.Identity) {
	c.useSigner(crypt.NewLocalSigner(id))
}

// UseSigner wires an external signer capability (remote signer) as the
// identity. The private key stays on the other side of the capability.
func (c *Client) UseSigner(s crypt.Signer) {
	c.useSigner(s)
}

func (c *Client) useSigner(s crypt.Signer) {
	c.mu.Lock()
	c.signer = s
	c.dir = directory.New(s, c.medium, c.blobs, c.log)
	c.proto = share.New(s, c.medium, c.blobs, c.local, c.log)
	c.mu.Unlock()
	c.log.Info("identity established", "pubkey", s.PublicKey().String())
}

// PublicKey returns the identity this client acts as.
func (c *Client) PublicKey() (keys.PublicKey, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.signer == nil {
		return keys.PublicKey{}, crypt.ErrNoSigner
	}
	return c.signer.PublicKey(), nil
}

func (c *Client) handles() (*directory.Store, *share.Protocol, error) {
	if c.closed.Load() {
		return nil, nil, ErrClosed
	}
	if !c.started.Load() {
		return nil, nil, ErrNotStarted
	}
	c.mu.RLock()
	dir, proto := c.dir, c.proto
	c.mu.RUnlock()
	if dir == nil || proto == nil {
		return nil, nil, crypt.ErrNoSigner
	}
	return dir, proto, nil
}

// SecureLog encrypts a result payload to the own identity, uploads it, and
// records it in the identity's directory. Returns the directory entry whose
// fingerprint other identities can request.
func (c *Client) SecureLog(ctx context.Context, payload []byte, rec directory.Record) (directory.Entry, error) {
	dir, _, err := c.handles()
	if err != nil {
		return directory.Entry{}, err
	}
	return dir.Publish(ctx, payload, rec)
}

// Records lists the directory of any identity.
func (c *Client) Records(ctx context.Context, owner keys.PublicKey) ([]directory.Entry, error) {
	if !c.started.Load() {
		return nil, ErrNotStarted
	}
	c.mu.RLock()
	dir := c.dir
	c.mu.RUnlock()
	if dir == nil {
		// Listing needs no identity; metadata is plaintext. Build a
		// read-only view on demand.
		dir = directory.New(nil, c.medium, c.blobs, c.log)
	}
	return dir.List(ctx, owner)
}

// RequestShare publishes a share-request for a fingerprint owned by another
// identity.
func (c *Client) RequestShare(ctx context.Context, owner keys.PublicKey, fingerprint storage.Ref) error {
	_, proto, err := c.handles()
	if err != nil {
		return err
	}
	return proto.Request(ctx, owner, fingerprint)
}

// PendingShareRequests discovers share-requests addressed to this identity.
func (c *Client) PendingShareRequests(ctx context.Context) ([]share.Request, error) {
	_, proto, err := c.handles()
	if err != nil {
		return nil, err
	}
	return proto.PendingRequests(ctx)
}

// GrantShare answers a discovered request by re-encrypting the content for
// the requester. Idempotent per (requester, fingerprint).
func (c *Client) GrantShare(ctx context.Context, req share.Request) (storage.Ref, error) {
	_, proto, err := c.handles()
	if err != nil {
		return "", err
	}
	return proto.Grant(ctx, req)
}

// ShareGrants discovers grants addressed to this identity.
func (c *Client) ShareGrants(ctx context.Context) ([]share.Grant, error) {
	_, proto, err := c.handles()
	if err != nil {
		return nil, err
	}
	return proto.Grants(ctx)
}

// FetchShare downloads and decrypts a granted copy, persisting the plaintext
// locally when a local store is configured.
func (c *Client) FetchShare(ctx context.Context, g share.Grant) ([]byte, error) {
	_, proto, err := c.handles()
	if err != nil {
		return nil, err
	}
	return proto.Fetch(ctx, g)
}

// ShareStatus recomputes the requester-side state of one exchange.
func (c *Client) ShareStatus(ctx context.Context, owner keys.PublicKey, original storage.Ref) (share.State, error) {
	_, proto, err := c.handles()
	if err != nil {
		return share.StateNone, err
	}
	return proto.Status(ctx, owner, original)
}

// Profile returns the cached profile of an identity, if known.
func (c *Client) Profile(pk keys.PublicKey) (profile.Profile, bool) {
	if c.profiles == nil {
		return profile.Profile{}, false
	}
	return c.profiles.Get(pk)
}

// RefreshProfile fetches the newest profile record for an identity.
func (c *Client) RefreshProfile(ctx context.Context, pk keys.PublicKey) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	return c.profiles.Refresh(ctx, pk)
}

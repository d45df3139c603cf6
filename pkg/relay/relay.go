// Package relay abstracts the broadcast message medium: a set of endpoints
// treated as one undifferentiated append-only log. The core publishes signed
// events and queries them back by filter; ordering and delivery are
// best-effort, so every consumer recomputes state from full query results.
package relay

import (
	"context"
	"errors"

	"github.com/provshare/provshare/pkg/event"
)

// ErrPublishFailed is returned when no endpoint accepted a signed event.
// Treated as full operation failure by callers; nothing may be persisted
// locally as if the publish had succeeded.
var ErrPublishFailed = errors.New("relay: no endpoint accepted the event")

// Unsubscribe tears down a live subscription.
type Unsubscribe func()

// Medium is the broadcast collaborator interface.
type Medium interface {
	// Publish broadcasts a signed event. Succeeds if at least one endpoint
	// accepts it.
	Publish(ctx context.Context, ev *event.Event) error

	// QuerySingle returns the newest event matching the filter, or nil when
	// none matches.
	QuerySingle(ctx context.Context, f event.Filter) (*event.Event, error)

	// QuerySet returns all known events matching the filter, ordered by
	// created-at ascending.
	QuerySet(ctx context.Context, f event.Filter) ([]*event.Event, error)

	// Subscribe invokes fn for each matching event until unsubscribed.
	Subscribe(ctx context.Context, f event.Filter, fn func(*event.Event)) (Unsubscribe, error)
}

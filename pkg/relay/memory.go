package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/provshare/provshare/pkg/event"
)

// MemoryMedium is an in-process Medium for tests and demos. It verifies
// signatures on publish, deduplicates by event id, and replays history to
// new subscribers, matching the contract the pool expects from real
// endpoints.
type MemoryMedium struct {
	mu     sync.RWMutex
	events []*event.Event
	byID   map[string]struct{}
	subs   map[string]*memorySub
}

type memorySub struct {
	filter event.Filter
	fn     func(*event.Event)
}

// NewMemoryMedium returns an empty in-memory medium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{
		byID: make(map[string]struct{}),
		subs: make(map[string]*memorySub),
	}
}

func (m *MemoryMedium) Publish(ctx context.Context, ev *event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ev.Verify(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, seen := m.byID[ev.ID]; seen {
		m.mu.Unlock()
		return nil
	}
	m.byID[ev.ID] = struct{}{}
	m.events = append(m.events, ev)

	var notify []*memorySub
	for _, sub := range m.subs {
		if sub.filter.Matches(ev) {
			notify = append(notify, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range notify {
		sub.fn(ev)
	}
	return nil
}

func (m *MemoryMedium) QuerySingle(ctx context.Context, f event.Filter) (*event.Event, error) {
	matches, err := m.QuerySet(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[len(matches)-1], nil
}

func (m *MemoryMedium) QuerySet(ctx context.Context, f event.Filter) ([]*event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var matches []*event.Event
	for _, ev := range m.events {
		if f.Matches(ev) {
			matches = append(matches, ev)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt < matches[j].CreatedAt
	})
	if f.Limit > 0 && len(matches) > f.Limit {
		matches = matches[len(matches)-f.Limit:]
	}
	return matches, nil
}

func (m *MemoryMedium) Subscribe(ctx context.Context, f event.Filter, fn func(*event.Event)) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Replay history first so late subscribers converge on the same state.
	history, err := m.QuerySet(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, ev := range history {
		fn(ev)
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.subs[id] = &memorySub{filter: f, fn: fn}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}, nil
}

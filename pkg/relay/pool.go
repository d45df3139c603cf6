package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/provshare/provshare/pkg/event"
)

// Wire frame labels. Frames are JSON arrays:
//
//	["EVENT", event]              client -> relay publish
//	["OK", id, accepted, msg]     relay -> client publish ack
//	["REQ", subID, filter]        client -> relay query/subscribe
//	["EVENT", subID, event]       relay -> client result
//	["EOSE", subID]               relay -> client end of stored events
//	["CLOSE", subID]              client -> relay end subscription
const (
	frameEvent = "EVENT"
	frameOK    = "OK"
	frameReq   = "REQ"
	frameEOSE  = "EOSE"
	frameClose = "CLOSE"
)

const queryTimeout = 10 * time.Second

// Pool is a Medium over N websocket relay endpoints. The endpoint list is an
// undifferentiated broadcast set: publish succeeds if at least one endpoint
// accepts, queries merge and deduplicate results from all of them, and no
// per-relay selection or reliability policy is applied.
type Pool struct {
	urls   []string
	log    *slog.Logger
	dialer *websocket.Dialer
}

// NewPool builds a pool over the given websocket URLs.
func NewPool(urls []string, log *slog.Logger) *Pool {
	return &Pool{
		urls:   append([]string(nil), urls...),
		log:    log,
		dialer: websocket.DefaultDialer,
	}
}

func (p *Pool) Publish(ctx context.Context, ev *event.Event) error {
	if len(p.urls) == 0 {
		return ErrPublishFailed
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var wg sync.WaitGroup
	accepted := make(chan struct{}, len(p.urls))
	for _, url := range p.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			if err := p.publishOne(ctx, url, ev); err != nil {
				p.log.Debug("relay rejected event", "relay", url, "error", err)
				return
			}
			accepted <- struct{}{}
		}(url)
	}
	wg.Wait()
	close(accepted)

	if _, ok := <-accepted; !ok {
		return ErrPublishFailed
	}
	return nil
}

// publishOne sends one event to one relay and waits for its OK ack. A write
// that is never acknowledged, or acknowledged with accepted=false, does not
// count as acceptance.
func (p *Pool) publishOne(ctx context.Context, url string, ev *event.Event) error {
	conn, _, err := p.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON([]interface{}{frameEvent, ev}); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(queryTimeout)
	}
	_ = conn.SetReadDeadline(deadline)

	for {
		label, payload, err := readFrame(conn)
		if err != nil {
			return fmt.Errorf("await ack: %w", err)
		}
		if label != frameOK || len(payload) < 2 {
			continue
		}

		var id string
		if err := json.Unmarshal(payload[0], &id); err != nil || id != ev.ID {
			continue
		}
		var accepted bool
		if err := json.Unmarshal(payload[1], &accepted); err != nil {
			return fmt.Errorf("malformed ack: %w", err)
		}
		if !accepted {
			reason := ""
			if len(payload) > 2 {
				_ = json.Unmarshal(payload[2], &reason)
			}
			return fmt.Errorf("relay refused event: %s", reason)
		}
		return nil
	}
}

func (p *Pool) QuerySingle(ctx context.Context, f event.Filter) (*event.Event, error) {
	matches, err := p.QuerySet(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[len(matches)-1], nil
}

func (p *Pool) QuerySet(ctx context.Context, f event.Filter) ([]*event.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		seen   = make(map[string]struct{})
		merged []*event.Event
		wg     sync.WaitGroup
	)
	for _, url := range p.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			events, err := p.queryOne(ctx, url, f)
			if err != nil {
				p.log.Debug("relay query failed", "relay", url, "error", err)
				return
			}
			mu.Lock()
			for _, ev := range events {
				if _, dup := seen[ev.ID]; dup {
					continue
				}
				seen[ev.ID] = struct{}{}
				merged = append(merged, ev)
			}
			mu.Unlock()
		}(url)
	}
	wg.Wait()

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt < merged[j].CreatedAt
	})
	if f.Limit > 0 && len(merged) > f.Limit {
		merged = merged[len(merged)-f.Limit:]
	}
	return merged, nil
}

// queryOne runs one REQ against one relay and collects events until EOSE.
func (p *Pool) queryOne(ctx context.Context, url string, f event.Filter) ([]*event.Event, error) {
	conn, _, err := p.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	subID := uuid.NewString()
	if err := conn.WriteJSON([]interface{}{frameReq, subID, f}); err != nil {
		return nil, fmt.Errorf("write req: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(queryTimeout)
	}
	_ = conn.SetReadDeadline(deadline)

	var events []*event.Event
	for {
		label, payload, err := readFrame(conn)
		if err != nil {
			return events, err
		}
		switch label {
		case frameEOSE:
			_ = conn.WriteJSON([]interface{}{frameClose, subID})
			return events, nil
		case frameEvent:
			ev, err := decodeEventFrame(payload)
			if err != nil {
				p.log.Debug("drop malformed event frame", "relay", url, "error", err)
				continue
			}
			if err := ev.Verify(); err != nil {
				p.log.Debug("drop unverifiable event", "relay", url, "error", err)
				continue
			}
			events = append(events, ev)
		}
	}
}

func (p *Pool) Subscribe(ctx context.Context, f event.Filter, fn func(*event.Event)) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	deliver := func(ev *event.Event) {
		mu.Lock()
		_, dup := seen[ev.ID]
		if !dup {
			seen[ev.ID] = struct{}{}
		}
		mu.Unlock()
		if !dup {
			fn(ev)
		}
	}

	for _, url := range p.urls {
		go p.subscribeOne(subCtx, url, f, deliver)
	}
	return Unsubscribe(cancel), nil
}

// subscribeOne holds one long-lived subscription against one relay,
// redialing with a flat backoff until the subscription context ends.
func (p *Pool) subscribeOne(ctx context.Context, url string, f event.Filter, deliver func(*event.Event)) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.runSubscription(ctx, url, f, deliver); err != nil && ctx.Err() == nil {
			p.log.Debug("subscription dropped", "relay", url, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (p *Pool) runSubscription(ctx context.Context, url string, f event.Filter, deliver func(*event.Event)) error {
	conn, _, err := p.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	// Close the socket when the subscription ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	subID := uuid.NewString()
	if err := conn.WriteJSON([]interface{}{frameReq, subID, f}); err != nil {
		return fmt.Errorf("write req: %w", err)
	}

	for {
		label, payload, err := readFrame(conn)
		if err != nil {
			return err
		}
		if label != frameEvent {
			continue
		}
		ev, err := decodeEventFrame(payload)
		if err != nil {
			continue
		}
		if err := ev.Verify(); err != nil {
			continue
		}
		deliver(ev)
	}
}

// readFrame reads one JSON array frame and returns its label and remaining
// elements.
func readFrame(conn *websocket.Conn) (string, []json.RawMessage, error) {
	var raw []json.RawMessage
	if err := conn.ReadJSON(&raw); err != nil {
		return "", nil, err
	}
	if len(raw) == 0 {
		return "", nil, fmt.Errorf("empty frame")
	}
	var label string
	if err := json.Unmarshal(raw[0], &label); err != nil {
		return "", nil, fmt.Errorf("frame label: %w", err)
	}
	return label, raw[1:], nil
}

// decodeEventFrame extracts the event from an inbound EVENT frame, which may
// or may not carry a subscription id before the event object.
func decodeEventFrame(payload []json.RawMessage) (*event.Event, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("event frame without payload")
	}
	raw := payload[len(payload)-1]

	var ev event.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}

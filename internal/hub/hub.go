// Package hub fans alert notifications out to live subscribers.
package hub

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"svfe-monitor/internal/telemetry"
)

// ErrClosed is returned by senders that no longer accept messages.
var ErrClosed = errors.New("hub: subscriber closed")

// Sender is one subscriber connection. Send must not block.
type Sender interface {
	Send(msg []byte) error
	Close()
}

// Handle identifies a subscription.
type Handle uint64

// Hub owns the subscriber set. All methods are safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	subs   map[Handle]Sender
	closed bool
	nextID atomic.Uint64
	logger zerolog.Logger
}

// New constructs an empty hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[Handle]Sender),
		logger: logger.With().Str("component", "hub").Logger(),
	}
}

// Subscribe adds s to the set. On a closed hub the sender is closed and the
// zero Handle is returned.
func (h *Hub) Subscribe(s Sender) Handle {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.Close()
		return 0
	}
	id := Handle(h.nextID.Add(1))
	h.subs[id] = s
	n := len(h.subs)
	h.mu.Unlock()

	telemetry.HubSubscribers.Set(float64(n))
	h.logger.Debug().Uint64("handle", uint64(id)).Int("subscribers", n).Msg("subscriber added")
	return id
}

// Unsubscribe removes a subscription and closes its sender. Unknown handles
// are ignored.
func (h *Hub) Unsubscribe(id Handle) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return
	}
	s.Close()
	telemetry.HubSubscribers.Set(float64(n))
	h.logger.Debug().Uint64("handle", uint64(id)).Int("subscribers", n).Msg("subscriber removed")
}

// Broadcast sends msg to every current subscriber and returns how many
// accepted it. Subscribers whose send fails are removed once the pass is done.
func (h *Hub) Broadcast(msg []byte) int {
	h.mu.Lock()
	targets := make(map[Handle]Sender, len(h.subs))
	for id, s := range h.subs {
		targets[id] = s
	}
	h.mu.Unlock()

	delivered := 0
	var failed []Handle
	for id, s := range targets {
		if err := s.Send(msg); err != nil {
			failed = append(failed, id)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		for _, id := range failed {
			h.Unsubscribe(id)
		}
		telemetry.HubEvictions.Add(float64(len(failed)))
		h.logger.Warn().Int("removed", len(failed)).Int("delivered", delivered).Msg("dropped failing subscribers")
	}
	return delivered
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber and rejects further subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[Handle]Sender)
	h.closed = true
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	telemetry.HubSubscribers.Set(0)
}

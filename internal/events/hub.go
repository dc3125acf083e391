package events

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber queue length used by Subscribe.
const DefaultBuffer = 64

// Observer receives hub bookkeeping callbacks. Implementations must not
// block.
type Observer interface {
	Published(kind Kind)
	Evicted()
	Subscribers(n int)
}

// Subscription is a registered delivery target. Events() is closed once the
// subscription is removed, either explicitly or because delivery failed.
type Subscription struct {
	id string
	ch chan Event
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Events returns the delivery channel.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Hub is an in-memory pub/sub with one buffered channel per subscriber.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	buffer   int
	observer Observer
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithObserver installs bookkeeping callbacks (metrics).
func WithObserver(o Observer) Option {
	return func(h *Hub) { h.observer = o }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{subs: make(map[*Subscription]struct{}), buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{id: uuid.NewString(), ch: make(chan Event, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.observeSubscribers(n)
	return s
}

// Unsubscribe removes s and closes its channel. Calling it again, or with a
// subscription the hub already evicted, is a no-op.
func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.subs[s]
	if ok {
		delete(h.subs, s)
		close(s.ch)
	}
	n := len(h.subs)
	h.mu.Unlock()
	if ok {
		h.observeSubscribers(n)
	}
}

// Publish delivers e to every subscriber without blocking. A subscriber whose
// queue is full has stopped draining (its transport is stalled or gone); it is
// evicted after the pass so the remaining subscribers are unaffected.
func (h *Hub) Publish(e Event) {
	if e == nil {
		return
	}
	var failed []*Subscription
	// The read lock only guards the set against concurrent close; sends are
	// non-blocking channel operations, never socket writes.
	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.ch <- e:
		default:
			failed = append(failed, s)
		}
	}
	h.mu.RUnlock()

	if h.observer != nil {
		h.observer.Published(e.Kind())
	}
	for _, s := range failed {
		h.Unsubscribe(s)
		if h.observer != nil {
			h.observer.Evicted()
		}
	}
}

// Len returns the number of current subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) observeSubscribers(n int) {
	if h.observer != nil {
		h.observer.Subscribers(n)
	}
}

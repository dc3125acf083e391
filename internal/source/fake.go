package source

import (
	"errors"
	"sync"
)

// FakeSubscriber records subscriptions and lets tests deliver messages.
type FakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string]MessageHandler

	// SubscribeError, if set, is returned by Subscribe.
	SubscribeError error
	Closed         bool
}

func (f *FakeSubscriber) Subscribe(topic string, _ byte, handler MessageHandler) error {
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]MessageHandler)
	}
	f.handlers[topic] = handler
	return nil
}

// Deliver hands payload to the handler subscribed under filter.
func (f *FakeSubscriber) Deliver(filter, topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[filter]
	f.mu.Unlock()
	if ok {
		h(topic, payload)
	}
	return ok
}

func (f *FakeSubscriber) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.handlers))
	for t := range f.handlers {
		out = append(out, t)
	}
	return out
}

func (f *FakeSubscriber) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeContacts returns scripted contact states. Each Read consumes the next
// sample; the last one repeats.
type FakeContacts struct {
	Samples   []map[string]bool
	ReadError error
	Closed    bool

	index int
}

func (f *FakeContacts) Read() (map[string]bool, error) {
	if f.ReadError != nil {
		return nil, f.ReadError
	}
	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, nil
}

func (f *FakeContacts) Close() error {
	f.Closed = true
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"sync"

	"github.com/ManuGH/vrlink/internal/metrics"
)

// DefaultMirrorBuffer is the per-subscriber queue depth used when none is given.
const DefaultMirrorBuffer = 64

// Broadcaster fans raw payload copies out to zero or more diagnostic
// subscribers. Publishing never blocks: a subscriber whose queue is full
// misses the payload.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBroadcaster creates an open broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*Subscription]struct{})}
}

// Subscription is one mirror receiver. Payloads are shared between
// subscribers and must be treated as read-only.
type Subscription struct {
	b  *Broadcaster
	ch chan []byte
}

// C returns the payload channel. It is closed when the subscription or the
// broadcaster is closed.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once and after the
// broadcaster itself was closed.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.subs[s]; !ok {
		return
	}
	delete(s.b.subs, s)
	close(s.ch)
}

// Subscribe registers a new receiver with the given queue depth.
func (b *Broadcaster) Subscribe(buffer int) (*Subscription, error) {
	if buffer <= 0 {
		buffer = DefaultMirrorBuffer
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrMirrorClosed
	}
	sub := &Subscription{b: b, ch: make(chan []byte, buffer)}
	b.subs[sub] = struct{}{}
	return sub, nil
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish offers payload to every subscriber and returns how many accepted it.
// Zero receivers is not an error.
func (b *Broadcaster) Publish(payload []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	delivered := 0
	for sub := range b.subs {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			metrics.IncMirrorDrop()
		}
	}
	return delivered
}

// Close closes every subscription and rejects further subscribers.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

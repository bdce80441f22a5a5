// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package events is the in-process notification bus for driver lifecycle
// events. Delivery is best-effort: publishing never blocks.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/vrlink/internal/log"
	"github.com/ManuGH/vrlink/internal/metrics"
)

// Type identifies an event.
type Type string

const (
	ServerQuitting      Type = "server_quitting"
	DriverReady         Type = "driver_ready"
	SessionConnected    Type = "session_connected"
	SessionDisconnected Type = "session_disconnected"
)

// Event is a single lifecycle notification.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	At        time.Time `json:"at"`
}

const dropLogEvery = 100

var dropCount atomic.Uint64

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscriber]struct{})}
}

// Emit publishes an event of type t stamped with the current time.
func (b *Bus) Emit(t Type, sessionID string) {
	b.Publish(Event{Type: t, SessionID: sessionID, At: time.Now()})
}

// Publish offers e to every subscriber; full subscribers miss it.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			metrics.IncEventDrop(string(e.Type))
			count := dropCount.Add(1)
			if count%dropLogEvery == 0 {
				log.L().Warn().
					Str("type", string(e.Type)).
					Uint64("dropped", count).
					Msg("event bus dropped events for slow subscriber")
			}
		}
	}
}

// Subscribe registers a subscriber with the given queue depth.
func (b *Bus) Subscribe(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscriber{b: b, ch: make(chan Event, buffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Subscriber receives events until closed.
type Subscriber struct {
	b  *Bus
	ch chan Event
}

// C returns the event channel, closed by Close.
func (s *Subscriber) C() <-chan Event {
	return s.ch
}

// Close unsubscribes; safe to call more than once.
func (s *Subscriber) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.subs[s]; !ok {
		return
	}
	delete(s.b.subs, s)
	close(s.ch)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package registry holds the channel endpoints of the active client session.
// Slots exist only between a successful handshake and the next teardown; a
// caller that finds no session treats its event as dropped.
package registry

import (
	"sync"
	"time"

	"github.com/ManuGH/vrlink/internal/metrics"
	"github.com/ManuGH/vrlink/internal/packet"
)

// Stream names used in metrics and logs.
const (
	StreamControl = "control"
	StreamVideo   = "video"
	StreamHaptics = "haptics"
)

// Capacities sizes the per-session queues.
type Capacities struct {
	Control int
	Video   int
	Haptics int
}

// DefaultCapacities returns queue depths that absorb a few frames of encoder
// output while the transport drains.
func DefaultCapacities() Capacities {
	return Capacities{
		Control: 16,
		Video:   1024,
		Haptics: 64,
	}
}

func (c Capacities) normalized() Capacities {
	d := DefaultCapacities()
	if c.Control <= 0 {
		c.Control = d.Control
	}
	if c.Video <= 0 {
		c.Video = d.Video
	}
	if c.Haptics <= 0 {
		c.Haptics = d.Haptics
	}
	return c
}

// Receivers are the consumer ends of an installed session. Every channel is
// closed on Teardown.
type Receivers struct {
	SessionID string
	Control   <-chan packet.ControlPacket
	Video     <-chan packet.VideoPacket
	Haptics   <-chan packet.Haptics
	Mirror    *Broadcaster
}

type session struct {
	id        string
	control   chan packet.ControlPacket
	video     chan packet.VideoPacket
	haptics   chan packet.Haptics
	mirror    *Broadcaster
	installed time.Time
}

// Registry is the single holder of the session slots. All methods are safe
// for concurrent use; the lock is never held across I/O.
type Registry struct {
	caps Capacities

	mu   sync.Mutex
	sess *session
}

// New creates an empty registry.
func New(caps Capacities) *Registry {
	return &Registry{caps: caps.normalized()}
}

// Install creates the four slots for session id and returns the consumer ends.
func (r *Registry) Install(id string) (Receivers, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != nil {
		return Receivers{}, ErrSessionActive
	}
	s := &session{
		id:        id,
		control:   make(chan packet.ControlPacket, r.caps.Control),
		video:     make(chan packet.VideoPacket, r.caps.Video),
		haptics:   make(chan packet.Haptics, r.caps.Haptics),
		mirror:    NewBroadcaster(),
		installed: time.Now(),
	}
	r.sess = s
	metrics.SetSessionActive(true)
	return Receivers{
		SessionID: id,
		Control:   s.control,
		Video:     s.video,
		Haptics:   s.haptics,
		Mirror:    s.mirror,
	}, nil
}

// Teardown removes and closes every slot. It reports whether a session was
// installed.
func (r *Registry) Teardown() bool {
	r.mu.Lock()
	s := r.sess
	r.sess = nil
	if s != nil {
		close(s.control)
		close(s.video)
		close(s.haptics)
	}
	r.mu.Unlock()

	if s == nil {
		return false
	}
	// Closed outside the registry lock: the broadcaster has its own.
	s.mirror.Close()
	metrics.SetSessionActive(false)
	metrics.ObserveSessionDuration(time.Since(s.installed).Seconds())
	return true
}

// Active returns the installed session id.
func (r *Registry) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return "", false
	}
	return r.sess.id, true
}

// Mirror returns the installed session's broadcaster.
func (r *Registry) Mirror() (*Broadcaster, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return nil, false
	}
	return r.sess.mirror, true
}

// SubscribeMirror subscribes to the installed session's mirror.
func (r *Registry) SubscribeMirror(buffer int) (*Subscription, error) {
	m, ok := r.Mirror()
	if !ok {
		return nil, ErrNoSession
	}
	return m.Subscribe(buffer)
}

// SendControl queues a control packet without blocking.
func (r *Registry) SendControl(p packet.ControlPacket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return drop(StreamControl, ErrNoSession)
	}
	select {
	case r.sess.control <- p:
		metrics.IncStreamSent(StreamControl)
		return nil
	default:
		return drop(StreamControl, ErrQueueFull)
	}
}

// SendVideo queues a video packet without blocking.
func (r *Registry) SendVideo(p packet.VideoPacket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return drop(StreamVideo, ErrNoSession)
	}
	select {
	case r.sess.video <- p:
		metrics.IncStreamSent(StreamVideo)
		return nil
	default:
		return drop(StreamVideo, ErrQueueFull)
	}
}

// SendHaptics queues a haptics command without blocking.
func (r *Registry) SendHaptics(h packet.Haptics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return drop(StreamHaptics, ErrNoSession)
	}
	select {
	case r.sess.haptics <- h:
		metrics.IncStreamSent(StreamHaptics)
		return nil
	default:
		return drop(StreamHaptics, ErrQueueFull)
	}
}

// Backlog returns the number of queued, undrained video packets, or -1
// without a session.
func (r *Registry) Backlog() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return -1
	}
	return len(r.sess.video)
}

func drop(stream string, err error) error {
	reason := metrics.DropFull
	if err == ErrNoSession {
		reason = metrics.DropNoSession
	}
	metrics.IncStreamDrop(stream, reason)
	return err
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import "sync"

// Notifier wakes every goroutine currently waiting on it. A notification
// with no waiters leaves no pending state behind: only goroutines that
// obtained a wait channel before NotifyWaiters observe it.
//
// Each notification also bumps a generation counter. A loop that may have
// missed the wake (it was not parked yet) compares the generation it saw
// before blocking with FiredSince after resuming.
type Notifier struct {
	mu  sync.Mutex
	ch  chan struct{}
	gen uint64
}

// NewNotifier creates a notifier with no waiters.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// Wait returns a channel closed by the next NotifyWaiters together with the
// current generation.
func (n *Notifier) Wait() (<-chan struct{}, uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch == nil {
		n.ch = make(chan struct{})
	}
	return n.ch, n.gen
}

// NotifyWaiters wakes all current waiters.
func (n *Notifier) NotifyWaiters() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		close(n.ch)
	}
	n.ch = make(chan struct{})
	n.gen++
}

// Generation returns the number of notifications fired so far.
func (n *Notifier) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen
}

// FiredSince reports whether a notification fired after generation gen was observed.
func (n *Notifier) FiredSince(gen uint64) bool {
	return n.Generation() != gen
}

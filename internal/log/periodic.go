// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultPeriodicInterval is the minimum spacing between two lines for the same tag.
const DefaultPeriodicInterval = time.Second

// Periodic rate-limits log lines per tag. Each tag owns a limiter with a
// single token refilled once per interval, so a burst of calls for one tag
// yields at most one line per interval.
type Periodic struct {
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPeriodic creates a per-tag limiter writing warnings to logger.
func NewPeriodic(logger zerolog.Logger, interval time.Duration) *Periodic {
	if interval <= 0 {
		interval = DefaultPeriodicInterval
	}
	return &Periodic{
		interval: interval,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a line for tag may be emitted now, consuming the
// tag's token when it does.
func (p *Periodic) Allow(tag string) bool {
	return p.allowAt(tag, p.now())
}

func (p *Periodic) allowAt(tag string, at time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	lim, ok := p.limiters[tag]
	if !ok {
		lim = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[tag] = lim
	}
	return lim.AllowN(at, 1)
}

// Warn emits "tag: message" at warn level unless the tag was logged within
// the current interval. It returns true when a line was written.
func (p *Periodic) Warn(tag, message string) bool {
	if !p.Allow(tag) {
		return false
	}
	p.logger.Warn().
		Str(FieldTag, tag).
		Str(FieldEvent, "native.log_periodic").
		Msgf("%s: %s", tag, message)
	return true
}

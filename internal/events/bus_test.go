// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"testing"

	"github.com/ManuGH/vrlink/internal/metrics"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_EmitReachesSubscribers(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(4)
	t.Cleanup(sub.Close)

	b.Emit(SessionConnected, "s1")

	e := <-sub.C()
	assert.Equal(t, SessionConnected, e.Type)
	assert.Equal(t, "s1", e.SessionID)
	assert.False(t, e.At.IsZero())
}

func TestBus_FullSubscriberDropsWithoutBlocking(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(1)
	t.Cleanup(sub.Close)

	read := func() float64 {
		m := &dto.Metric{}
		require.NoError(t, metrics.EventDroppedTotal.WithLabelValues(string(ServerQuitting)).Write(m))
		return m.GetCounter().GetValue()
	}
	before := read()

	b.Emit(ServerQuitting, "")
	b.Emit(ServerQuitting, "")

	assert.Equal(t, before+1, read())
	assert.Len(t, sub.C(), 1)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(0)
	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)

	b.Emit(DriverReady, "")
}

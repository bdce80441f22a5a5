// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/vrlink/internal/connection"
	"github.com/ManuGH/vrlink/internal/lifecycle"
	"github.com/ManuGH/vrlink/internal/metrics"
	"github.com/ManuGH/vrlink/internal/packet"
	"github.com/ManuGH/vrlink/internal/registry"
	"github.com/ManuGH/vrlink/internal/testutil"
	"github.com/google/go-cmp/cmp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeShutdowner struct {
	mu       sync.Mutex
	triggers []lifecycle.Trigger
}

func (f *fakeShutdowner) Shutdown(trigger lifecycle.Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger)
	if len(f.triggers) > 1 {
		return lifecycle.ErrAlreadyStopped
	}
	return nil
}

type blockingChaperone struct {
	release chan struct{}
	calls   chan [2]float32
}

func (c *blockingChaperone) SetChaperone(width, height float32) {
	<-c.release
	c.calls <- [2]float32{width, height}
}

type fixture struct {
	adapter  *Adapter
	state    *State
	runtime  *lifecycle.Runtime
	shutdown *fakeShutdowner
	loops    atomic.Int32
	loopErr  chan error
	logs     *testutil.LogBuffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:    NewState(registry.DefaultCapacities()),
		runtime:  lifecycle.NewRuntime(zerolog.Nop(), time.Second),
		shutdown: &fakeShutdowner{},
		loopErr:  make(chan error, 4),
		logs:     &testutil.LogBuffer{},
	}
	t.Cleanup(f.runtime.Stop)

	a, err := NewAdapter(Deps{
		Logger:    zerolog.New(f.logs),
		State:     f.state,
		Runtime:   f.runtime,
		Lifecycle: f.shutdown,
		Loop: func(ctx context.Context) error {
			f.loops.Add(1)
			select {
			case err := <-f.loopErr:
				return err
			case <-ctx.Done():
				return connection.ErrInterrupted
			}
		},
	})
	require.NoError(t, err)
	f.adapter = a
	return f
}

func (f *fixture) install(t *testing.T) registry.Receivers {
	t.Helper()
	rx, err := f.state.Registry.Install("session-1")
	require.NoError(t, err)
	return rx
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewAdapter_Validation(t *testing.T) {
	_, err := NewAdapter(Deps{})
	assert.ErrorIs(t, err, errMissingState)

	_, err = NewAdapter(Deps{State: NewState(registry.DefaultCapacities())})
	assert.ErrorIs(t, err, errMissingRuntime)
}

func TestVideoSend_MirrorPacketAndStats(t *testing.T) {
	f := newFixture(t)
	rx := f.install(t)
	sub, err := rx.Mirror.Subscribe(4)
	require.NoError(t, err)

	header := packet.VideoFrameHeader{PacketCounter: 1, VideoFrameIndex: 9, FrameByteSize: 2}
	f.adapter.VideoSend(header, []byte{0xAA, 0xBB})

	select {
	case got := <-sub.C():
		assert.Equal(t, []byte{0xAA, 0xBB}, got)
	default:
		t.Fatal("mirror received nothing")
	}
	select {
	case got := <-rx.Video:
		assert.Equal(t, packet.VideoPacket{Header: header, Payload: []byte{0xAA, 0xBB}}, got)
	default:
		t.Fatal("video channel received nothing")
	}

	snap, ok := f.state.Stats.Snapshot()
	require.True(t, ok)
	assert.Equal(t, uint64(2), snap.VideoBytes)
	assert.Equal(t, uint64(1), snap.VideoPackets)
}

func TestVideoSend_OrderAndOwnedCopies(t *testing.T) {
	f := newFixture(t)
	rx := f.install(t)

	const n = 50
	want := make([]packet.VideoPacket, 0, n)
	buf := make([]byte, 3)
	for i := 0; i < n; i++ {
		buf[0], buf[1], buf[2] = byte(i), byte(i>>8), 0x7F
		header := packet.VideoFrameHeader{PacketCounter: uint32(i), SentTime: uint64(i) * 1000}
		f.adapter.VideoSend(header, buf)
		want = append(want, packet.VideoPacket{Header: header, Payload: []byte{byte(i), byte(i >> 8), 0x7F}})
		// The native side reuses its buffer as soon as the call returns.
		buf[0], buf[1], buf[2] = 0xFF, 0xFF, 0xFF
	}

	got := make([]packet.VideoPacket, 0, n)
	for len(got) < n {
		got = append(got, <-rx.Video)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("video packets mismatch (-want +got):\n%s", diff)
	}
}

func TestInitializeDecoder_MirrorsThenQueues(t *testing.T) {
	f := newFixture(t)
	rx := f.install(t)
	sub, err := rx.Mirror.Subscribe(4)
	require.NoError(t, err)

	config := []byte{0x00, 0x00, 0x01, 0x67}
	f.adapter.InitializeDecoder(config)
	config[3] = 0

	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x67}, <-sub.C())
	p := <-rx.Control
	assert.Equal(t, packet.ControlInitializeDecoder, p.Kind)
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x67}, p.Config)
}

func TestHapticsSend_Duration(t *testing.T) {
	f := newFixture(t)
	rx := f.install(t)

	f.adapter.HapticsSend(42, 0.5, 160, 0.8)

	h := <-rx.Haptics
	assert.Equal(t, packet.Haptics{Path: 42, Duration: 500 * time.Millisecond, Frequency: 160, Amplitude: 0.8}, h)
}

func TestNoSession_NeverBlocksOrProduces(t *testing.T) {
	f := newFixture(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10_000; i++ {
			f.adapter.VideoSend(packet.VideoFrameHeader{PacketCounter: uint32(i)}, []byte{1, 2, 3})
			f.adapter.HapticsSend(1, 0.1, 1, 1)
			f.adapter.InitializeDecoder([]byte{1})
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("adapters blocked without a session")
	}

	snap, ok := f.state.Stats.Snapshot()
	require.True(t, ok)
	assert.Zero(t, snap.VideoBytes)

	rx := f.install(t)
	assert.Empty(t, rx.Video)
	assert.Empty(t, rx.Control)
	assert.Empty(t, rx.Haptics)
}

func TestVideoSend_FullQueueDrops(t *testing.T) {
	f := newFixture(t)
	f.state = NewState(registry.Capacities{Control: 1, Video: 1, Haptics: 1})
	f.adapter.state = f.state
	rx := f.install(t)

	f.adapter.VideoSend(packet.VideoFrameHeader{PacketCounter: 1}, []byte{1})
	f.adapter.VideoSend(packet.VideoFrameHeader{PacketCounter: 2}, []byte{2})

	assert.Equal(t, uint32(1), (<-rx.Video).Header.PacketCounter)
	assert.Empty(t, rx.Video)
}

func TestDriverReadyIdle_StartsLoopOnce(t *testing.T) {
	f := newFixture(t)

	f.adapter.DriverReadyIdle(false)
	f.adapter.DriverReadyIdle(false)

	assert.True(t, f.state.Liveness.Load())
	require.Eventually(t, func() bool { return f.loops.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), f.loops.Load())
}

func TestDriverReadyIdle_RestartsAfterLoopExit(t *testing.T) {
	f := newFixture(t)

	f.adapter.DriverReadyIdle(false)
	require.Eventually(t, func() bool { return f.loops.Load() == 1 }, time.Second, time.Millisecond)

	f.loopErr <- connection.Fatal(errors.New("listen: address in use"))
	require.Eventually(t, func() bool { return !f.adapter.loopRunning.Load() }, time.Second, time.Millisecond)
	assert.Contains(t, f.logs.String(), "address in use")

	f.adapter.DriverReadyIdle(false)
	require.Eventually(t, func() bool { return f.loops.Load() == 2 }, time.Second, time.Millisecond)
}

func TestDriverReadyIdle_ChaperoneOffCallerGoroutine(t *testing.T) {
	f := newFixture(t)
	ch := &blockingChaperone{release: make(chan struct{}), calls: make(chan [2]float32, 1)}
	f.adapter.deps.Chaperone = ch

	returned := make(chan struct{})
	go func() {
		f.adapter.DriverReadyIdle(true)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("driver-ready waited on the chaperone call")
	}

	close(ch.release)
	assert.Equal(t, [2]float32{DefaultChaperoneWidth, DefaultChaperoneHeight}, <-ch.calls)
}

func TestDriverReadyIdle_InterruptedIsNotLogged(t *testing.T) {
	f := newFixture(t)
	f.adapter.DriverReadyIdle(false)
	require.Eventually(t, func() bool { return f.loops.Load() == 1 }, time.Second, time.Millisecond)

	f.runtime.Stop()
	assert.NotContains(t, f.logs.String(), "connection loop closed")
}

func TestShutdownRuntime_Idempotent(t *testing.T) {
	f := newFixture(t)

	f.adapter.ShutdownRuntime()
	f.adapter.ShutdownRuntime()

	assert.Equal(t, []lifecycle.Trigger{lifecycle.TriggerShutdown, lifecycle.TriggerShutdown}, f.shutdown.triggers)
}

func TestPathStringToHash_Stable(t *testing.T) {
	f := newFixture(t)

	left := f.adapter.PathStringToHash("/user/hand/left/output/haptic")
	assert.Equal(t, left, f.adapter.PathStringToHash("/user/hand/left/output/haptic"))
	assert.NotEqual(t, left, f.adapter.PathStringToHash("/user/hand/right/output/haptic"))
	assert.Equal(t, uint64(0xef46db3751d8e999), HashPath(""))
}

func TestReports_ReachStatistics(t *testing.T) {
	f := newFixture(t)

	f.adapter.ReportPresent(1_000)
	f.adapter.ReportComposed(3_000)
	f.adapter.ReportEncoded(6_000)
	f.adapter.ReportFECFailure(-5)
	f.adapter.ReportFECFailure(150)

	snap, ok := f.state.Stats.Snapshot()
	require.True(t, ok)
	assert.Equal(t, time.Duration(1_000), snap.LastPresent)
	assert.Equal(t, time.Duration(3_000), snap.LastComposed)
	assert.Equal(t, time.Duration(6_000), snap.LastEncoded)
	assert.Equal(t, uint64(2), snap.FECFailures)
	assert.Equal(t, uint32(100), snap.LastFECPercentage)
}

func TestLogPeriodically_OneLinePerInterval(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		f.adapter.LogPeriodically("encoder", "late frame")
	}
	assert.Equal(t, 1, strings.Count(f.logs.String(), "encoder: late frame"))
}

func TestPanicDoesNotCrossBoundary(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	logs := &bytes.Buffer{}
	a, err := NewAdapter(Deps{
		Logger:    zerolog.New(logs),
		State:     &State{},
		Runtime:   lifecycle.NewRuntime(zerolog.Nop(), time.Second),
		Lifecycle: &fakeShutdowner{},
		Loop:      func(context.Context) error { return nil },
	})
	require.NoError(t, err)

	before := counterValue(t, metrics.AdapterPanicsTotal.WithLabelValues(AdapterVideoSend))
	assert.NotPanics(t, func() {
		a.VideoSend(packet.VideoFrameHeader{}, []byte{1})
	})
	assert.Equal(t, before+1, counterValue(t, metrics.AdapterPanicsTotal.WithLabelValues(AdapterVideoSend)))
	assert.Contains(t, logs.String(), "adapter.panic_recovered")
}

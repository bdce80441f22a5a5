// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package diag

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/vrlink/internal/health"
	"github.com/ManuGH/vrlink/internal/lifecycle"
	"github.com/ManuGH/vrlink/internal/registry"
	"github.com/ManuGH/vrlink/internal/stats"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv        *Server
	reg        *registry.Registry
	slot       *stats.Slot
	alive      *atomic.Bool
	disconnect *lifecycle.Notifier
	ts         *httptest.Server
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		reg:        registry.New(registry.DefaultCapacities()),
		slot:       &stats.Slot{},
		alive:      &atomic.Bool{},
		disconnect: lifecycle.NewNotifier(),
	}
	f.alive.Store(true)

	deps := Deps{
		Logger:      zerolog.New(zerolog.NewTestWriter(t)),
		Addr:        "127.0.0.1:0",
		Version:     "v-test",
		Registry:    f.reg,
		Stats:       f.slot,
		Liveness:    f.alive,
		Disconnect:  f.disconnect,
		MirrorLimit: 100,
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	require.NoError(t, err)
	f.srv = srv
	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		f.reg.Teardown()
		f.ts.Close()
	})
	return f
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.ts.Client().Get(f.ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestNew_ValidatesDeps(t *testing.T) {
	_, err := New(Deps{})
	require.ErrorIs(t, err, ErrMissingRegistry)

	_, err = New(Deps{Registry: registry.New(registry.DefaultCapacities())})
	require.ErrorIs(t, err, ErrMissingLiveness)

	_, err = New(Deps{Registry: registry.New(registry.DefaultCapacities()), Liveness: &atomic.Bool{}})
	require.ErrorIs(t, err, ErrMissingNotifier)
}

func TestHealth_ReportsLivenessAndSession(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[health.Response](t, resp)
	assert.Equal(t, health.StatusDegraded, body.Status)
	assert.Equal(t, "v-test", body.Version)
	assert.Equal(t, health.StatusHealthy, body.Checks["driver"].Status)
	assert.Equal(t, health.StatusDegraded, body.Checks["session"].Status)

	_, err := f.reg.Install("s-1")
	require.NoError(t, err)
	body = decode[health.Response](t, f.get(t, "/healthz"))
	assert.Equal(t, health.StatusHealthy, body.Status)
	assert.True(t, body.Ready)
}

func TestReady_UnavailableWhenDriverStopped(t *testing.T) {
	var state atomic.Int32
	f := newFixture(t, func(d *Deps) {
		d.State = func() lifecycle.State { return lifecycle.State(state.Load()) }
	})

	assert.Equal(t, http.StatusOK, f.get(t, "/readyz").StatusCode)

	f.alive.Store(false)
	state.Store(int32(lifecycle.StateStopped))
	resp := f.get(t, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[health.Response](t, resp)
	assert.Equal(t, "stopped", body.Checks["lifecycle"].Message)

	// liveness probe keeps answering 200
	assert.Equal(t, http.StatusOK, f.get(t, "/healthz").StatusCode)
}

func TestReady_MissingNativeLibrary(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.NativeLibrary = "/nonexistent/libvrlink_core.so" })

	resp := f.get(t, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[health.Response](t, resp)
	assert.Equal(t, "file not found", body.Checks["native_library"].Error)
}

func TestStats_Snapshot(t *testing.T) {
	f := newFixture(t, nil)

	body := decode[statsResponse](t, f.get(t, "/stats"))
	assert.False(t, body.Active)

	f.slot.Arm(stats.NewSink())
	f.slot.With(func(s *stats.Sink) {
		s.ReportVideoPacket(1200)
		s.ReportFrameEncoded(3 * time.Millisecond)
		s.ReportFECFailure(7)
	})

	body = decode[statsResponse](t, f.get(t, "/stats"))
	assert.True(t, body.Active)
	assert.Equal(t, uint64(1), body.VideoPackets)
	assert.Equal(t, uint64(1200), body.VideoBytes)
	assert.Equal(t, (3 * time.Millisecond).Nanoseconds(), body.LastEncodedNs)
	assert.Equal(t, uint32(7), body.LastFECPercentage)
}

func TestDisconnect_FiresNotifier(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.ts.Client().Post(f.ts.URL+"/session/disconnect", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, uint64(0), f.disconnect.Generation())

	_, err = f.reg.Install("s-7")
	require.NoError(t, err)
	wake, _ := f.disconnect.Wait()

	resp, err = f.ts.Client().Post(f.ts.URL+"/session/disconnect", "application/json", nil)
	require.NoError(t, err)
	body := decode[disconnectResponse](t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "s-7", body.SessionID)

	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("disconnect waiter not woken")
	}
}

func TestDisconnect_RequiresPost(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, f.get(t, "/session/disconnect").StatusCode)
}

type fakeDriver struct {
	calls chan string
}

func (d *fakeDriver) fire(name string) <-chan struct{} {
	d.calls <- name
	done := make(chan struct{})
	close(done)
	return done
}

func (d *fakeDriver) NotifyShutdownDriver() <-chan struct{}    { return d.fire("shutdown") }
func (d *fakeDriver) NotifyRestartDriver() <-chan struct{}     { return d.fire("restart") }
func (d *fakeDriver) NotifyApplicationUpdate() <-chan struct{} { return d.fire("update") }

func TestDriverRoutes(t *testing.T) {
	drv := &fakeDriver{calls: make(chan string, 3)}
	f := newFixture(t, func(d *Deps) { d.Driver = drv })

	for _, action := range []string{"restart", "update", "shutdown"} {
		resp, err := f.ts.Client().Post(f.ts.URL+"/driver/"+action, "application/json", nil)
		require.NoError(t, err)
		body := decode[actionResponse](t, resp)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, action, body.Action)
		assert.Equal(t, action, <-drv.calls)
	}
}

func TestDriverRoutes_AbsentWithoutControl(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.ts.Client().Post(f.ts.URL+"/driver/restart", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetrics_ExposesDiagCounters(t *testing.T) {
	f := newFixture(t, nil)
	f.get(t, "/stats")

	// observed after the response is flushed
	require.Eventually(t, func() bool {
		resp := f.get(t, "/metrics")
		raw, err := io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK &&
			strings.Contains(string(raw), `vrlink_diag_request_duration_seconds_count{method="GET",route="/stats",status="2xx"}`)
	}, time.Second, 10*time.Millisecond)
}

func TestRequestID_EchoedOrMinted(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/stats")
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/stats", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "req-42")
	resp, err = f.ts.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get(HeaderRequestID))
}

func TestRecoverer_AnswersJSON(t *testing.T) {
	h := requestID(recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-1")

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, errorBody{Error: "internal_error", RequestID: "req-1"}, body)
}

func TestServe_CloseIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	served := make(chan error, 1)
	go func() { served <- f.srv.Serve(context.Background()) }()
	require.Eventually(t, func() bool { return f.srv.Addr() != "" }, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + f.srv.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.srv.Close())
	require.NoError(t, f.srv.Close())

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	served := make(chan error, 1)
	go func() { served <- f.srv.Serve(ctx) }()
	require.Eventually(t, func() bool { return f.srv.Addr() != "" }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_AfterCloseReturnsAtOnce(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.srv.Close())
	assert.NoError(t, f.srv.Serve(context.Background()))
	assert.Empty(t, f.srv.Addr())
}

func TestServe_ListenFailure(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Addr = "256.0.0.1:bad" })
	err := f.srv.Serve(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "listen diagnostics"))
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/ManuGH/vrlink/internal/connection"
	"github.com/ManuGH/vrlink/internal/packet"
	"github.com/ManuGH/vrlink/internal/registry"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newConnector(t *testing.T) *Connector {
	t.Helper()
	c := NewConnector(Config{
		Logger:            zerolog.New(zerolog.NewTestWriter(t)),
		ListenAddr:        "127.0.0.1:0",
		NegotiateTimeout:  time.Second,
		KeepAliveInterval: time.Hour,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type connectResult struct {
	link connection.Link
	err  error
}

func connectAsync(ctx context.Context, c *Connector) <-chan connectResult {
	out := make(chan connectResult, 1)
	go func() {
		link, err := c.Connect(ctx)
		out <- connectResult{link: link, err: err}
	}()
	return out
}

func dial(t *testing.T, c *Connector) *websocket.Conn {
	t.Helper()
	require.Eventually(t, func() bool { return c.Addr() != "" && c.waiting.Load() > 0 }, time.Second, 5*time.Millisecond)
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+c.Addr()+DefaultPath, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func await(t *testing.T, ch <-chan connectResult) connectResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return")
		return connectResult{}
	}
}

func TestVideoCodec_HeaderLayout(t *testing.T) {
	p := packet.VideoPacket{
		Header: packet.VideoFrameHeader{
			PacketCounter:      7,
			TrackingFrameIndex: 1 << 40,
			VideoFrameIndex:    42,
			SentTime:           123456789,
			FrameByteSize:      3,
			FECIndex:           2,
			FECPercentage:      5,
		},
		Payload: []byte{1, 2, 3},
	}
	raw := EncodeVideo(p)
	require.Len(t, raw, VideoHeaderSize+3)
	assert.Equal(t, []byte{7, 0, 0, 0}, raw[:4])

	got, err := DecodeVideo(raw)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("decoded packet mismatch (-want +got):\n%s", diff)
	}

	_, err = DecodeVideo(raw[:VideoHeaderSize-1])
	assert.ErrorIs(t, err, ErrShortVideoMessage)
}

func TestConnect_NegotiatesHello(t *testing.T) {
	c := newConnector(t)
	res := connectAsync(context.Background(), c)

	conn := dial(t, c)
	require.NoError(t, conn.WriteJSON(Hello{Type: TypeHello, Version: c.cfg.ProtocolVersion, Hostname: "quest"}))

	r := await(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, "quest", r.link.Client())
	require.NoError(t, r.link.Close())
	require.NoError(t, r.link.Close())
}

func TestConnect_VersionMismatchIsRetryable(t *testing.T) {
	c := newConnector(t)
	res := connectAsync(context.Background(), c)

	conn := dial(t, c)
	require.NoError(t, conn.WriteJSON(Hello{Type: TypeHello, Version: "vrlink/0", Hostname: "old"}))

	r := await(t, res)
	require.ErrorIs(t, r.err, ErrVersionMismatch)
	assert.False(t, errors.Is(r.err, connection.ErrFatal))

	var reject Reject
	require.NoError(t, conn.ReadJSON(&reject))
	assert.Equal(t, Reject{Type: TypeReject, Reason: "unsupported version"}, reject)
}

func TestConnect_ListenFailureIsFatal(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	c := NewConnector(Config{Logger: zerolog.New(zerolog.NewTestWriter(t)), ListenAddr: busy.Addr().String()})
	defer c.Close()

	_, err = c.Connect(context.Background())
	require.ErrorIs(t, err, connection.ErrFatal)
}

func TestConnect_AfterCloseIsFatal(t *testing.T) {
	c := newConnector(t)
	require.NoError(t, c.Close())

	_, err := c.Connect(context.Background())
	require.ErrorIs(t, err, connection.ErrFatal)
	assert.ErrorIs(t, err, ErrConnectorClosed)
}

func TestConnect_CanceledWhileWaiting(t *testing.T) {
	c := newConnector(t)
	ctx, cancel := context.WithCancel(context.Background())
	res := connectAsync(ctx, c)

	require.Eventually(t, func() bool { return c.waiting.Load() > 0 }, time.Second, 5*time.Millisecond)
	cancel()

	r := await(t, res)
	assert.ErrorIs(t, r.err, context.Canceled)
}

func TestConnect_BusyWhenNobodyWaits(t *testing.T) {
	c := newConnector(t)
	ctx, cancel := context.WithCancel(context.Background())
	res := connectAsync(ctx, c)
	require.Eventually(t, func() bool { return c.Addr() != "" }, time.Second, 5*time.Millisecond)
	cancel()
	await(t, res)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+c.Addr()+DefaultPath, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

type session struct {
	control chan packet.ControlPacket
	video   chan packet.VideoPacket
	haptics chan packet.Haptics
}

func newSession() (session, registry.Receivers) {
	s := session{
		control: make(chan packet.ControlPacket, 4),
		video:   make(chan packet.VideoPacket, 4),
		haptics: make(chan packet.Haptics, 4),
	}
	return s, registry.Receivers{SessionID: "s-1", Control: s.control, Video: s.video, Haptics: s.haptics}
}

func negotiated(t *testing.T, c *Connector) (connection.Link, *websocket.Conn) {
	t.Helper()
	res := connectAsync(context.Background(), c)
	conn := dial(t, c)
	require.NoError(t, conn.WriteJSON(Hello{Type: TypeHello, Version: c.cfg.ProtocolVersion, Hostname: "quest"}))
	r := await(t, res)
	require.NoError(t, r.err)
	t.Cleanup(func() { _ = r.link.Close() })
	return r.link, conn
}

func TestServe_ForwardsStreams(t *testing.T) {
	c := newConnector(t)
	link, conn := negotiated(t, c)
	s, rx := newSession()

	served := make(chan error, 1)
	go func() { served <- link.Serve(context.Background(), rx) }()

	var welcome Welcome
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, Welcome{Type: TypeWelcome, SessionID: "s-1"}, welcome)

	s.control <- packet.InitializeDecoder([]byte{0, 0, 0, 1})
	var ctrl ControlMessage
	require.NoError(t, conn.ReadJSON(&ctrl))
	assert.Equal(t, ControlMessage{Type: TypeControl, Kind: "initialize_decoder", Config: []byte{0, 0, 0, 1}}, ctrl)

	want := packet.VideoPacket{Header: packet.VideoFrameHeader{PacketCounter: 1, VideoFrameIndex: 9}, Payload: []byte{0xde, 0xad}}
	s.video <- want
	kind, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	got, err := DecodeVideo(raw)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("video mismatch (-want +got):\n%s", diff)
	}

	s.haptics <- packet.Haptics{Path: 11, Duration: 500 * time.Millisecond, Frequency: 160, Amplitude: 0.5}
	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	var hm HapticsMessage
	require.NoError(t, json.Unmarshal(raw, &hm))
	assert.Equal(t, HapticsMessage{Type: TypeHaptics, Path: 11, DurationMs: 500, Frequency: 160, Amplitude: 0.5}, hm)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after client close")
	}
}

func TestServe_StopsOnCancelAndTeardown(t *testing.T) {
	c := newConnector(t)

	link, conn := negotiated(t, c)
	_, rx := newSession()
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- link.Serve(ctx, rx) }()
	var welcome Welcome
	require.NoError(t, conn.ReadJSON(&welcome))

	cancel()
	assert.ErrorIs(t, <-served, context.Canceled)
	require.NoError(t, link.Close())

	link, conn = negotiated(t, c)
	s, rx := newSession()
	go func() { served <- link.Serve(context.Background(), rx) }()
	require.NoError(t, conn.ReadJSON(&welcome))

	close(s.video)
	assert.NoError(t, <-served)
}

func TestServe_SendsKeepAlive(t *testing.T) {
	c := newConnector(t)
	c.cfg.KeepAliveInterval = 20 * time.Millisecond
	link, conn := negotiated(t, c)
	_, rx := newSession()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- link.Serve(ctx, rx) }()

	var welcome Welcome
	require.NoError(t, conn.ReadJSON(&welcome))
	var ctrl ControlMessage
	require.NoError(t, conn.ReadJSON(&ctrl))
	assert.Equal(t, "keep_alive", ctrl.Kind)

	cancel()
	<-served
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRuntime_StopCancelsAndWaits(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rt := NewRuntime(zerolog.Nop(), time.Second)
	var finished atomic.Bool
	require.NoError(t, rt.Go("blocker", func(ctx context.Context) error {
		<-ctx.Done()
		finished.Store(true)
		return ctx.Err()
	}))

	rt.Stop()
	assert.True(t, finished.Load(), "Stop must wait for tasks")
	assert.True(t, rt.Stopped())
	assert.Error(t, rt.Context().Err())
}

func TestRuntime_GoAfterStopIsRejected(t *testing.T) {
	rt := NewRuntime(zerolog.Nop(), time.Second)
	rt.Stop()
	rt.Stop()

	err := rt.Go("late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrRuntimeStopped)
}

func TestRuntime_TaskErrorDoesNotStopOthers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rt := NewRuntime(zerolog.Nop(), time.Second)
	require.NoError(t, rt.Go("failing", func(context.Context) error {
		return errors.New("boom")
	}))

	alive := make(chan struct{})
	require.NoError(t, rt.Go("survivor", func(ctx context.Context) error {
		close(alive)
		<-ctx.Done()
		return nil
	}))
	<-alive
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, rt.Context().Err())
	rt.Stop()
}

func TestRuntime_StopTimeoutReturns(t *testing.T) {
	rt := NewRuntime(zerolog.Nop(), 30*time.Millisecond)
	release := make(chan struct{})
	require.NoError(t, rt.Go("stubborn", func(context.Context) error {
		<-release
		return nil
	}))

	start := time.Now()
	rt.Stop()
	assert.Less(t, time.Since(start), time.Second)
	close(release)
}

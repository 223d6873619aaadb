package pull

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const interval = 10 * time.Second

func newTestLoop(t *testing.T, pass *scriptedPass, status StatusRecorder) *Loop {
	t.Helper()
	s, _ := openStore(t)
	return NewLoop(LoopConfig{NetworkName: "Webex Network", Interval: interval}, s, pass, status, pass.clock)
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    time.Duration
	}{
		{"instant", 0, interval},
		{"partial", 3 * time.Second, 7 * time.Second},
		{"exact", interval, 0},
		{"overrun", 25 * time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDelay(interval, tt.elapsed))
		})
	}
}

func TestInitMissingContext(t *testing.T) {
	clock := newManualClock()
	pass := &scriptedPass{clock: clock}
	s, _ := openStore(t)
	loop := NewLoop(LoopConfig{NetworkName: "Other Network", Interval: interval}, s, pass, nil, clock)

	err := loop.Init(context.Background())
	require.ErrorIs(t, err, ErrContextNotFound)
	assert.Equal(t, StateStopped, loop.State())
	assert.Zero(t, pass.calls)
}

func TestInitRunsFirstPass(t *testing.T) {
	clock := newManualClock()
	pass := &scriptedPass{clock: clock, duration: 2 * time.Second}
	status := &syncLog{}
	loop := newTestLoop(t, pass, status)

	require.NoError(t, loop.Init(context.Background()))
	assert.Equal(t, "Webex Network", loop.Network().Name)
	assert.Equal(t, 1, pass.calls)
	assert.Equal(t, 1, status.count())
	assert.Equal(t, clock.Now().UnixMilli(), loop.LastSync().UnixMilli())
	assert.Equal(t, StateInitializing, loop.State())
}

func TestInitToleratesFailedPass(t *testing.T) {
	clock := newManualClock()
	pass := &scriptedPass{clock: clock, errs: []error{errors.New("remote down")}}
	status := &syncLog{}
	loop := newTestLoop(t, pass, status)

	require.NoError(t, loop.Init(context.Background()))
	assert.Equal(t, 1, pass.calls)
	assert.Zero(t, status.count())
	assert.True(t, loop.LastSync().IsZero())
}

func TestRunCompensatesForCycleDuration(t *testing.T) {
	clock := newManualClock()
	pass := &scriptedPass{clock: clock, duration: 3 * time.Second}
	status := &syncLog{}
	loop := newTestLoop(t, pass, status)
	require.NoError(t, loop.Init(context.Background()))
	pass.calls = 0
	pass.onCall = func(call int) {
		if call == 2 {
			loop.Stop()
		}
	}

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 2, pass.calls)
	assert.Equal(t, []time.Duration{interval, 7 * time.Second, 7 * time.Second}, clock.Sleeps())
	assert.Equal(t, StateStopped, loop.State())
	// Init plus both loop cycles
	assert.Equal(t, 3, status.count())
}

func TestRunAppliesPenaltyAfterFailure(t *testing.T) {
	clock := newManualClock()
	pass := &scriptedPass{clock: clock, duration: 2 * time.Second}
	status := &syncLog{}
	loop := newTestLoop(t, pass, status)
	pass.errs = []error{errors.New("remote down")}
	pass.onCall = func(call int) {
		if call == 2 {
			loop.Stop()
		}
	}

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, []time.Duration{
		interval,
		DefaultPenalty,
		8 * time.Second,
		8 * time.Second,
	}, clock.Sleeps())
	assert.Equal(t, 1, status.count())
}

func TestRunOverlongCycleStartsNextAtOnce(t *testing.T) {
	clock := newManualClock()
	pass := &scriptedPass{clock: clock, duration: 25 * time.Second}
	loop := newTestLoop(t, pass, nil)
	pass.onCall = func(call int) {
		if call == 1 {
			loop.Stop()
		}
	}

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, []time.Duration{interval, 0}, clock.Sleeps())
}

func TestStopLetsCurrentCycleFinish(t *testing.T) {
	clock := newManualClock()
	pass := &scriptedPass{clock: clock, duration: time.Second}
	status := &syncLog{}
	loop := newTestLoop(t, pass, status)
	pass.onCall = func(int) { loop.Stop() }

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 1, pass.calls)
	assert.Equal(t, 1, status.count(), "the in-flight cycle still records its sync")
	assert.False(t, loop.LastSync().IsZero())
}

func TestRunReturnsOnCancel(t *testing.T) {
	clock := newManualClock()
	pass := &scriptedPass{clock: clock, duration: time.Second}
	loop := newTestLoop(t, pass, nil)
	ctx, cancel := context.WithCancel(context.Background())
	pass.onCall = func(int) { cancel() }

	err := loop.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, pass.calls)
	assert.Equal(t, StateStopped, loop.State())
}

func TestRealClockSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RealClock{}.Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, RealClock{}.Sleep(context.Background(), time.Millisecond))
	require.NoError(t, RealClock{}.Sleep(context.Background(), 0))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "state(9)", State(9).String())
}

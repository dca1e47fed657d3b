package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

func newTestLoop(t *testing.T, src ports.EventSource, rs *RunState, pol ports.Policy) (*Loop, *recordingSink, *recordingObs) {
	t.Helper()
	obs := newRecordingObs()
	sink := &recordingSink{}
	if pol.WaitTimeout == 0 {
		pol.WaitTimeout = 10 * time.Millisecond
	}
	l, err := NewLoop(src, NewProcessor(sink, obs), rs, pol, obs)
	require.NoError(t, err)
	return l, sink, obs
}

func TestLoopStopsWhenTargetReached(t *testing.T) {
	src := &scriptedSource{steps: []step{
		timedOut(),
		ready(validRecords(2)),
		ready(append(validRecords(1), invalidRecord())),
	}}
	l, sink, obs := newTestLoop(t, src, NewRunState(), ports.Policy{TargetSamples: 3})

	stats, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(3), stats.Samples)
	assert.Equal(t, uint64(2), stats.Cycles)
	assert.Equal(t, uint64(1), stats.Timeouts)
	assert.Equal(t, StopTargetReached, stats.Reason)
	assert.Equal(t, 3, src.waitCalls)
	assert.Equal(t, int32(1), src.closes.Load())
	assert.Equal(t, StateStopped, l.State())
	assert.Len(t, sink.batches, 2)
	assert.Equal(t, 1, obs.count("wait_timed_out"))
	assert.Equal(t, 1, obs.count("instance_state_notification"))
}

func TestLoopOvershootIsBoundedByLastBatch(t *testing.T) {
	last := validRecords(4)
	src := &scriptedSource{steps: []step{
		ready(validRecords(2)),
		ready(last),
		ready(validRecords(5)),
	}}
	l, _, _ := newTestLoop(t, src, NewRunState(), ports.Policy{TargetSamples: 3})

	stats, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(6), stats.Samples)
	assert.Less(t, stats.Samples-3, uint64(len(last)))
	assert.Equal(t, 2, src.drainCalls)
}

func TestLoopUnboundedRunsUntilShutdown(t *testing.T) {
	const timeouts = 5
	rs := NewRunState()
	steps := make([]step, 0, timeouts+1)
	for i := 0; i < timeouts; i++ {
		steps = append(steps, timedOut())
	}
	steps = append(steps, ready(validRecords(3)))
	src := &scriptedSource{steps: steps, onExhausted: func() { rs.Stop() }}
	l, _, _ := newTestLoop(t, src, rs, ports.Policy{})

	stats, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopShutdown, stats.Reason)
	assert.Equal(t, uint64(3), stats.Samples)
	// The shutdown arrives during one wait; no further wait happens after it.
	assert.Equal(t, len(steps)+1, src.waitCalls)
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestLoopWaitFailureStopsAndReleasesOnce(t *testing.T) {
	src := &scriptedSource{steps: []step{
		ready(validRecords(1)),
		failed(errBoom),
		ready(validRecords(10)),
	}}
	l, _, _ := newTestLoop(t, src, NewRunState(), ports.Policy{})

	stats, err := l.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWaitFailed)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StopWaitFailure, stats.Reason)
	assert.Equal(t, uint64(1), stats.Samples)
	assert.Equal(t, int32(1), src.closes.Load())

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestLoopEmptyAndInvalidBatchesCompleteCycles(t *testing.T) {
	rs := NewRunState()
	src := &scriptedSource{
		steps: []step{
			ready(nil),
			ready(domain.Batch{invalidRecord(), invalidRecord()}),
		},
		onExhausted: func() { rs.Stop() },
	}
	l, sink, obs := newTestLoop(t, src, rs, ports.Policy{TargetSamples: 1})

	stats, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(0), stats.Samples)
	assert.Equal(t, uint64(2), stats.Cycles)
	assert.Equal(t, StopShutdown, stats.Reason)
	assert.Empty(t, sink.batches)
	assert.Equal(t, 2, obs.count("instance_state_notification"))
}

func TestLoopDoesNotWaitWhenAlreadyStopped(t *testing.T) {
	rs := NewRunState()
	rs.Stop()
	src := &scriptedSource{steps: []step{ready(validRecords(1))}}
	l, _, _ := newTestLoop(t, src, rs, ports.Policy{})

	stats, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopShutdown, stats.Reason)
	assert.Zero(t, src.waitCalls)
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestLoopTimeoutCeiling(t *testing.T) {
	src := &scriptedSource{}
	l, _, _ := newTestLoop(t, src, NewRunState(), ports.Policy{MaxConsecutiveTimeouts: 3})

	stats, err := l.Run(context.Background())
	require.ErrorIs(t, err, ErrTimeoutCeiling)
	assert.Equal(t, StopTimeoutCeiling, stats.Reason)
	assert.Equal(t, uint64(3), stats.Timeouts)
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestLoopTimeoutCeilingResetsOnData(t *testing.T) {
	rs := NewRunState()
	src := &scriptedSource{
		steps: []step{
			timedOut(), timedOut(),
			ready(validRecords(1)),
			timedOut(), timedOut(),
		},
		onExhausted: func() { rs.Stop() },
	}
	l, _, _ := newTestLoop(t, src, rs, ports.Policy{MaxConsecutiveTimeouts: 4})

	stats, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopShutdown, stats.Reason)
	assert.Equal(t, uint64(5), stats.Timeouts)
}

func TestLoopShutdownInterruptsWait(t *testing.T) {
	rs := NewRunState()
	src := newBlockingSource()
	l, _, _ := newTestLoop(t, src, rs, ports.Policy{WaitTimeout: time.Hour})

	type result struct {
		stats Stats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := l.Run(context.Background())
		done <- result{stats, err}
	}()

	<-src.entered
	require.True(t, rs.Stop())

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, StopShutdown, res.stats.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after shutdown")
	}
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestLoopContextCancelIsShutdown(t *testing.T) {
	src := newBlockingSource()
	l, _, _ := newTestLoop(t, src, NewRunState(), ports.Policy{WaitTimeout: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.Run(ctx)
		done <- err
	}()

	<-src.entered
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after context cancel")
	}
}

func TestLoopSampleCounterIsMonotonic(t *testing.T) {
	rs := NewRunState()
	src := &scriptedSource{
		steps: []step{
			ready(validRecords(2)),
			ready(nil),
			timedOut(),
			ready(domain.Batch{invalidRecord()}),
			ready(validRecords(3)),
		},
		onExhausted: func() { rs.Stop() },
	}
	l, _, obs := newTestLoop(t, src, rs, ports.Policy{})

	stats, err := l.Run(context.Background())
	require.NoError(t, err)

	var prev uint64
	cycles := obs.messages("drain_cycle_complete")
	require.Len(t, cycles, 4)
	for _, e := range cycles {
		cur := e.fields["samples"].(uint64)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, stats.Samples, prev)
}

func TestLoopCloseErrorIsReported(t *testing.T) {
	closeErr := errors.New("release failed")
	src := &scriptedSource{steps: []step{ready(validRecords(1))}, closeErr: closeErr}
	l, _, _ := newTestLoop(t, src, NewRunState(), ports.Policy{TargetSamples: 1})

	stats, err := l.Run(context.Background())
	assert.Equal(t, StopTargetReached, stats.Reason)
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestLoopRunTwice(t *testing.T) {
	src := &scriptedSource{steps: []step{ready(validRecords(1))}}
	l, _, _ := newTestLoop(t, src, NewRunState(), ports.Policy{TargetSamples: 1})

	_, err := l.Run(context.Background())
	require.NoError(t, err)
	_, err = l.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestNewLoopValidation(t *testing.T) {
	obs := newRecordingObs()
	proc := NewProcessor(nil, obs)
	src := &scriptedSource{}

	_, err := NewLoop(nil, proc, NewRunState(), ports.Policy{}, obs)
	assert.Error(t, err)
	_, err = NewLoop(src, nil, NewRunState(), ports.Policy{}, obs)
	assert.Error(t, err)
	_, err = NewLoop(src, proc, nil, ports.Policy{}, obs)
	assert.Error(t, err)

	l, err := NewLoop(src, proc, NewRunState(), ports.Policy{}, obs)
	require.NoError(t, err)
	assert.Equal(t, DefaultWaitTimeout, l.pol.WaitTimeout)
	assert.Equal(t, StateIdle, l.State())
}

package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/tempflow/internal/ports"
)

// DefaultWaitTimeout is used when the policy leaves WaitTimeout unset.
const DefaultWaitTimeout = 4 * time.Second

var (
	// ErrWaitFailed wraps a terminal error returned by EventSource.Wait.
	ErrWaitFailed = errors.New("poll: wait failed")
	// ErrTimeoutCeiling is returned when Policy.MaxConsecutiveTimeouts is reached.
	ErrTimeoutCeiling = errors.New("poll: too many consecutive wait timeouts")
	// ErrAlreadyRun is returned by a second call to Loop.Run.
	ErrAlreadyRun = errors.New("poll: loop already run")
)

type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type StopReason int

const (
	StopNone StopReason = iota
	StopShutdown
	StopTargetReached
	StopWaitFailure
	StopTimeoutCeiling
)

func (r StopReason) String() string {
	switch r {
	case StopShutdown:
		return "shutdown"
	case StopTargetReached:
		return "target_reached"
	case StopWaitFailure:
		return "wait_failure"
	case StopTimeoutCeiling:
		return "timeout_ceiling"
	default:
		return "none"
	}
}

// Stats summarizes a finished run.
type Stats struct {
	Samples  uint64
	Cycles   uint64
	Timeouts uint64
	Reason   StopReason
}

// Loop waits on an event source, drains it and counts valid samples until the
// run state is stopped, the target is reached or waiting fails.
type Loop struct {
	src  ports.EventSource
	proc *Processor
	run  *RunState
	pol  ports.Policy
	obs  ports.Observability

	state   atomic.Int32
	started atomic.Bool
	release func() error
}

func NewLoop(src ports.EventSource, proc *Processor, run *RunState, pol ports.Policy, obs ports.Observability) (*Loop, error) {
	if src == nil {
		return nil, fmt.Errorf("event source is required")
	}
	if proc == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if run == nil {
		return nil, fmt.Errorf("run state is required")
	}
	if obs == nil {
		return nil, fmt.Errorf("observability is required")
	}
	if pol.WaitTimeout <= 0 {
		pol.WaitTimeout = DefaultWaitTimeout
	}
	return &Loop{
		src:     src,
		proc:    proc,
		run:     run,
		pol:     pol,
		obs:     obs,
		release: sync.OnceValue(src.Close),
	}, nil
}

// State returns the current controller state. Safe to call from any goroutine.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Close releases the event source. Run calls it on every exit path; further
// calls return the first result without touching the source again.
func (l *Loop) Close() error {
	return l.release()
}

// Run blocks until the loop stops. The error is nil when the loop stopped on
// shutdown or on reaching the target.
func (l *Loop) Run(ctx context.Context) (stats Stats, err error) {
	if !l.started.CompareAndSwap(false, true) {
		return Stats{}, ErrAlreadyRun
	}

	defer func() {
		l.setState(StateStopped)
		if cerr := l.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close event source: %w", cerr))
		}
		fields := []ports.Field{
			{Key: "reason", Value: stats.Reason.String()},
			{Key: "samples", Value: stats.Samples},
			{Key: "cycles", Value: stats.Cycles},
			{Key: "timeouts", Value: stats.Timeouts},
		}
		if err != nil {
			l.obs.LogError("poll_loop_stopped", err, fields...)
			return
		}
		l.obs.LogInfo("poll_loop_stopped", fields...)
	}()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.run.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	var consecutive int
	for {
		l.setState(StateWaiting)
		if reason, stop := l.shouldStop(ctx, stats.Samples); stop {
			stats.Reason = reason
			return stats, nil
		}

		werr := l.src.Wait(waitCtx, l.pol.WaitTimeout)
		switch {
		case werr == nil:
			consecutive = 0
		case errors.Is(werr, ports.ErrWaitTimeout):
			stats.Timeouts++
			consecutive++
			l.obs.LogInfo("wait_timed_out", ports.Field{Key: "timeout", Value: l.pol.WaitTimeout.String()})
			l.obs.IncCounter(ports.MetricWaitTimeouts, 1)
			if l.pol.MaxConsecutiveTimeouts > 0 && consecutive >= l.pol.MaxConsecutiveTimeouts {
				stats.Reason = StopTimeoutCeiling
				return stats, fmt.Errorf("%w: %d in a row", ErrTimeoutCeiling, consecutive)
			}
			continue
		case waitCtx.Err() != nil:
			// Interrupted by shutdown; the check at the top stops the loop.
			continue
		default:
			stats.Reason = StopWaitFailure
			return stats, fmt.Errorf("%w: %w", ErrWaitFailed, werr)
		}

		l.setState(StateDraining)
		batch := l.src.Drain()
		n := l.proc.Process(batch)
		stats.Samples += uint64(n)
		stats.Cycles++
		l.obs.IncCounter(ports.MetricDrainCycles, 1)
		l.obs.ObserveLatency(ports.MetricBatchSize, float64(len(batch)))
		l.obs.LogDebug("drain_cycle_complete",
			ports.Field{Key: "batch", Value: len(batch)},
			ports.Field{Key: "valid", Value: n},
			ports.Field{Key: "samples", Value: stats.Samples})
	}
}

func (l *Loop) shouldStop(ctx context.Context, samples uint64) (StopReason, bool) {
	if !l.run.Running() || ctx.Err() != nil {
		return StopShutdown, true
	}
	if l.pol.TargetSamples > 0 && samples >= l.pol.TargetSamples {
		return StopTargetReached, true
	}
	return StopNone, false
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	l.obs.SetGauge(ports.MetricLoopState, float64(s))
}

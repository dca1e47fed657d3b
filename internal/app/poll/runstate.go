package poll

import (
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/ghalamif/tempflow/internal/ports"
)

// RunState is a one-way shutdown latch shared between a signal handler and
// the goroutine running a loop. It starts out running and can only be
// stopped.
type RunState struct {
	running atomic.Bool
	done    chan struct{}
}

func NewRunState() *RunState {
	rs := &RunState{done: make(chan struct{})}
	rs.running.Store(true)
	return rs
}

// Running reports whether shutdown has not been requested yet.
func (r *RunState) Running() bool {
	return r.running.Load()
}

// Stop latches the state to stopped. It returns true only for the call that
// performed the transition.
func (r *RunState) Stop() bool {
	if !r.running.CompareAndSwap(true, false) {
		return false
	}
	close(r.done)
	return true
}

// Done is closed once Stop has been called.
func (r *RunState) Done() <-chan struct{} {
	return r.done
}

// StopOnSignal stops rs when any of sigs is delivered. The returned function
// detaches the handler.
func StopOnSignal(rs *RunState, obs ports.Observability, sigs ...os.Signal) func() {
	ch := make(chan os.Signal, 1)
	quit := make(chan struct{})
	signal.Notify(ch, sigs...)

	go func() {
		for {
			select {
			case <-quit:
				return
			case sig := <-ch:
				if rs.Stop() {
					obs.LogInfo("preparing to shut down", ports.Field{Key: "signal", Value: sig.String()})
				}
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(quit)
	}
}

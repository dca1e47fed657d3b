package tempflow

import (
	"context"
	"sync/atomic"
	"time"
)

type stubObservability struct{}

func (s *stubObservability) LogDebug(string, ...Field)           {}
func (s *stubObservability) LogInfo(string, ...Field)            {}
func (s *stubObservability) LogError(string, error, ...Field)    {}
func (s *stubObservability) LogCritical(string, error, ...Field) {}
func (s *stubObservability) IncCounter(string, float64)          {}
func (s *stubObservability) ObserveLatency(string, float64)      {}
func (s *stubObservability) SetGauge(string, float64)            {}

// stubSource hands out one batch and then times out.
type stubSource struct {
	batch  Batch
	served atomic.Bool
	closes atomic.Int32
}

func (s *stubSource) Wait(ctx context.Context, timeout time.Duration) error {
	if !s.served.Load() {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return ErrWaitTimeout
	}
}

func (s *stubSource) Drain() Batch {
	if s.served.Swap(true) {
		return nil
	}
	return s.batch
}

func (s *stubSource) Close() error {
	s.closes.Add(1)
	return nil
}

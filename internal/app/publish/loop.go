package publish

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ghalamif/tempflow/internal/app/poll"
	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

// SampleFactory builds the payload for the count-th write.
type SampleFactory func(count uint64) ([]byte, error)

// TemperatureSamples produces readings for sensorID between 30 and 32 degrees.
func TemperatureSamples(sensorID string, rnd *rand.Rand) SampleFactory {
	var mu sync.Mutex
	return func(uint64) ([]byte, error) {
		mu.Lock()
		degrees := int32(30 + rnd.Intn(3))
		mu.Unlock()
		return domain.EncodeTemperature(domain.Temperature{
			SensorID:  sensorID,
			Degrees:   degrees,
			Timestamp: time.Now().UTC(),
		})
	}
}

// HelloSamples produces hello world messages.
func HelloSamples() SampleFactory {
	return func(count uint64) ([]byte, error) {
		return domain.EncodeHello(domain.HelloMessage{Msg: fmt.Sprintf("Hello World %d", count)})
	}
}

type Stats struct {
	Written uint64
	Failed  uint64
}

// Loop writes one sample per period until the target count is written or the
// run state is stopped.
type Loop struct {
	w    ports.Writer
	next SampleFactory
	run  *poll.RunState
	pol  ports.Policy
	obs  ports.Observability
}

func NewLoop(w ports.Writer, next SampleFactory, run *poll.RunState, pol ports.Policy, obs ports.Observability) (*Loop, error) {
	if w == nil {
		return nil, fmt.Errorf("writer is required")
	}
	if next == nil {
		return nil, fmt.Errorf("sample factory is required")
	}
	if run == nil {
		return nil, fmt.Errorf("run state is required")
	}
	if obs == nil {
		return nil, fmt.Errorf("observability is required")
	}
	return &Loop{w: w, next: next, run: run, pol: pol, obs: obs}, nil
}

// Run returns an error only when a payload cannot be built or the writer
// fails to release. Individual write failures are logged and counted.
func (l *Loop) Run(ctx context.Context) (stats Stats, err error) {
	defer func() {
		if rerr := l.release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		l.obs.LogInfo("publisher_stopped",
			ports.Field{Key: "written", Value: stats.Written},
			ports.Field{Key: "failed", Value: stats.Failed})
	}()

	target := l.pol.TargetSamples
	for count := uint64(0); l.run.Running() && ctx.Err() == nil && (target == 0 || count < target); count++ {
		payload, perr := l.next(count)
		if perr != nil {
			return stats, fmt.Errorf("build sample %d: %w", count, perr)
		}

		l.obs.LogInfo("writing_sample", ports.Field{Key: "count", Value: count})
		if werr := l.w.Write(ctx, payload); werr != nil {
			stats.Failed++
			l.obs.LogError("write_failed", werr, ports.Field{Key: "count", Value: count})
			l.obs.IncCounter(ports.MetricWriteErrors, 1)
		} else {
			stats.Written++
			l.obs.IncCounter(ports.MetricSamplesWritten, 1)
		}

		if target != 0 && count+1 >= target {
			break
		}
		l.sleep(ctx)
	}
	return stats, nil
}

func (l *Loop) sleep(ctx context.Context) {
	if l.pol.PublishPeriod <= 0 {
		return
	}
	t := time.NewTimer(l.pol.PublishPeriod)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-l.run.Done():
	case <-t.C:
	}
}

func (l *Loop) release() error {
	var errs []error
	if l.pol.DisposeOnExit {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.w.Dispose(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispose instance: %w", err))
		}
		cancel()
	}
	if err := l.w.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close writer: %w", err))
	}
	return errors.Join(errs...)
}

package tempflow

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/tempflow/internal/adapters/journal"
	"github.com/ghalamif/tempflow/internal/ports"
)

func memoryConfig(target uint64) *Config {
	cfg := DefaultConfig()
	cfg.Transport = TransportMemory
	cfg.Policy.TargetSamples = target
	cfg.Policy.WaitTimeout = 50 * time.Millisecond
	cfg.Policy.PublishPeriod = time.Millisecond
	return cfg
}

type subResult struct {
	stats Stats
	err   error
}

func TestPublisherToSubscriberOverMemoryBus(t *testing.T) {
	bus := NewMemoryBus(0)
	defer bus.Close()

	cfg := memoryConfig(3)
	cfg.Journal.Dir = t.TempDir()
	reg := prometheus.NewRegistry()
	var out bytes.Buffer

	sub, err := NewSubscriber(context.Background(), cfg,
		WithMemoryBus(bus),
		WithRegistry(reg),
		WithOutput(&out),
		WithLogOutput(io.Discard),
	)
	require.NoError(t, err)

	done := make(chan subResult, 1)
	go func() {
		stats, err := sub.Run(context.Background(), NewRunState())
		done <- subResult{stats, err}
	}()

	pub, err := NewPublisher(cfg,
		WithMemoryBus(bus),
		WithRegistry(prometheus.NewRegistry()),
		WithLogOutput(io.Discard),
	)
	require.NoError(t, err)
	pstats, err := pub.Run(context.Background(), NewRunState())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), pstats.Written)

	var res subResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not reach its target")
	}
	require.NoError(t, res.err)
	assert.Equal(t, StopTargetReached, res.stats.Reason)
	assert.Equal(t, uint64(3), res.stats.Samples)

	assert.Equal(t, 3, strings.Count(out.String(), "sensor_id: sensor-1"))
	assert.Equal(t, float64(3), counterValue(t, reg, ports.MetricSamplesRead))

	j, err := journal.Open(cfg.Journal.Dir)
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, uint64(3), j.Stats().Entries)
}

func TestDisposedPublisherIsNotCounted(t *testing.T) {
	bus := NewMemoryBus(0)
	defer bus.Close()

	cfg := memoryConfig(0)
	pubCfg := *cfg
	pubCfg.Policy.TargetSamples = 2
	pubCfg.Policy.DisposeOnExit = true
	var got []Record

	sub, err := NewSubscriber(context.Background(), cfg,
		WithMemoryBus(bus),
		WithObservability(&stubObservability{}),
		WithSink(NewCallbackSink("collect", func(b []Record) error {
			got = append(got, b...)
			return nil
		})),
	)
	require.NoError(t, err)

	pub, err := NewPublisher(&pubCfg, WithMemoryBus(bus), WithObservability(&stubObservability{}))
	require.NoError(t, err)
	_, err = pub.Run(context.Background(), NewRunState())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	stats, err := sub.Run(ctx, NewRunState())
	require.NoError(t, err)
	assert.Equal(t, StopShutdown, stats.Reason)
	assert.Equal(t, uint64(2), stats.Samples)
	assert.Len(t, got, 2)
}

func TestNewSubscriberRequiresBusForMemoryTransport(t *testing.T) {
	_, err := NewSubscriber(context.Background(), memoryConfig(1), WithObservability(&stubObservability{}))
	assert.True(t, errors.Is(err, ErrNoMemoryBus))

	_, err = NewPublisher(memoryConfig(1), WithObservability(&stubObservability{}))
	assert.True(t, errors.Is(err, ErrNoMemoryBus))
}

func TestNewPublisherRejectsOPCUA(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport = TransportOPCUA
	_, err := NewPublisher(cfg, WithObservability(&stubObservability{}))
	assert.Error(t, err)
}

func TestSubscriberShutdownWithoutRun(t *testing.T) {
	src := &stubSource{}
	sub, err := NewSubscriber(context.Background(), DefaultConfig(),
		WithSource(src),
		WithObservability(&stubObservability{}),
		WithOutput(io.Discard),
	)
	require.NoError(t, err)
	require.NoError(t, sub.Shutdown(context.Background()))
	require.NoError(t, sub.Shutdown(context.Background()))
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestSubscriberShutdownDuringRunIsGraceful(t *testing.T) {
	bus := NewMemoryBus(0)
	defer bus.Close()

	cfg := memoryConfig(0)
	cfg.Policy.WaitTimeout = time.Hour
	cfg.Metrics.Addr = "127.0.0.1:0"
	sub, err := NewSubscriber(context.Background(), cfg,
		WithMemoryBus(bus),
		WithObservability(&stubObservability{}),
		WithOutput(io.Discard),
	)
	require.NoError(t, err)

	done := make(chan subResult, 1)
	go func() {
		stats, err := sub.Run(context.Background(), NewRunState())
		done <- subResult{stats, err}
	}()

	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.runDone != nil
	}, 5*time.Second, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sub.Shutdown(ctx))

	var res subResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after shutdown")
	}
	require.NoError(t, res.err)
	assert.Equal(t, StopShutdown, res.stats.Reason)
	require.NoError(t, sub.Shutdown(context.Background()))
}

func TestSubscriberRunAfterShutdown(t *testing.T) {
	src := &stubSource{}
	sub, err := NewSubscriber(context.Background(), DefaultConfig(),
		WithSource(src),
		WithObservability(&stubObservability{}),
		WithOutput(io.Discard),
	)
	require.NoError(t, err)
	require.NoError(t, sub.Shutdown(context.Background()))

	_, err = sub.Run(context.Background(), NewRunState())
	assert.ErrorIs(t, err, ErrSubscriberClosed)
	assert.Equal(t, int32(1), src.closes.Load())
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

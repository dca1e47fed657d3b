package tempflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/tempflow/internal/adapters/journal"
	"github.com/ghalamif/tempflow/internal/adapters/natsbus"
	"github.com/ghalamif/tempflow/internal/adapters/opcua"
	"github.com/ghalamif/tempflow/internal/adapters/sink"
	"github.com/ghalamif/tempflow/internal/app/poll"
	"github.com/ghalamif/tempflow/internal/ports"
)

var (
	// ErrNoMemoryBus is returned when the memory transport is selected without WithMemoryBus.
	ErrNoMemoryBus = errors.New("tempflow: memory transport needs a bus")
	// ErrSubscriberClosed is returned by Run after Shutdown.
	ErrSubscriberClosed = errors.New("tempflow: subscriber is shut down")
)

// Subscriber wires an event source, the poll loop and the configured sinks,
// and exposes simple lifecycle hooks for embedding tempflow in a Go service.
type Subscriber struct {
	cfg      *Config
	policy   ports.Policy
	obs      ports.Observability
	registry *prometheus.Registry
	source   ports.EventSource
	sink     *sink.Fanout
	journal  *journal.FileJournal
	db       *sql.DB

	releaseSource func() error

	mu          sync.Mutex
	closing     bool
	cancelRun   context.CancelFunc
	runDone     chan struct{}
	metricsSrv  *http.Server
	gaugeStopCh chan struct{}

	releaseOnce sync.Once
	releaseErr  error
}

// NewSubscriber opens the configured transport and sinks. Options override any
// dependency. Setup failures are reported before anything runs.
func NewSubscriber(ctx context.Context, cfg *Config, opts ...Option) (*Subscriber, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	o := collectOverrides(opts)
	obs, reg := newObservability(cfg, o)

	s := &Subscriber{
		cfg:      cfg,
		policy:   cfg.Policy,
		obs:      obs,
		registry: reg,
	}

	src, err := openSource(ctx, cfg, o, obs)
	if err != nil {
		return nil, err
	}
	s.source = src
	s.releaseSource = sync.OnceValue(src.Close)

	sinks := append([]Sink(nil), o.sinks...)
	if cfg.Journal.Dir != "" {
		j, err := journal.Open(cfg.Journal.Dir)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("open journal: %w", err), s.closeResources())
		}
		s.journal = j
		sinks = append(sinks, j)
	}
	if cfg.Timescale.ConnString != "" {
		db, err := sql.Open("postgres", cfg.Timescale.ConnString)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("open timescale: %w", err), s.closeResources())
		}
		s.db = db
		sinks = append(sinks, sink.NewTimescaleSink(db, cfg.Timescale.Table, obs))
	}
	if len(o.sinks) == 0 {
		out := o.output
		if out == nil {
			out = os.Stdout
		}
		sinks = append(sinks, NewConsoleSink(out))
	}
	s.sink = sink.NewFanout(sinks...)

	return s, nil
}

func openSource(ctx context.Context, cfg *Config, o runtimeOverrides, obs ports.Observability) (ports.EventSource, error) {
	if o.source != nil {
		return o.source, nil
	}
	switch cfg.Transport {
	case TransportMemory:
		if o.bus == nil {
			return nil, ErrNoMemoryBus
		}
		return o.bus.Subscribe(cfg.Domain.Topic)
	case TransportOPCUA:
		return opcua.Open(ctx, cfg.OPCUA, cfg.Domain.Topic, obs)
	case TransportNATS, "":
		return natsbus.OpenSource(cfg.NATS, cfg.Domain.ID, cfg.Domain.Topic, obs)
	default:
		return nil, fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

// Run polls the source until rs is stopped, ctx is done, the target sample
// count is reached or waiting fails, then shuts the subscriber down. A nil rs
// runs until ctx is done or the target is reached.
func (s *Subscriber) Run(ctx context.Context, rs *RunState) (Stats, error) {
	if s == nil {
		return Stats{}, fmt.Errorf("subscriber is nil")
	}
	if rs == nil {
		rs = poll.NewRunState()
	}

	loop, err := poll.NewLoop(onceSource{s.source, s.releaseSource}, poll.NewProcessor(s.sink, s.obs), rs, s.policy, s.obs)
	if err != nil {
		return Stats{}, errors.Join(err, s.Shutdown(context.Background()))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done, err := s.begin(cancel)
	if err != nil {
		return Stats{}, err
	}
	stats, runErr := loop.Run(runCtx)
	close(done)

	releaseCtx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelRelease()
	return stats, errors.Join(runErr, s.release(releaseCtx))
}

// begin marks the subscriber as running and starts the metrics server.
func (s *Subscriber) begin(cancel context.CancelFunc) (chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, ErrSubscriberClosed
	}
	if s.runDone != nil {
		return nil, poll.ErrAlreadyRun
	}
	s.cancelRun = cancel
	s.runDone = make(chan struct{})
	s.metricsSrv = startMetrics(s.cfg.Metrics.Addr, s.registry, s.obs)
	s.gaugeStopCh = make(chan struct{})
	go s.recordResourceGauges(s.gaugeStopCh, time.Second)
	return s.runDone, nil
}

// Shutdown stops a running poll loop, waits for it to return and then stops
// the metrics server and releases the source, journal and DB connection. Safe
// to call more than once and from any goroutine.
func (s *Subscriber) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	cancel, done := s.cancelRun, s.runDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("wait for run to stop: %w", ctx.Err())
		}
	}
	return s.release(ctx)
}

func (s *Subscriber) release(ctx context.Context) error {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		srv, gaugeStop := s.metricsSrv, s.gaugeStopCh
		s.mu.Unlock()

		var errs []error
		if gaugeStop != nil {
			close(gaugeStop)
		}
		if err := stopMetrics(ctx, srv); err != nil {
			errs = append(errs, err)
		}
		if err := s.closeResources(); err != nil {
			errs = append(errs, err)
		}
		s.releaseErr = errors.Join(errs...)
	})
	return s.releaseErr
}

func (s *Subscriber) closeResources() error {
	var errs []error
	if s.releaseSource != nil {
		if err := s.releaseSource(); err != nil {
			errs = append(errs, fmt.Errorf("close source: %w", err))
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close timescale: %w", err))
		}
	}
	return errors.Join(errs...)
}

type pendingReporter interface{ Pending() int }

type lenReporter interface{ Len() int }

func (s *Subscriber) recordResourceGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.journal != nil {
				s.obs.SetGauge(ports.MetricJournalBytes, float64(s.journal.Stats().SizeBytes))
			}
			switch src := s.source.(type) {
			case pendingReporter:
				s.obs.SetGauge(ports.MetricSourcePending, float64(src.Pending()))
			case lenReporter:
				s.obs.SetGauge(ports.MetricSourcePending, float64(src.Len()))
			}
		}
	}
}

// onceSource routes the loop's release through the subscriber's shared closer.
type onceSource struct {
	ports.EventSource
	release func() error
}

func (o onceSource) Close() error { return o.release() }

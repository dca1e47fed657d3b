package tempflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/tempflow/internal/adapters/natsbus"
	"github.com/ghalamif/tempflow/internal/app/poll"
	"github.com/ghalamif/tempflow/internal/app/publish"
	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

// Publisher writes one sample per publish period on the configured topic.
type Publisher struct {
	cfg      *Config
	obs      ports.Observability
	registry *prometheus.Registry
	writer   ports.Writer
	next     publish.SampleFactory

	metricsSrv *http.Server
}

func NewPublisher(cfg *Config, opts ...Option) (*Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	o := collectOverrides(opts)
	obs, reg := newObservability(cfg, o)

	next := o.factory
	if next == nil {
		switch cfg.Domain.Type {
		case domain.TypeHello:
			next = publish.HelloSamples()
		default:
			next = publish.TemperatureSamples(cfg.SensorID, rand.New(rand.NewSource(time.Now().UnixNano())))
		}
	}

	w := o.writer
	if w == nil {
		var err error
		w, err = openWriter(cfg, o, obs)
		if err != nil {
			return nil, err
		}
	}

	return &Publisher{
		cfg:      cfg,
		obs:      obs,
		registry: reg,
		writer:   w,
		next:     next,
	}, nil
}

func openWriter(cfg *Config, o runtimeOverrides, obs ports.Observability) (ports.Writer, error) {
	switch cfg.Transport {
	case TransportMemory:
		if o.bus == nil {
			return nil, ErrNoMemoryBus
		}
		return o.bus.Writer(cfg.Domain.Topic), nil
	case TransportNATS, "":
		return natsbus.OpenWriter(cfg.NATS, cfg.Domain.ID, cfg.Domain.Topic, obs)
	default:
		return nil, fmt.Errorf("transport %q does not support publishing", cfg.Transport)
	}
}

// Run writes samples until the target count is written, rs is stopped or ctx
// is done. The writer is released on return. A nil rs never stops on its own.
func (p *Publisher) Run(ctx context.Context, rs *RunState) (PublishStats, error) {
	if rs == nil {
		rs = poll.NewRunState()
	}
	loop, err := publish.NewLoop(p.writer, p.next, rs, p.cfg.Policy, p.obs)
	if err != nil {
		return PublishStats{}, errors.Join(err, p.writer.Close())
	}

	p.metricsSrv = startMetrics(p.cfg.Metrics.Addr, p.registry, p.obs)
	stats, runErr := loop.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return stats, errors.Join(runErr, stopMetrics(shutdownCtx, p.metricsSrv))
}

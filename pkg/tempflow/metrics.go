package tempflow

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/tempflow/internal/adapters/observability"
	"github.com/ghalamif/tempflow/internal/ports"
)

// newObservability returns the caller's backend or a Prometheus + logrus one
// bound to a registry the metrics server can expose.
func newObservability(cfg *Config, o runtimeOverrides) (ports.Observability, *prometheus.Registry) {
	reg := o.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if o.observability != nil {
		return o.observability, reg
	}
	logger := observability.NewLogger(cfg.Log.Verbosity, cfg.Log.Format, o.logOutput)
	return observability.NewPromObs(reg, logger), reg
}

// startMetrics serves /metrics and /healthz on addr. An empty addr disables it.
func startMetrics(addr string, reg *prometheus.Registry, obs ports.Observability) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.LogError("metrics_server_exited", err, ports.Field{Key: "addr", Value: addr})
		}
	}()
	return srv
}

func stopMetrics(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

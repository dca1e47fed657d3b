package natsbus

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/ghalamif/tempflow/internal/ports"
)

// Dial opens a connection with reconnect and lifecycle logging wired to obs.
func Dial(cfg Config, obs ports.Observability) (*nats.Conn, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("nats config: %w", err)
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(*cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				obs.LogError("nats_disconnected", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			obs.LogInfo("nats_reconnected", ports.Field{Key: "url", Value: nc.ConnectedUrl()})
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []ports.Field{}
			if sub != nil {
				fields = append(fields, ports.Field{Key: "subject", Value: sub.Subject})
			}
			obs.LogError("nats_async_error", err, fields...)
		}),
	}
	if *cfg.MaxReconnects == 0 {
		opts = append(opts, nats.NoReconnect())
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	return nc, nil
}

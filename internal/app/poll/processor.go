package poll

import (
	"time"

	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

// Processor counts the valid records of a batch and forwards them to a sink.
type Processor struct {
	sink ports.Sink
	obs  ports.Observability
}

// NewProcessor returns a processor writing to sink. A nil sink only counts.
func NewProcessor(sink ports.Sink, obs ports.Observability) *Processor {
	return &Processor{sink: sink, obs: obs}
}

// Process returns the number of valid records in batch. Lifecycle
// notifications are logged and skipped. Sink failures are reported but do not
// change the count.
func (p *Processor) Process(batch domain.Batch) int {
	valid := make([]domain.Record, 0, len(batch))
	for _, rec := range batch {
		if !rec.Valid {
			p.obs.LogInfo("instance_state_notification",
				ports.Field{Key: "topic", Value: rec.Topic},
				ports.Field{Key: "state", Value: rec.InstanceState},
				ports.Field{Key: "writer", Value: rec.WriterID})
			p.obs.IncCounter(ports.MetricInstanceNotifications, 1)
			continue
		}
		valid = append(valid, rec)
	}

	if len(valid) == 0 {
		return 0
	}
	p.obs.IncCounter(ports.MetricSamplesRead, float64(len(valid)))

	if p.sink == nil {
		return len(valid)
	}

	start := time.Now()
	if err := p.sink.WriteBatch(valid); err != nil {
		p.obs.LogError("sink_write_failed", err,
			ports.Field{Key: "sink", Value: p.sink.Name()},
			ports.Field{Key: "records", Value: len(valid)})
		p.obs.IncCounter(ports.MetricSinkErrors, 1)
		return len(valid)
	}
	p.obs.ObserveLatency(ports.MetricSinkLatency, time.Since(start).Seconds())
	return len(valid)
}

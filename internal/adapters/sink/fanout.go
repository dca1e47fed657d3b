package sink

import (
	"errors"
	"fmt"

	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

// Fanout hands every batch to each sink in order. One failing sink does not
// stop the others; their errors are joined.
type Fanout struct {
	sinks []ports.Sink
}

func NewFanout(sinks ...ports.Sink) *Fanout {
	out := make([]ports.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out}
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) WriteBatch(records []domain.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.WriteBatch(records); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var _ ports.Sink = (*Fanout)(nil)

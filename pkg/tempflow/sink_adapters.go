package tempflow

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ghalamif/tempflow/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("tempflow: channel sink closed")

// RecordBatchSink is invoked with the valid records of each drained batch.
type RecordBatchSink func([]Record) error

// NewConsoleSink prints one line per record to w. Temperatures are shown by
// field, any other payload as text.
func NewConsoleSink(w io.Writer) Sink {
	return &consoleSink{w: w}
}

// NewCallbackSink adapts a RecordBatchSink into a full Sink implementation so callers
// can plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn RecordBatchSink) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink, the read-only channel,
// and a close function that the caller should invoke during shutdown.
func NewChannelSink(name string, buffer int) (Sink, <-chan []Record, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Record, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *consoleSink) WriteBatch(records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		var err error
		if t, derr := domain.DecodeTemperature(rec.Payload); derr == nil {
			_, err = fmt.Fprintf(s.w, "sensor_id: %s, degrees: %d\n", t.SensorID, t.Degrees)
		} else {
			_, err = fmt.Fprintf(s.w, "%s\n", rec.Payload)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *consoleSink) Name() string { return "console" }

type callbackSink struct {
	name string
	fn   RecordBatchSink
}

func (s *callbackSink) WriteBatch(records []domain.Record) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(records) == 0 {
		return nil
	}
	return s.fn(copyRecords(records))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan []Record
	closed chan struct{}
	once   sync.Once

	// mu is held for reading while sending, so ch is never closed under a sender.
	mu sync.RWMutex
}

func (s *channelSink) WriteBatch(records []domain.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(records) == 0 {
		return nil
	}

	batch := copyRecords(records)

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case s.ch <- batch:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

func copyRecords(records []domain.Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		rec.Payload = append([]byte(nil), rec.Payload...)
		out[i] = rec
	}
	return out
}

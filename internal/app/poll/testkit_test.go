package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

// step is one scripted outcome of Wait. A nil err means Ready and batch is
// what the following Drain returns.
type step struct {
	err   error
	batch domain.Batch
}

func ready(batch domain.Batch) step { return step{batch: batch} }
func timedOut() step                { return step{err: ports.ErrWaitTimeout} }
func failed(err error) step         { return step{err: err} }

type scriptedSource struct {
	steps []step
	idx   int

	// onExhausted runs once the script is used up; Wait then keeps timing out.
	onExhausted func()

	pending    domain.Batch
	waitCalls  int
	drainCalls int
	closes     atomic.Int32
	closeErr   error
}

func (s *scriptedSource) Wait(ctx context.Context, _ time.Duration) error {
	s.waitCalls++
	if s.idx >= len(s.steps) {
		if s.onExhausted != nil {
			s.onExhausted()
		}
		return ports.ErrWaitTimeout
	}
	st := s.steps[s.idx]
	s.idx++
	if st.err != nil {
		return st.err
	}
	s.pending = st.batch
	return nil
}

func (s *scriptedSource) Drain() domain.Batch {
	s.drainCalls++
	b := s.pending
	s.pending = nil
	return b
}

func (s *scriptedSource) Close() error {
	s.closes.Add(1)
	return s.closeErr
}

// blockingSource waits until its context is cancelled.
type blockingSource struct {
	entered chan struct{}
	once    sync.Once
	closes  atomic.Int32
}

func newBlockingSource() *blockingSource {
	return &blockingSource{entered: make(chan struct{})}
}

func (b *blockingSource) Wait(ctx context.Context, _ time.Duration) error {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingSource) Drain() domain.Batch { return nil }

func (b *blockingSource) Close() error {
	b.closes.Add(1)
	return nil
}

type recordingSink struct {
	batches [][]domain.Record
	err     error
}

func (r *recordingSink) WriteBatch(records []domain.Record) error {
	cp := make([]domain.Record, len(records))
	copy(cp, records)
	r.batches = append(r.batches, cp)
	return r.err
}

func (r *recordingSink) Name() string { return "recording" }

type logEntry struct {
	level  string
	msg    string
	err    error
	fields map[string]any
}

type recordingObs struct {
	mu       sync.Mutex
	entries  []logEntry
	counters map[string]float64
	gauges   map[string]float64
}

func newRecordingObs() *recordingObs {
	return &recordingObs{
		counters: map[string]float64{},
		gauges:   map[string]float64{},
	}
}

func (o *recordingObs) add(level, msg string, err error, fields []ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	o.entries = append(o.entries, logEntry{level: level, msg: msg, err: err, fields: m})
}

func (o *recordingObs) LogDebug(msg string, fields ...ports.Field) { o.add("debug", msg, nil, fields) }
func (o *recordingObs) LogInfo(msg string, fields ...ports.Field)  { o.add("info", msg, nil, fields) }
func (o *recordingObs) LogError(msg string, err error, fields ...ports.Field) {
	o.add("error", msg, err, fields)
}
func (o *recordingObs) LogCritical(msg string, err error, fields ...ports.Field) {
	o.add("critical", msg, err, fields)
}

func (o *recordingObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters[name] += v
}

func (o *recordingObs) ObserveLatency(string, float64) {}

func (o *recordingObs) SetGauge(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gauges[name] = v
}

func (o *recordingObs) count(msg string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.entries {
		if e.msg == msg {
			n++
		}
	}
	return n
}

func (o *recordingObs) messages(msg string) []logEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []logEntry
	for _, e := range o.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func validRecords(n int) domain.Batch {
	b := make(domain.Batch, n)
	for i := range b {
		b[i] = domain.Record{Valid: true, Payload: []byte{byte(i)}, Seq: uint64(i + 1), InstanceState: domain.StateAlive}
	}
	return b
}

func invalidRecord() domain.Record {
	return domain.Record{Valid: false, InstanceState: domain.StateDisposed}
}

var errBoom = errors.New("boom")

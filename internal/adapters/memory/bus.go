package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

var (
	ErrBusClosed    = errors.New("memory: bus closed")
	ErrSourceClosed = errors.New("memory: source closed")
	ErrWriterClosed = errors.New("memory: writer closed")
)

// Bus is an in-process topic bus. Every subscriber owns a bounded FIFO queue;
// records published while a queue is full are dropped for that subscriber.
type Bus struct {
	mu       sync.Mutex
	subs     map[string][]*Source
	capacity int
	closed   bool
}

func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Bus{subs: make(map[string][]*Source), capacity: capacity}
}

// Subscribe returns a source receiving everything published on topic from now on.
func (b *Bus) Subscribe(topic string) (*Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	s := &Source{
		bus:    b,
		topic:  topic,
		data:   make([]domain.Record, 0, b.capacity),
		cap:    b.capacity,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], s)
	return s, nil
}

// Writer returns a writer publishing on topic under a fresh writer id.
func (b *Bus) Writer(topic string) *Writer {
	return &Writer{bus: b, topic: topic, id: uuid.NewString()}
}

// Close closes every subscribed source.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*Source
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = nil
	b.mu.Unlock()

	for _, s := range all {
		s.shutdown()
	}
	return nil
}

func (b *Bus) publish(rec domain.Record) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	subs := append([]*Source(nil), b.subs[rec.Topic]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.enqueue(rec)
	}
	return nil
}

func (b *Bus) unsubscribe(s *Source) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[s.topic]
	for i, cur := range subs {
		if cur == s {
			b.subs[s.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Source is the ports.EventSource side of a bus subscription.
type Source struct {
	bus   *Bus
	topic string

	mu      sync.Mutex
	data    []domain.Record
	cap     int
	dropped uint64

	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *Source) enqueue(rec domain.Record) bool {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return false
	default:
	}
	if len(s.data) >= s.cap {
		s.dropped++
		s.mu.Unlock()
		return false
	}
	s.data = append(s.data, rec)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return true
}

func (s *Source) Wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if s.Len() > 0 {
			return nil
		}
		select {
		case <-s.signal:
		case <-s.done:
			return ErrSourceClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ports.ErrWaitTimeout
		}
	}
}

func (s *Source) Drain() domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return nil
	}
	out := make(domain.Batch, len(s.data))
	copy(out, s.data)
	s.data = s.data[:0]
	return out
}

func (s *Source) Close() error {
	s.bus.unsubscribe(s)
	s.shutdown()
	return nil
}

// Len returns the number of records waiting to be drained.
func (s *Source) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Dropped returns how many records were lost to a full queue.
func (s *Source) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Source) shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
	})
}

// Writer is the ports.Writer side of the bus.
type Writer struct {
	bus    *Bus
	topic  string
	id     string
	seq    atomic.Uint64
	closed atomic.Bool
}

func (w *Writer) ID() string { return w.id }

func (w *Writer) Write(_ context.Context, payload []byte) error {
	if w.closed.Load() {
		return ErrWriterClosed
	}
	return w.bus.publish(domain.Record{
		Valid:         true,
		Payload:       append([]byte(nil), payload...),
		Topic:         w.topic,
		InstanceState: domain.StateAlive,
		WriterID:      w.id,
		Seq:           w.seq.Add(1),
		ReceivedAt:    time.Now(),
	})
}

func (w *Writer) Dispose(_ context.Context) error {
	if w.closed.Load() {
		return ErrWriterClosed
	}
	return w.bus.publish(domain.Record{
		Topic:         w.topic,
		InstanceState: domain.StateDisposed,
		WriterID:      w.id,
		Seq:           w.seq.Add(1),
		ReceivedAt:    time.Now(),
	})
}

func (w *Writer) Close() error {
	w.closed.Store(true)
	return nil
}

var (
	_ ports.EventSource = (*Source)(nil)
	_ ports.Writer      = (*Writer)(nil)
)

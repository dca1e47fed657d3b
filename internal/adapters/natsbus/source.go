package natsbus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

// Headers carried by every message a Writer publishes.
const (
	HeaderInstanceState = "Tempflow-Instance-State"
	HeaderWriterID      = "Tempflow-Writer"
	HeaderSeq           = "Tempflow-Seq"
)

var ErrSourceClosed = errors.New("nats: source closed")

// conn and subscription are the parts of *nats.Conn and *nats.Subscription
// a Source relies on after subscribing.
type conn interface {
	IsClosed() bool
	Close()
}

type subscription interface {
	IsValid() bool
	Unsubscribe() error
}

// Source buffers messages of one subject in a channel subscription and exposes
// them through the wait/drain contract.
type Source struct {
	nc      conn
	ownConn bool
	sub     subscription
	ch      chan *nats.Msg
	topic   string

	mu      sync.Mutex
	pending *nats.Msg

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewSource subscribes to subject on an existing connection. The connection
// stays open when the source is closed.
func NewSource(nc *nats.Conn, subject, topic string, buffer int) (*Source, error) {
	return newSource(nc, false, subject, topic, buffer)
}

// OpenSource dials cfg and subscribes to the subject of domainID/topic. The
// source owns the connection.
func OpenSource(cfg Config, domainID int, topic string, obs ports.Observability) (*Source, error) {
	cfg.ApplyDefaults()
	nc, err := Dial(cfg, obs)
	if err != nil {
		return nil, err
	}
	src, err := newSource(nc, true, Subject(cfg.SubjectPrefix, domainID, topic), topic, cfg.PendingBuffer)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return src, nil
}

func newSource(nc *nats.Conn, own bool, subject, topic string, buffer int) (*Source, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if buffer <= 0 {
		buffer = 4096
	}
	ch := make(chan *nats.Msg, buffer)
	sub, err := nc.ChanSubscribe(subject, ch)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription %s: %w", subject, err)
	}
	return wrapSubscription(nc, own, sub, ch, topic), nil
}

func wrapSubscription(nc conn, own bool, sub subscription, ch chan *nats.Msg, topic string) *Source {
	return &Source{
		nc:      nc,
		ownConn: own,
		sub:     sub,
		ch:      ch,
		topic:   topic,
		done:    make(chan struct{}),
	}
}

func (s *Source) Wait(ctx context.Context, timeout time.Duration) error {
	select {
	case <-s.done:
		return ErrSourceClosed
	default:
	}

	s.mu.Lock()
	ready := s.pending != nil || len(s.ch) > 0
	s.mu.Unlock()
	if ready {
		return nil
	}
	if s.nc.IsClosed() {
		return nats.ErrConnectionClosed
	}
	if !s.sub.IsValid() {
		return nats.ErrBadSubscription
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-s.ch:
		s.mu.Lock()
		s.pending = msg
		s.mu.Unlock()
		return nil
	case <-s.done:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if s.nc.IsClosed() {
			return nats.ErrConnectionClosed
		}
		return ports.ErrWaitTimeout
	}
}

func (s *Source) Drain() domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out domain.Batch
	if s.pending != nil {
		out = append(out, toRecord(s.pending, s.topic))
		s.pending = nil
	}
	for {
		select {
		case msg := <-s.ch:
			out = append(out, toRecord(msg, s.topic))
		default:
			return out
		}
	}
}

func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		var errs []error
		if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
		}
		if s.ownConn {
			s.nc.Close()
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Pending reports how many messages are buffered but not drained yet.
func (s *Source) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ch)
	if s.pending != nil {
		n++
	}
	return n
}

func toRecord(msg *nats.Msg, topic string) domain.Record {
	state := msg.Header.Get(HeaderInstanceState)
	if state == "" {
		state = domain.StateAlive
	}
	seq, _ := strconv.ParseUint(msg.Header.Get(HeaderSeq), 10, 64)

	rec := domain.Record{
		Valid:         state == domain.StateAlive,
		Topic:         topic,
		InstanceState: state,
		WriterID:      msg.Header.Get(HeaderWriterID),
		Seq:           seq,
		ReceivedAt:    time.Now(),
	}
	if rec.Valid {
		rec.Payload = msg.Data
	}
	return rec
}

var _ ports.EventSource = (*Source)(nil)

package natsbus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

var ErrWriterClosed = errors.New("nats: writer closed")

// Writer publishes payloads on one subject, tagging each message with the
// writer id, a sequence number and the instance state.
type Writer struct {
	nc      *nats.Conn
	ownConn bool
	subject string
	id      string
	seq     atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewWriter(nc *nats.Conn, subject string) *Writer {
	return &Writer{nc: nc, subject: subject, id: uuid.NewString()}
}

// OpenWriter dials cfg and returns a writer for domainID/topic that owns the
// connection.
func OpenWriter(cfg Config, domainID int, topic string, obs ports.Observability) (*Writer, error) {
	cfg.ApplyDefaults()
	nc, err := Dial(cfg, obs)
	if err != nil {
		return nil, err
	}
	w := NewWriter(nc, Subject(cfg.SubjectPrefix, domainID, topic))
	w.ownConn = true
	return w, nil
}

func (w *Writer) ID() string { return w.id }

func (w *Writer) Write(_ context.Context, payload []byte) error {
	return w.publish(domain.StateAlive, payload)
}

func (w *Writer) Dispose(ctx context.Context) error {
	if err := w.publish(domain.StateDisposed, nil); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		return w.nc.FlushTimeout(2 * time.Second)
	}
	return w.nc.FlushWithContext(ctx)
}

func (w *Writer) publish(state string, payload []byte) error {
	if w.closed.Load() {
		return ErrWriterClosed
	}
	msg := nats.NewMsg(w.subject)
	msg.Data = payload
	msg.Header.Set(HeaderInstanceState, state)
	msg.Header.Set(HeaderWriterID, w.id)
	msg.Header.Set(HeaderSeq, strconv.FormatUint(w.seq.Add(1), 10))
	if err := w.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", w.subject, err)
	}
	return nil
}

func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		if w.nc.IsClosed() {
			return
		}
		if err := w.nc.FlushTimeout(2 * time.Second); err != nil {
			w.closeErr = fmt.Errorf("flush: %w", err)
		}
		if w.ownConn {
			w.nc.Close()
		}
	})
	return w.closeErr
}

var _ ports.Writer = (*Writer)(nil)

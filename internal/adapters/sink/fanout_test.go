package sink

import (
	"errors"
	"testing"

	"github.com/ghalamif/tempflow/internal/domain"
)

type stubSink struct {
	name string
	got  int
	err  error
}

func (s *stubSink) WriteBatch(records []domain.Record) error {
	s.got += len(records)
	return s.err
}

func (s *stubSink) Name() string { return s.name }

func TestFanoutWritesToEverySink(t *testing.T) {
	errDown := errors.New("down")
	a := &stubSink{name: "a", err: errDown}
	b := &stubSink{name: "b"}

	f := NewFanout(a, nil, b)
	if f.Len() != 2 {
		t.Fatalf("expected nil sinks to be dropped, got %d", f.Len())
	}

	err := f.WriteBatch([]domain.Record{{Valid: true}, {Valid: true}})
	if !errors.Is(err, errDown) {
		t.Fatalf("expected joined error to wrap errDown, got %v", err)
	}
	if a.got != 2 || b.got != 2 {
		t.Fatalf("expected both sinks to receive the batch, got a=%d b=%d", a.got, b.got)
	}
}
